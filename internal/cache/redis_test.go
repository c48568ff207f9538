package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/contacts-api/internal/model"
)

func newTestCache(t *testing.T) (*UserCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewUserCache(client, time.Minute), mr
}

func TestUserCache_RoundTripOmitsSecrets(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	refresh := "refresh-token-value"
	avatar := "https://example.com/a.png"
	u := &model.User{
		ID:           "u1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$04$hashvalue",
		Confirmed:    true,
		Avatar:       &avatar,
		RefreshToken: &refresh,
		CreatedAt:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	require.NoError(t, c.Set(ctx, u))

	stored, err := mr.Get("user:u1")
	require.NoError(t, err)
	assert.NotContains(t, stored, "hashvalue")
	assert.NotContains(t, stored, "refresh-token-value")

	got, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Empty(t, got.PasswordHash)
	assert.Nil(t, got.RefreshToken)
	require.NotNil(t, got.Avatar)
	assert.Equal(t, avatar, *got.Avatar)
	assert.True(t, got.CreatedAt.Equal(u.CreatedAt))
	assert.True(t, got.Confirmed)
}

func TestUserCache_MissAndDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, &model.User{ID: "u2"}))
	require.NoError(t, c.Delete(ctx, "u2"))

	_, ok, err = c.Get(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserCache_Expires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &model.User{ID: "u3"}))
	assert.Equal(t, time.Minute, mr.TTL("user:u3"))

	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "u3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserCache_NilIsNoop(t *testing.T) {
	var c *UserCache
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &model.User{ID: "x"}))
	_, ok, err := c.Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Delete(ctx, "x"))

	empty := NewUserCache(nil, 0)
	_, ok, err = empty.Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew_UnreachableAddr(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), addr)
	assert.Error(t, err)
}
