// Package cache holds the Redis client and the current-user cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/contacts-api/internal/model"
)

// UserTTL is how long a loaded user stays cached.
const UserTTL = 15 * time.Minute

// New creates a Redis client and checks it answers.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return client, nil
}

// UserCache stores users under "user:<id>".
//
// A nil *UserCache, or one built with a nil client, is a valid cache that
// never hits. The server uses that when Redis is not reachable at startup.
type UserCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUserCache wraps client. ttl <= 0 means UserTTL.
func NewUserCache(client *redis.Client, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = UserTTL
	}
	return &UserCache{client: client, ttl: ttl}
}

// cachedUser is the profile part of model.User. The password hash and the
// refresh token never leave the database; flows that need them read the
// repository directly.
type cachedUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Confirmed bool      `json:"confirmed"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
}

func userKey(id string) string { return "user:" + id }

// Get returns the cached user. ok is false on a miss.
func (c *UserCache) Get(ctx context.Context, id string) (user *model.User, ok bool, err error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get user %s: %w", id, err)
	}

	var cu cachedUser
	if err := json.Unmarshal(raw, &cu); err != nil {
		return nil, false, fmt.Errorf("cache: decode user %s: %w", id, err)
	}
	return &model.User{
		ID:        cu.ID,
		Username:  cu.Username,
		Email:     cu.Email,
		Confirmed: cu.Confirmed,
		Avatar:    cu.Avatar,
		CreatedAt: cu.CreatedAt,
	}, true, nil
}

// Set stores u for the cache TTL.
func (c *UserCache) Set(ctx context.Context, u *model.User) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(cachedUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Confirmed: u.Confirmed,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("cache: encode user %s: %w", u.ID, err)
	}
	if err := c.client.Set(ctx, userKey(u.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set user %s: %w", u.ID, err)
	}
	return nil
}

// Delete evicts the user so the next read goes to the database.
func (c *UserCache) Delete(ctx context.Context, id string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, userKey(id)).Err(); err != nil {
		return fmt.Errorf("cache: delete user %s: %w", id, err)
	}
	return nil
}
