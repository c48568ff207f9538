package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" creates a fresh database that exists only during the test, so
// every test starts from an empty, fully migrated schema.
//
// t.Helper() makes failures report the CALLER's line, not this function's.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser is a test helper that creates a user and fails the test if it errors.
func createTestUser(t *testing.T, u *UserDB, username string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$04$hash",
	}
	if err := u.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// MIGRATION TESTS
// =========================================================================

func TestNew_AppliesMigrations(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"goose_db_version", "users", "contacts"} {
		var n int
		err := db.conn.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&n)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing after New()", table)
		}
	}
}

func TestNew_ReopenFileIsIdempotent(t *testing.T) {
	path := t.TempDir() + "/contacts.db"

	first, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("New() first open: %v", err)
	}
	createTestUser(t, first.Users(), "persisted")
	first.Close()

	second, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("New() second open should not re-run migrations, got: %v", err)
	}
	defer second.Close()

	if _, err := second.Users().GetByUsername(context.Background(), "persisted"); err != nil {
		t.Errorf("GetByUsername() after reopen: %v", err)
	}
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	u := newTestDB(t).Users()

	user := &model.User{
		Username:     "testuser",
		Email:        "test@example.com",
		PasswordHash: "hash",
	}
	if err := u.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	u := newTestDB(t).Users()
	createTestUser(t, u, "firstuser")

	duplicate := &model.User{
		Username:     "seconduser",
		Email:        "firstuser@example.com",
		PasswordHash: "hash",
	}
	err := u.Create(context.Background(), duplicate)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
}

func TestUserCreate_DuplicateUsername(t *testing.T) {
	u := newTestDB(t).Users()
	createTestUser(t, u, "taken")

	err := u.Create(context.Background(), &model.User{
		Username:     "taken",
		Email:        "other@example.com",
		PasswordHash: "hash",
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestUserGetByID(t *testing.T) {
	u := newTestDB(t).Users()
	created := createTestUser(t, u, "getbyid_user")

	found, err := u.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Username != "getbyid_user" {
		t.Errorf("Username = %q, want %q", found.Username, "getbyid_user")
	}
	if found.Confirmed {
		t.Error("new user should not be confirmed")
	}
	if found.Avatar != nil {
		t.Errorf("Avatar = %v, want nil", *found.Avatar)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	u := newTestDB(t).Users()

	_, err := u.GetByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUserGetByEmail(t *testing.T) {
	u := newTestDB(t).Users()
	created := createTestUser(t, u, "emailuser")

	found, err := u.GetByEmail(context.Background(), "emailuser@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}

	_, err = u.GetByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByEmail(unknown) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// MUTATION TESTS
// =========================================================================

func TestUserUpdateRefreshToken(t *testing.T) {
	u := newTestDB(t).Users()
	user := createTestUser(t, u, "tokenuser")
	ctx := context.Background()

	token := "refresh-abc"
	if err := u.UpdateRefreshToken(ctx, user.ID, &token); err != nil {
		t.Fatalf("UpdateRefreshToken() error = %v", err)
	}
	found, _ := u.GetByID(ctx, user.ID)
	if found.RefreshToken == nil || *found.RefreshToken != token {
		t.Fatalf("RefreshToken = %v, want %q", found.RefreshToken, token)
	}

	// nil clears the token (logout)
	if err := u.UpdateRefreshToken(ctx, user.ID, nil); err != nil {
		t.Fatalf("UpdateRefreshToken(nil) error = %v", err)
	}
	found, _ = u.GetByID(ctx, user.ID)
	if found.RefreshToken != nil {
		t.Errorf("RefreshToken = %q, want nil", *found.RefreshToken)
	}
}

func TestUserConfirmEmail_Idempotent(t *testing.T) {
	u := newTestDB(t).Users()
	user := createTestUser(t, u, "confirmme")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := u.ConfirmEmail(ctx, user.Email); err != nil {
			t.Fatalf("ConfirmEmail() call %d error = %v", i+1, err)
		}
	}
	found, _ := u.GetByID(ctx, user.ID)
	if !found.Confirmed {
		t.Error("Confirmed = false after ConfirmEmail()")
	}
}

func TestUserUpdateAvatar(t *testing.T) {
	u := newTestDB(t).Users()
	user := createTestUser(t, u, "avataruser")

	updated, err := u.UpdateAvatar(context.Background(), user.Email, "https://cdn.example.com/a.png")
	if err != nil {
		t.Fatalf("UpdateAvatar() error = %v", err)
	}
	if updated.Avatar == nil || *updated.Avatar != "https://cdn.example.com/a.png" {
		t.Errorf("Avatar = %v, want the new URL", updated.Avatar)
	}

	_, err = u.UpdateAvatar(context.Background(), "ghost@example.com", "x")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateAvatar(unknown) error = %v, want ErrNotFound", err)
	}
}
