package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users table. Obtain one through DB.Users.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, username, email, password, confirmed, avatar, refresh_token, created_at`

func scanUser(row scanner) (*model.User, error) {
	var (
		u       model.User
		avatar  sql.NullString
		refresh sql.NullString
	)
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Confirmed,
		&avatar, &refresh, &u.CreatedAt,
	); err != nil {
		return nil, err
	}
	if avatar.Valid {
		u.Avatar = &avatar.String
	}
	if refresh.Valid {
		u.RefreshToken = &refresh.String
	}
	return &u, nil
}

// Create inserts a new user. Email and username are globally unique; a
// violation is reported as apperror.ErrConflict.
func (r *UserDB) Create(ctx context.Context, u *model.User) error {
	u.ID = xid.New().String()
	u.CreatedAt = time.Now().UTC()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Confirmed,
		nullString(u.Avatar), nullString(u.RefreshToken), u.CreatedAt,
	)
	if err != nil {
		if columns, ok := uniqueViolation(err); ok {
			if strings.Contains(columns, "users.username") {
				return apperror.Conflict("Username already taken")
			}
			return apperror.Conflict("Account already exists")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", u.Email, err)
	}
	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (r *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address.
func (r *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("user not found with email " + email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// GetByUsername retrieves a user by username.
func (r *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("user not found with username " + username)
		}
		return nil, fmt.Errorf("sqlite: getting user by username: %w", err)
	}
	return u, nil
}

// UpdateRefreshToken stores the user's current refresh token. Passing nil
// clears it, which is how logout and reuse detection revoke a session.
func (r *UserDB) UpdateRefreshToken(ctx context.Context, userID string, token *string) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE users SET refresh_token = ? WHERE id = ?`,
		nullString(token), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating refresh token for %s: %w", userID, err)
	}
	return requireRow(result, "user", userID)
}

// ConfirmEmail marks the account as confirmed. Confirming twice is harmless.
func (r *UserDB) ConfirmEmail(ctx context.Context, email string) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE users SET confirmed = 1 WHERE email = ?`, email,
	)
	if err != nil {
		return fmt.Errorf("sqlite: confirming email: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFoundMessage("user not found with email " + email)
	}
	return nil
}

// UpdateAvatar overwrites the avatar URL and returns the updated user.
func (r *UserDB) UpdateAvatar(ctx context.Context, email, url string) (*model.User, error) {
	u, err := scanUser(r.conn.QueryRowContext(ctx,
		`UPDATE users SET avatar = ? WHERE email = ? RETURNING `+userColumns,
		url, email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("user not found with email " + email)
		}
		return nil, fmt.Errorf("sqlite: updating avatar: %w", err)
	}
	return u, nil
}

func requireRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
