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

// COMPILE-TIME INTERFACE CHECK:
// If *ContactDB stops satisfying repository.ContactRepository the build fails
// here instead of at the call site in main.go.
var _ repository.ContactRepository = (*ContactDB)(nil)

// ContactDB is the contacts table. Obtain one through DB.Contacts.
type ContactDB struct {
	conn *sql.DB
}

const contactColumns = `id, user_id, first_name, last_name, email, phone_number,
	birthday, additional_data, created_at, updated_at`

// birthdayKey is month*100+day computed from the stored "YYYY-MM-DD" text.
const birthdayKey = `(CAST(strftime('%m', birthday) AS INTEGER) * 100 + CAST(strftime('%d', birthday) AS INTEGER))`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (*model.Contact, error) {
	var (
		c    model.Contact
		note sql.NullString
	)
	if err := row.Scan(
		&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber,
		&c.Birthday, &note, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if note.Valid {
		c.AdditionalData = &note.String
	}
	return &c, nil
}

// Create inserts a new contact and fills in its ID and timestamps.
//
// No existence check happens here. If another request inserted the same
// (user, email) or (user, phone) first, the UNIQUE constraint rejects the
// row and the caller gets apperror.ErrDuplicate, the same signal the service
// pre-check produces.
func (r *ContactDB) Create(ctx context.Context, c *model.Contact) error {
	c.ID = xid.New().String()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO contacts (`+contactColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.FirstName, c.LastName, c.Email, c.PhoneNumber,
		c.Birthday, nullString(c.AdditionalData), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateContact(err); dup != nil {
			return dup
		}
		return fmt.Errorf("sqlite: creating contact: %w", err)
	}
	return nil
}

// GetByID returns the user's contact with the given id.
func (r *ContactDB) GetByID(ctx context.Context, userID, id string) (*model.Contact, error) {
	c, err := scanContact(r.conn.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = ? AND user_id = ?`,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("contact", id)
		}
		return nil, fmt.Errorf("sqlite: getting contact %s: %w", id, err)
	}
	return c, nil
}

// GetByEmail returns the user's contact with the given email.
func (r *ContactDB) GetByEmail(ctx context.Context, userID, email string) (*model.Contact, error) {
	return r.getBy(ctx, "email", userID, email)
}

// GetByPhone returns the user's contact with the given phone number.
func (r *ContactDB) GetByPhone(ctx context.Context, userID, phone string) (*model.Contact, error) {
	return r.getBy(ctx, "phone_number", userID, phone)
}

// getBy looks a contact up by one of the per-user unique columns. column is
// always a literal from this file, never user input.
func (r *ContactDB) getBy(ctx context.Context, column, userID, value string) (*model.Contact, error) {
	c, err := scanContact(r.conn.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE user_id = ? AND `+column+` = ?`,
		userID, value,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage(fmt.Sprintf("contact not found with %s %s", column, value))
		}
		return nil, fmt.Errorf("sqlite: getting contact by %s: %w", column, err)
	}
	return c, nil
}

// List returns a page of the user's contacts in insertion order.
func (r *ContactDB) List(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Contact, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	return r.query(ctx, "listing contacts",
		`SELECT `+contactColumns+` FROM contacts
		 WHERE user_id = ?
		 ORDER BY rowid
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
}

// Update merges patch onto existing and writes every column back.
//
// Only fields present in the patch change. updated_at always moves forward.
func (r *ContactDB) Update(ctx context.Context, existing *model.Contact, patch model.ContactPatch) error {
	updated := *existing
	updated.Apply(patch)
	updated.UpdatedAt = time.Now().UTC()

	result, err := r.conn.ExecContext(ctx,
		`UPDATE contacts
		 SET first_name = ?, last_name = ?, email = ?, phone_number = ?,
		     birthday = ?, additional_data = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		updated.FirstName, updated.LastName, updated.Email, updated.PhoneNumber,
		updated.Birthday, nullString(updated.AdditionalData), updated.UpdatedAt,
		updated.ID, updated.UserID,
	)
	if err != nil {
		if dup := duplicateContact(err); dup != nil {
			return dup
		}
		return fmt.Errorf("sqlite: updating contact %s: %w", existing.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("contact", existing.ID)
	}

	*existing = updated
	return nil
}

// Delete removes the user's contact and returns the row as it was.
//
// RETURNING hands back the deleted row in the same statement, so there is
// no window between a read and the delete.
func (r *ContactDB) Delete(ctx context.Context, userID, id string) (*model.Contact, error) {
	c, err := scanContact(r.conn.QueryRowContext(ctx,
		`DELETE FROM contacts WHERE id = ? AND user_id = ? RETURNING `+contactColumns,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("contact", id)
		}
		return nil, fmt.Errorf("sqlite: deleting contact %s: %w", id, err)
	}
	return c, nil
}

// Search returns the user's contacts matching ANY supplied criterion
// (exact match per field). At least one criterion is required.
func (r *ContactDB) Search(ctx context.Context, userID string, criteria model.SearchCriteria) ([]model.Contact, error) {
	var (
		conds []string
		args  = []any{userID}
	)
	if criteria.FirstName != "" {
		conds = append(conds, "first_name = ?")
		args = append(args, criteria.FirstName)
	}
	if criteria.LastName != "" {
		conds = append(conds, "last_name = ?")
		args = append(args, criteria.LastName)
	}
	if criteria.Email != "" {
		conds = append(conds, "email = ?")
		args = append(args, criteria.Email)
	}
	if len(conds) == 0 {
		return nil, apperror.ValidationFailed("query", "At least one search parameter must be provided")
	}

	return r.query(ctx, "searching contacts",
		`SELECT `+contactColumns+` FROM contacts
		 WHERE user_id = ? AND (`+strings.Join(conds, " OR ")+`)
		 ORDER BY rowid`,
		args...,
	)
}

// BirthdaysBetween returns the user's contacts whose birthday, ignoring the
// year, falls inside window. See model.BirthdayWindow for the comparison.
func (r *ContactDB) BirthdaysBetween(ctx context.Context, userID string, window model.BirthdayWindow) ([]model.Contact, error) {
	start, end := window.Keys()

	cond := birthdayKey + ` BETWEEN ? AND ?`
	if window.Wraps() {
		cond = `(` + birthdayKey + ` >= ? OR ` + birthdayKey + ` <= ?)`
	}

	return r.query(ctx, "listing birthdays",
		`SELECT `+contactColumns+` FROM contacts
		 WHERE user_id = ? AND `+cond+`
		 ORDER BY `+birthdayKey,
		userID, start, end,
	)
}

func (r *ContactDB) query(ctx context.Context, op, query string, args ...any) ([]model.Contact, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	contacts := make([]model.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning contact row: %w", err)
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	return contacts, nil
}

// duplicateContact maps a per-user UNIQUE violation to apperror.ErrDuplicate.
func duplicateContact(err error) *apperror.AppError {
	columns, ok := uniqueViolation(err)
	if !ok {
		return nil
	}
	switch {
	case strings.Contains(columns, "contacts.email"):
		return apperror.Duplicate("email", "Email already registered")
	case strings.Contains(columns, "contacts.phone_number"):
		return apperror.Duplicate("phone_number", "Phone number already registered")
	default:
		return apperror.Duplicate("", "Email or phone number already registered")
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
