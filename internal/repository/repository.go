// Package repository declares the storage contracts the service layer depends on.
//
// The interfaces live here, apart from any concrete backend, so that services
// can be tested against in-memory fakes and the SQLite implementation can be
// swapped without touching business code.
package repository

import (
	"context"

	"github.com/sakif/contacts-api/internal/model"
)

// ListOptions is offset/limit pagination.
type ListOptions struct {
	Limit  int
	Offset int
}

// ContactRepository stores contacts. Every read and write is scoped to the
// owning user: a contact belonging to someone else behaves exactly like one
// that does not exist.
type ContactRepository interface {
	GetByID(ctx context.Context, userID, id string) (*model.Contact, error)
	GetByEmail(ctx context.Context, userID, email string) (*model.Contact, error)
	GetByPhone(ctx context.Context, userID, phone string) (*model.Contact, error)
	List(ctx context.Context, userID string, opts ListOptions) ([]model.Contact, error)
	Create(ctx context.Context, contact *model.Contact) error
	// Update merges patch onto existing and persists the result. existing
	// holds the stored state afterwards.
	Update(ctx context.Context, existing *model.Contact, patch model.ContactPatch) error
	// Delete removes the contact and returns the removed record.
	Delete(ctx context.Context, userID, id string) (*model.Contact, error)
	Search(ctx context.Context, userID string, criteria model.SearchCriteria) ([]model.Contact, error)
	BirthdaysBetween(ctx context.Context, userID string, window model.BirthdayWindow) ([]model.Contact, error)
}

// UserRepository stores accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	// UpdateRefreshToken stores token for the user; nil clears it.
	UpdateRefreshToken(ctx context.Context, userID string, token *string) error
	ConfirmEmail(ctx context.Context, email string) error
	UpdateAvatar(ctx context.Context, email, url string) (*model.User, error)
}
