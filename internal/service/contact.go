// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never *sqlite.DB, so tests run
// against in-memory fakes and return apperror values instead of HTTP codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100

	// BirthdayLookaheadDays is the size of the upcoming birthdays window.
	BirthdayLookaheadDays = 7
)

// ContactService handles business logic for contacts. Every method takes
// the id of the authenticated user and only ever sees that user's contacts.
type ContactService struct {
	repo   repository.ContactRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewContactService creates a ContactService that reads the wall clock.
func NewContactService(repo repository.ContactRepository, logger *slog.Logger) *ContactService {
	return &ContactService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for "today". Tests pin it.
func (s *ContactService) WithClock(now func() time.Time) *ContactService {
	s.now = now
	return s
}

// Create validates and saves a new contact.
//
// Email and phone number are checked up front so the common case gets a
// clear message. Two requests racing past the check are still stopped by
// the table's UNIQUE constraints, which the repository reports with the
// same apperror.ErrDuplicate.
func (s *ContactService) Create(ctx context.Context, userID string, in model.ContactInput) (*model.Contact, error) {
	in.Normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	const dupMessage = "Email or phone number already registered"
	if taken, err := s.emailTaken(ctx, userID, in.Email, ""); err != nil {
		return nil, err
	} else if taken {
		return nil, apperror.Duplicate("email", dupMessage)
	}
	if taken, err := s.phoneTaken(ctx, userID, in.PhoneNumber, ""); err != nil {
		return nil, err
	} else if taken {
		return nil, apperror.Duplicate("phone_number", dupMessage)
	}

	contact := in.ToContact(userID)
	if err := s.repo.Create(ctx, contact); err != nil {
		if !errors.Is(err, apperror.ErrDuplicate) {
			s.logger.Error("failed to create contact",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("creating contact: %w", err)
	}

	s.logger.Info("contact created",
		slog.String("user_id", userID),
		slog.String("id", contact.ID),
	)
	return contact, nil
}

// Get returns one contact or apperror.ErrNotFound.
func (s *ContactService) Get(ctx context.Context, userID, id string) (*model.Contact, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "contact ID is required")
	}
	return s.repo.GetByID(ctx, userID, id)
}

// List returns a page of the user's contacts in insertion order.
//
// PAGINATION:
// limit <= 0 means DefaultListLimit and is capped at MaxListLimit;
// a negative skip is treated as 0.
func (s *ContactService) List(ctx context.Context, userID string, skip, limit int) ([]model.Contact, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if skip < 0 {
		skip = 0
	}

	contacts, err := s.repo.List(ctx, userID, repository.ListOptions{Limit: limit, Offset: skip})
	if err != nil {
		s.logger.Error("failed to list contacts",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	return contacts, nil
}

// Update applies a partial update. Fields absent from patch keep their
// stored values. Uniqueness is only re-checked for an email or phone
// number that actually changes.
func (s *ContactService) Update(ctx context.Context, userID, id string, patch model.ContactPatch) (*model.Contact, error) {
	patch.Normalize()
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	contact, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return contact, nil
	}

	if patch.Email != nil && *patch.Email != contact.Email {
		taken, err := s.emailTaken(ctx, userID, *patch.Email, contact.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperror.Duplicate("email", "Email already registered")
		}
	}
	if patch.PhoneNumber != nil && *patch.PhoneNumber != contact.PhoneNumber {
		taken, err := s.phoneTaken(ctx, userID, *patch.PhoneNumber, contact.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperror.Duplicate("phone_number", "Phone number already registered")
		}
	}

	if err := s.repo.Update(ctx, contact, patch); err != nil {
		if !errors.Is(err, apperror.ErrDuplicate) && !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to update contact",
				slog.String("user_id", userID),
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("updating contact: %w", err)
	}

	s.logger.Info("contact updated",
		slog.String("user_id", userID),
		slog.String("id", contact.ID),
	)
	return contact, nil
}

// Delete removes a contact and returns what was removed.
func (s *ContactService) Delete(ctx context.Context, userID, id string) (*model.Contact, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "contact ID is required")
	}

	contact, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("contact deleted",
		slog.String("user_id", userID),
		slog.String("id", id),
	)
	return contact, nil
}

// Search returns contacts matching ANY supplied criterion exactly.
// At least one criterion is required.
func (s *ContactService) Search(ctx context.Context, userID string, criteria model.SearchCriteria) ([]model.Contact, error) {
	criteria.FirstName = strings.TrimSpace(criteria.FirstName)
	criteria.LastName = strings.TrimSpace(criteria.LastName)
	criteria.Email = strings.TrimSpace(criteria.Email)
	if criteria.IsEmpty() {
		return nil, apperror.ValidationFailed("query", "At least one search parameter must be provided")
	}

	contacts, err := s.repo.Search(ctx, userID, criteria)
	if err != nil {
		return nil, fmt.Errorf("searching contacts: %w", err)
	}
	return contacts, nil
}

// UpcomingBirthdays returns contacts whose birthday falls between today and
// BirthdayLookaheadDays from now, both ends inclusive, wrapping over New Year.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, userID string) ([]model.Contact, error) {
	window := model.UpcomingWindow(s.now(), BirthdayLookaheadDays)

	contacts, err := s.repo.BirthdaysBetween(ctx, userID, window)
	if err != nil {
		return nil, fmt.Errorf("listing upcoming birthdays: %w", err)
	}
	return contacts, nil
}

// emailTaken reports whether another contact of userID (not exceptID) uses email.
func (s *ContactService) emailTaken(ctx context.Context, userID, email, exceptID string) (bool, error) {
	existing, err := s.repo.GetByEmail(ctx, userID, email)
	return takenBy(existing, err, exceptID)
}

// phoneTaken is emailTaken for phone numbers.
func (s *ContactService) phoneTaken(ctx context.Context, userID, phone, exceptID string) (bool, error) {
	existing, err := s.repo.GetByPhone(ctx, userID, phone)
	return takenBy(existing, err, exceptID)
}

func takenBy(existing *model.Contact, err error, exceptID string) (bool, error) {
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking contact uniqueness: %w", err)
	}
	return existing.ID != exceptID, nil
}
