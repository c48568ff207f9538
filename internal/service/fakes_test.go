package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// Hand-written in-memory implementations of the repository interfaces.
// They keep the same contracts as the SQLite versions (owner scoping,
// ErrNotFound, ErrDuplicate on the per-user unique fields) so the service
// tests exercise business rules without a database.

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts []*model.Contact // insertion order
	nextID   int
	// createErr, when set, is returned by Create.
	createErr error
	// updates counts successful Update calls.
	updates int
}

var _ repository.ContactRepository = (*fakeContactRepo)(nil)

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{}
}

func (f *fakeContactRepo) find(match func(*model.Contact) bool) (*model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contacts {
		if match(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperror.NotFoundMessage("Contact not found")
}

func (f *fakeContactRepo) GetByID(_ context.Context, userID, id string) (*model.Contact, error) {
	return f.find(func(c *model.Contact) bool { return c.UserID == userID && c.ID == id })
}

func (f *fakeContactRepo) GetByEmail(_ context.Context, userID, email string) (*model.Contact, error) {
	return f.find(func(c *model.Contact) bool { return c.UserID == userID && c.Email == email })
}

func (f *fakeContactRepo) GetByPhone(_ context.Context, userID, phone string) (*model.Contact, error) {
	return f.find(func(c *model.Contact) bool { return c.UserID == userID && c.PhoneNumber == phone })
}

func (f *fakeContactRepo) List(_ context.Context, userID string, opts repository.ListOptions) ([]model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owned []model.Contact
	for _, c := range f.contacts {
		if c.UserID == userID {
			owned = append(owned, *c)
		}
	}
	if opts.Offset >= len(owned) {
		return []model.Contact{}, nil
	}
	owned = owned[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(owned) {
		owned = owned[:opts.Limit]
	}
	return owned, nil
}

func (f *fakeContactRepo) Create(_ context.Context, contact *model.Contact) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contacts {
		if c.UserID == contact.UserID && (c.Email == contact.Email || c.PhoneNumber == contact.PhoneNumber) {
			return apperror.Duplicate("email", "Email or phone number already registered")
		}
	}
	f.nextID++
	contact.ID = fmt.Sprintf("contact-%d", f.nextID)
	stored := *contact
	f.contacts = append(f.contacts, &stored)
	return nil
}

func (f *fakeContactRepo) Update(_ context.Context, existing *model.Contact, patch model.ContactPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contacts {
		if c.UserID == existing.UserID && c.ID == existing.ID {
			c.Apply(patch)
			*existing = *c
			f.updates++
			return nil
		}
	}
	return apperror.NotFoundMessage("Contact not found")
}

func (f *fakeContactRepo) Delete(_ context.Context, userID, id string) (*model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.contacts {
		if c.UserID == userID && c.ID == id {
			f.contacts = append(f.contacts[:i], f.contacts[i+1:]...)
			return c, nil
		}
	}
	return nil, apperror.NotFoundMessage("Contact not found")
}

func (f *fakeContactRepo) Search(_ context.Context, userID string, sc model.SearchCriteria) ([]model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Contact{}
	for _, c := range f.contacts {
		if c.UserID != userID {
			continue
		}
		if (sc.FirstName != "" && c.FirstName == sc.FirstName) ||
			(sc.LastName != "" && c.LastName == sc.LastName) ||
			(sc.Email != "" && c.Email == sc.Email) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeContactRepo) BirthdaysBetween(_ context.Context, userID string, w model.BirthdayWindow) ([]model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Contact{}
	for _, c := range f.contacts {
		if c.UserID == userID && w.Contains(c.Birthday) {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User // keyed by ID
	nextID int
	// getByIDCalls counts GetByID so cache tests can assert it was skipped.
	getByIDCalls int
	// getErr, when set, is returned by every lookup.
	getErr error
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) lookup(match func(*model.User) bool) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFoundMessage("user not found")
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getByIDCalls++
	return f.lookup(func(u *model.User) bool { return u.ID == id })
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(func(u *model.User) bool { return u.Email == email })
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(func(u *model.User) bool { return u.Username == username })
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username {
			return apperror.Conflict("Username already taken")
		}
		if u.Email == user.Email {
			return apperror.Conflict("Account already exists")
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) UpdateRefreshToken(_ context.Context, userID string, token *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.RefreshToken = token
	return nil
}

func (f *fakeUserRepo) ConfirmEmail(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			u.Confirmed = true
			return nil
		}
	}
	return apperror.NotFoundMessage("user not found")
}

func (f *fakeUserRepo) UpdateAvatar(_ context.Context, email, url string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			u.Avatar = &url
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFoundMessage("user not found")
}

// stored returns the repository's copy of a user, bypassing call counting.
func (f *fakeUserRepo) stored(id string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.users[id]
	return &cp
}

// =========================================================================
// FAKE COLLABORATORS
// =========================================================================

type fakeCache struct {
	mu      sync.Mutex
	users   map[string]model.User
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{users: make(map[string]model.User)}
}

func (c *fakeCache) Get(_ context.Context, id string) (*model.User, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[id]
	if !ok {
		return nil, false, nil
	}
	return &u, true, nil
}

func (c *fakeCache) Set(_ context.Context, u *model.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = *u
	return nil
}

func (c *fakeCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, id)
	c.deletes++
	return nil
}

type sentConfirmation struct {
	Email, Username, Link string
}

type fakeSender struct {
	sent []sentConfirmation
	err  error
}

func (f *fakeSender) SendConfirmation(_ context.Context, email, username, link string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentConfirmation{email, username, link})
	return nil
}

type fakeResolver struct {
	url string
	err error
}

func (f fakeResolver) Resolve(context.Context, string) (string, error) {
	return f.url, f.err
}

type fakeStore struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeStore) Upload(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.key, f.contentType, f.body = key, contentType, data
	return "https://cdn.example.com/" + key, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
