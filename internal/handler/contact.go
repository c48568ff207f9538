package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/service"
)

// ContactHandler serves /api/contacts. Every route sits behind
// auth.RequireUser, so the owner always comes from the request context.
type ContactHandler struct {
	contacts *service.ContactService
	logger   *slog.Logger
}

// NewContactHandler creates a ContactHandler.
func NewContactHandler(contacts *service.ContactService, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{contacts: contacts, logger: logger}
}

// HandleCreate saves a new contact.
//
// HTTP: POST /api/contacts
// REQUEST BODY: {"first_name": "Ada", "last_name": "Lovelace", "email": "...",
// "phone_number": "...", "birthday": "1815-12-10", "additional_data": "..."}
func (h *ContactHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in model.ContactInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	contact, err := h.contacts.Create(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

// HandleList returns a page of contacts.
//
// HTTP: GET /api/contacts?skip=0&limit=100
func (h *ContactHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultListLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	contacts, err := h.contacts.List(r.Context(), user.ID, skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(contacts))
}

// HandleGet returns one contact.
//
// HTTP: GET /api/contacts/{id}
func (h *ContactHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	contact, err := h.contacts.Get(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

// HandleSearch finds contacts matching any of the supplied fields.
//
// HTTP: GET /api/contacts/search?first_name=&last_name=&email=
func (h *ContactHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	contacts, err := h.contacts.Search(r.Context(), user.ID, model.SearchCriteria{
		FirstName: q.Get("first_name"),
		LastName:  q.Get("last_name"),
		Email:     q.Get("email"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(contacts))
}

// HandleBirthdays lists contacts with a birthday in the next seven days.
//
// HTTP: GET /api/contacts/birthdays
func (h *ContactHandler) HandleBirthdays(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	contacts, err := h.contacts.UpcomingBirthdays(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(contacts))
}

// HandleUpdate applies a partial update: only the keys present in the body change.
//
// HTTP: PUT /api/contacts/{id}
func (h *ContactHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var patch model.ContactPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	contact, err := h.contacts.Update(r.Context(), user.ID, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

// HandleDelete removes a contact and echoes the removed record.
//
// HTTP: DELETE /api/contacts/{id}
func (h *ContactHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	contact, err := h.contacts.Delete(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

// requireUser reads the user set by auth.RequireUser. It only fails when a
// route was mounted without the middleware.
func requireUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Not authenticated"))
		return nil, false
	}
	return user, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(key, key+" must be an integer")
	}
	return n, nil
}

// nonNil makes empty results encode as [] rather than null.
func nonNil(contacts []model.Contact) []model.Contact {
	if contacts == nil {
		return []model.Contact{}
	}
	return contacts
}
