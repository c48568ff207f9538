package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sakif/contacts-api/internal/model"
)

// fakeLoader resolves a fixed set of users.
type fakeLoader struct {
	users map[string]*model.User
}

func (f *fakeLoader) CurrentUser(_ context.Context, id string) (*model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

// protected echoes the username of the user the middleware stored.
func protected(t *testing.T, ts *TokenService, loader UserLoader) http.Handler {
	t.Helper()
	return RequireUser(ts, loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			t.Error("UserFromContext() found no user behind RequireUser")
		}
		w.Write([]byte(u.Username))
	}))
}

func TestRequireUser(t *testing.T) {
	ts := newTestTokenService(t)
	loader := &fakeLoader{users: map[string]*model.User{"u1": {ID: "u1", Username: "alice"}}}

	access, _ := ts.Generate("u1", ScopeAccess)
	refresh, _ := ts.Generate("u1", ScopeRefresh)
	expired, _ := ts.GenerateWithDuration("u1", ScopeAccess, -time.Minute)
	orphan, _ := ts.Generate("deleted-user", ScopeAccess)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid access token", "Bearer " + access, http.StatusOK},
		{"lowercase scheme", "bearer " + access, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"refresh token rejected", "Bearer " + refresh, http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"unknown user", "Bearer " + orphan, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			protected(t, ts, loader).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != "alice" {
				t.Errorf("body = %q, want alice", rec.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized {
				var body map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("401 body is not JSON: %v", err)
				}
				if body["error"] != "unauthorized" {
					t.Errorf("error = %q, want unauthorized", body["error"])
				}
				if rec.Header().Get("WWW-Authenticate") != "Bearer" {
					t.Error("missing WWW-Authenticate: Bearer header")
				}
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer   abc.def.ghi ")

	got, err := BearerToken(req)
	if err != nil {
		t.Fatalf("BearerToken() error = %v", err)
	}
	if got != "abc.def.ghi" {
		t.Errorf("BearerToken() = %q, want abc.def.ghi", got)
	}

	req.Header.Set("Authorization", "Bearer ")
	if _, err := BearerToken(req); !errors.Is(err, ErrNoBearer) {
		t.Errorf("BearerToken(empty) error = %v, want ErrNoBearer", err)
	}
}

func TestUserFromContext_Empty(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Error("UserFromContext() on a bare context should report false")
	}
}
