package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/contacts-api/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// Only THIS package can create a key of type contextKey, so no other package
// can read or shadow the values stored under it.
type contextKey string

const userKey contextKey = "user"

// ErrNoBearer is returned when the Authorization header is missing or is not
// a bearer credential.
var ErrNoBearer = errors.New("auth: missing bearer token")

// UserLoader resolves a user ID taken from a token into the full account.
// The service layer implements it (with caching), so the middleware never
// touches storage directly.
type UserLoader interface {
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// RequireUser is a middleware that enforces authentication on protected routes.
//
// It reads "Authorization: Bearer <token>", validates it as an access token,
// loads the account through loader and stores it in the request context.
// Any failure ends the request with 401 and the standard JSON error body.
//
// MIDDLEWARE PATTERN IN GO:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... before ...
//	        next.ServeHTTP(w, r)
//	        // ... after ...
//	    })
//	}
func RequireUser(tokens *TokenService, loader UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := BearerToken(r)
			if err != nil {
				writeUnauthorized(w, "Not authenticated")
				return
			}

			userID, err := tokens.Validate(raw, ScopeAccess)
			if err != nil {
				writeUnauthorized(w, "Could not validate credentials")
				return
			}

			user, err := loader.CurrentUser(r.Context(), userID)
			if err != nil {
				// A valid token for a user that no longer loads is treated the
				// same as a bad token.
				writeUnauthorized(w, "Could not validate credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns a copy of ctx carrying user. Handler tests use it to
// skip the middleware.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user stored by RequireUser.
//
// Usage in handlers:
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // route was not behind RequireUser
//	}
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// BearerToken extracts the credential from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNoBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoBearer
	}
	return token, nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
