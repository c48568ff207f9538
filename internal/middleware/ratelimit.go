package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/sakif/contacts-api/internal/auth"
)

// RateLimit allows requests per window for each key. keyFuncs default to
// httprate.KeyByIP. Over the limit the client gets 429 with the API's JSON
// error body.
func RateLimit(requests int, window time.Duration, keyFuncs ...httprate.KeyFunc) func(http.Handler) http.Handler {
	if len(keyFuncs) == 0 {
		keyFuncs = []httprate.KeyFunc{httprate.KeyByIP}
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(keyFuncs...),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limited",
				"message": "Too many requests, please slow down",
			})
		}),
	)
}

// KeyByUser keys on the authenticated user set by auth.RequireUser, so the
// budget cannot be reset by forging X-Forwarded-For. Requests without a user
// fall back to the client IP.
func KeyByUser(r *http.Request) (string, error) {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return "user:" + user.ID, nil
	}
	return httprate.KeyByIP(r)
}
