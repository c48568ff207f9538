package middleware

import (
	"log/slog"
	"net/http"

	"github.com/unrolled/secure"
)

// SecureHeaders sets the standard hardening headers. In production plain
// HTTP requests are redirected to HTTPS, honouring X-Forwarded-Proto from
// the proxy in front of us.
func SecureHeaders(production bool, logger *slog.Logger) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.Process(w, r); err != nil {
				// Process has already written the redirect or rejection.
				logger.Warn("secure headers blocked request",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
