// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and routes.
// It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go opens the long-lived resources (database, Redis, S3, queue client)
// and passes them in as Deps. New builds the rest:
//
//	sqlite.DB → ContactService / AuthService / UserService → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place instead of being scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/avatar"
	"github.com/sakif/contacts-api/internal/config"
	"github.com/sakif/contacts-api/internal/handler"
	"github.com/sakif/contacts-api/internal/middleware"
	sqliteRepo "github.com/sakif/contacts-api/internal/repository/sqlite"
	"github.com/sakif/contacts-api/internal/service"
)

// Deps are the resources opened by main. Only DB is required.
type Deps struct {
	DB            *sqliteRepo.DB
	Cache         service.UserCache
	Confirmations service.ConfirmationSender
	AvatarStore   avatar.Store
	GitHub        handler.GitHubAuthenticator
	// Passwords defaults to bcrypt at the production cost.
	Passwords *auth.PasswordService
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	deps    Deps
	tokens  *auth.TokenService
	metrics *middleware.Metrics
}

// New creates a Server and registers every route.
//
// Each layer only receives what it needs:
// - Services get repository interfaces (not the concrete sqlite.DB)
// - Handlers get services (not repositories)
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("server: database is required")
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("server: creating token service: %w", err)
	}

	if deps.Passwords == nil {
		deps.Passwords = auth.NewPasswordService()
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		deps:    deps,
		tokens:  tokens,
		metrics: middleware.NewMetrics(),
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /                                  → {"message": "Contacts Application"}
//	GET    /healthz                           → database ping
//	GET    /metrics                           → Prometheus
//	POST   /api/auth/signup                   → register
//	POST   /api/auth/login                    → token pair (form or JSON)
//	GET    /api/auth/refresh_token            → rotate token pair (refresh bearer)
//	POST   /api/auth/logout                   → revoke refresh token      [auth]
//	GET    /api/auth/confirmed_email/{token}  → confirm email
//	POST   /api/auth/request_email            → re-send confirmation
//	GET    /api/auth/github/login|callback    → GitHub sign-in
//	GET    /api/users/me                      → profile                   [auth]
//	PATCH  /api/users/avatar                  → upload avatar             [auth]
//	POST   /api/contacts                      → create                    [auth, rate limited]
//	GET    /api/contacts                      → list                      [auth, rate limited]
//	GET    /api/contacts/search               → OR search                 [auth]
//	GET    /api/contacts/birthdays            → next 7 days               [auth]
//	GET    /api/contacts/{id}                 → get                       [auth]
//	PUT    /api/contacts/{id}                 → partial update            [auth]
//	DELETE /api/contacts/{id}                 → delete                    [auth]
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, so every later log line can carry it
// 2. RealIP, before anything keyed by client address (rate limiting)
// 3. Logger and Metrics wrap everything below them, including panics
// 4. Recoverer turns panics into 500s
// 5. Timeout cancels the request context after REQUEST_TIMEOUT
// 6. Secure headers
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(s.metrics.Middleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.requestTimeout()))
	r.Use(middleware.SecureHeaders(s.config.IsProduction(), s.logger))

	users := s.deps.DB.Users()
	authService := service.NewAuthService(service.AuthServiceConfig{
		Users:         users,
		Tokens:        s.tokens,
		Passwords:     s.deps.Passwords,
		Avatars:       avatar.Gravatar{Default: "identicon", Size: 200},
		Confirmations: s.deps.Confirmations,
		Cache:         s.deps.Cache,
		Logger:        s.logger,
	})
	contactService := service.NewContactService(s.deps.DB.Contacts(), s.logger)
	userService := service.NewUserService(users, s.deps.AvatarStore, s.deps.Cache, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.deps.GitHub, s.config.PublicBaseURL, s.config.IsProduction(), s.logger)
	contactHandler := handler.NewContactHandler(contactService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	healthHandler := handler.NewHealthHandler(s.deps.DB, s.logger)

	requireUser := auth.RequireUser(s.tokens, authService)

	r.Get("/", handler.HandleRoot)
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
			r.Get("/refresh_token", authHandler.HandleRefresh)
			r.With(requireUser).Post("/logout", authHandler.HandleLogout)
			r.Get("/confirmed_email/{token}", authHandler.HandleConfirmedEmail)
			r.Post("/request_email", authHandler.HandleRequestEmail)
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Get("/users/me", userHandler.HandleMe)
			r.Patch("/users/avatar", userHandler.HandleAvatar)

			// Create and list each get their own per-user budget.
			perMinute := s.config.RateLimitPerMinute
			r.Route("/contacts", func(r chi.Router) {
				r.With(middleware.RateLimit(perMinute, time.Minute, middleware.KeyByUser)).Post("/", contactHandler.HandleCreate)
				r.With(middleware.RateLimit(perMinute, time.Minute, middleware.KeyByUser)).Get("/", contactHandler.HandleList)
				r.Get("/search", contactHandler.HandleSearch)
				r.Get("/birthdays", contactHandler.HandleBirthdays)
				r.Get("/{id}", contactHandler.HandleGet)
				r.Put("/{id}", contactHandler.HandleUpdate)
				r.Delete("/{id}", contactHandler.HandleDelete)
			})
		})
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.config.RequestTimeout > 0 {
		return s.config.RequestTimeout
	}
	return 30 * time.Second
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// Resources in Deps belong to main, which closes them after Start returns.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.requestTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.PublicBaseURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
