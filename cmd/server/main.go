// Package main is the entry point for the contacts API server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (environment, optionally seeded from .env)
// 2. Open long-lived resources (database, Redis, S3, job queue)
// 3. Hand them to internal/server and start it
//
// All actual logic lives in imported packages (internal/server, internal/service, etc.).
//
// The confirmation emails queued here are delivered by cmd/worker.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/avatar"
	"github.com/sakif/contacts-api/internal/cache"
	"github.com/sakif/contacts-api/internal/config"
	"github.com/sakif/contacts-api/internal/jobs"
	sqliteRepo "github.com/sakif/contacts-api/internal/repository/sqlite"
	"github.com/sakif/contacts-api/internal/server"
)

func main() {
	ctx := context.Background()

	// === 1. CONFIGURATION AND LOGGING ===
	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// === 2. DATABASE ===
	// os.MkdirAll works like `mkdir -p`; migrations run inside sqlite.New.
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	db, err := sqliteRepo.New(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// === 3. REDIS USER CACHE ===
	// Optional: without Redis every authenticated request reads the database.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, user cache disabled", slog.String("error", err.Error()))
	} else {
		defer redisClient.Close()
	}
	deps := server.Deps{
		DB:    db,
		Cache: cache.NewUserCache(redisClient, cache.UserTTL),
	}

	// === 4. EMAIL QUEUE ===
	// Enqueue failures are logged by AuthService and never fail a signup.
	queue := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer queue.Close()
	deps.Confirmations = queue

	// === 5. AVATAR STORAGE ===
	// Only assign when configured: a nil *S3Store inside the interface
	// would not compare equal to nil.
	if s3cfg := cfg.S3(); s3cfg.Enabled() {
		store, err := avatar.NewS3Store(ctx, s3cfg)
		if err != nil {
			logger.Error("failed to configure S3", slog.String("error", err.Error()))
			os.Exit(1)
		}
		deps.AvatarStore = store
	} else {
		logger.Warn("S3 not configured, avatar uploads disabled")
	}

	// === 6. GITHUB SIGN-IN ===
	if cfg.GitHubEnabled() {
		deps.GitHub = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	} else {
		logger.Info("GitHub sign-in disabled (GITHUB_CLIENT_ID / GITHUB_CLIENT_SECRET not set)")
	}

	// === 7. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
