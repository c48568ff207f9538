// Package main runs the background worker that delivers confirmation email
// queued by the API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sakif/contacts-api/internal/config"
	"github.com/sakif/contacts-api/internal/jobs"
	"github.com/sakif/contacts-api/internal/mail"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	smtp := cfg.SMTP()
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Email:       jobs.NewEmailHandler(mail.NewSMTPMailer(smtp), logger),
		Logger:      logger,
	})
	if err != nil {
		logger.Error("init worker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("worker starting",
		slog.String("redis", cfg.RedisAddr),
		slog.String("smtp", smtp.Host),
		slog.Int("concurrency", cfg.WorkerConcurrency),
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
