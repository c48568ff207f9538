package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
)

// Worker wraps the Asynq server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Concurrency int
	Email       *EmailHandler
	Logger      *slog.Logger
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Email == nil {
		return nil, errors.New("jobs: email handler is required")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		Logger: slogAdapter{cfg.Logger},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeConfirmEmail, cfg.Email.HandleConfirmEmail)

	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// slogAdapter routes asynq's internal logging into slog.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) logger() *slog.Logger {
	if a.l == nil {
		return slog.Default()
	}
	return a.l
}

func (a slogAdapter) Debug(args ...any) { a.logger().Debug(sprint(args)) }
func (a slogAdapter) Info(args ...any)  { a.logger().Info(sprint(args)) }
func (a slogAdapter) Warn(args ...any)  { a.logger().Warn(sprint(args)) }
func (a slogAdapter) Error(args ...any) { a.logger().Error(sprint(args)) }
func (a slogAdapter) Fatal(args ...any) {
	a.logger().Error(sprint(args))
	os.Exit(1)
}

func sprint(args []any) string { return fmt.Sprint(args...) }
