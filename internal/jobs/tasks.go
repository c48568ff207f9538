// Package jobs holds the background tasks run by cmd/worker and the client
// the API uses to enqueue them.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sakif/contacts-api/internal/mail"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeConfirmEmail sends the account confirmation email.
	TaskTypeConfirmEmail = "email:confirm"
)

// ConfirmEmailPayload describes one confirmation email.
type ConfirmEmailPayload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Link     string `json:"link"`
}

// NewConfirmEmailTask constructs an Asynq task.
func NewConfirmEmailTask(payload ConfirmEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeConfirmEmail, data, asynq.MaxRetry(5)), nil
}

// EmailHandler delivers email tasks through a Mailer.
type EmailHandler struct {
	mailer mail.Mailer
	logger *slog.Logger
}

// NewEmailHandler constructs the handler.
func NewEmailHandler(mailer mail.Mailer, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{mailer: mailer, logger: logger}
}

// HandleConfirmEmail processes TaskTypeConfirmEmail tasks. A malformed
// payload will never succeed, so it is not retried; delivery errors are.
func (h *EmailHandler) HandleConfirmEmail(ctx context.Context, t *asynq.Task) error {
	var payload ConfirmEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: decoding confirm email payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Email == "" || payload.Link == "" {
		return fmt.Errorf("jobs: confirm email payload missing email or link: %w", asynq.SkipRetry)
	}

	msg, err := mail.RenderConfirmation(payload.Email, mail.ConfirmationData{
		Username: payload.Username,
		Link:     payload.Link,
	})
	if err != nil {
		return fmt.Errorf("jobs: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.mailer.Send(ctx, msg); err != nil {
		h.logger.Warn("confirmation email failed", slog.String("to", payload.Email), slog.Any("error", err))
		return err
	}

	h.logger.Info("confirmation email sent", slog.String("to", payload.Email))
	return nil
}
