package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// SendConfirmation enqueues a confirmation email for the account.
func (c *Client) SendConfirmation(ctx context.Context, email, username, link string) error {
	task, err := NewConfirmEmailTask(ConfirmEmailPayload{
		Email:    email,
		Username: username,
		Link:     link,
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
