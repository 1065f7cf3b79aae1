package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Client enqueues claimed posts for the publish workers. It satisfies the
// Dispatcher interfaces of both the scheduler and the admin service.
type Client struct {
	asynq *asynq.Client
}

func NewClient(asynqClient *asynq.Client) *Client {
	return &Client{asynq: asynqClient}
}

func (c *Client) Dispatch(ctx context.Context, postID string) error {
	payload, err := json.Marshal(PublishPostPayload{PostID: postID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, payload, asynq.MaxRetry(2))
	if _, err := c.asynq.EnqueueContext(ctx, task); err != nil {
		return err
	}

	slog.Info("publish task enqueued", "post_id", postID)
	return nil
}
