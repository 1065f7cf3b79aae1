package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postengine/internal/service"
)

type Worker struct {
	coordinator *service.PublishCoordinator
}

func NewWorker(coordinator *service.PublishCoordinator) *Worker {
	return &Worker{coordinator: coordinator}
}

// HandlePublishPostTask runs one publish cycle. Per-platform failures are
// already aggregated into the post by the coordinator; an error returned here
// means no final state was reached (asynq retries the task, and the grace
// re-claim covers the rest).
func (w *Worker) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	if err := w.coordinator.Publish(ctx, payload.PostID); err != nil {
		slog.Error("publish cycle failed", "post_id", payload.PostID, "error", err.Error())
		return err
	}
	return nil
}
