package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/postengine/internal/repository"
)

// ClaimGrace is how long a post may sit in publishing before it is treated
// as abandoned (crashed worker) and becomes re-claimable.
const ClaimGrace = 15 * time.Minute

// Dispatcher hands a claimed post to the publish workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, postID string) error
}

// DueScheduler polls storage for due posts on each tick, claims them one by
// one and dispatches the winners. The claim is the only thing preventing a
// double publish when ticks overlap or multiple processes run; losing a claim
// is normal and just skipped.
type DueScheduler struct {
	pr         repository.PostRepository
	dispatcher Dispatcher
	grace      time.Duration
}

func NewDueScheduler(pr repository.PostRepository, dispatcher Dispatcher) *DueScheduler {
	return &DueScheduler{
		pr:         pr,
		dispatcher: dispatcher,
		grace:      ClaimGrace,
	}
}

// Tick is the cron entrypoint. Errors never propagate to the cron layer: a
// broken tick is logged and the next one runs regardless.
func (s *DueScheduler) Tick() {
	s.RunOnce(context.Background(), time.Now())
}

func (s *DueScheduler) RunOnce(ctx context.Context, now time.Time) {
	ids, err := s.pr.FindDue(ctx, now, s.grace)
	if err != nil {
		slog.Error("querying due posts failed", "error", err.Error())
		return
	}
	if len(ids) == 0 {
		return
	}
	slog.Info("due posts found", "count", len(ids))

	for _, id := range ids {
		claimed, err := s.pr.Claim(ctx, id, now, s.grace)
		if err != nil {
			slog.Error("claiming post failed", "post_id", id, "error", err.Error())
			continue
		}
		if !claimed {
			// Another tick or process got there first.
			continue
		}

		if err := s.dispatcher.Dispatch(ctx, id); err != nil {
			// The post stays in publishing and is re-claimed after the grace
			// period.
			slog.Error("dispatching post failed", "post_id", id, "error", err.Error())
		}
	}
}
