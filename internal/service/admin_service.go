package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postengine/internal/models"
	"github.com/maheshrc27/postengine/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrPostNotFound     = errors.New("post does not exist")
	ErrPostNotClaimable = errors.New("post is not in a publishable state")
	ErrPostNotFailed    = errors.New("only failed posts can be retried")
)

// Dispatcher hands a claimed post to the publish workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, postID string) error
}

// AdminService exposes the operator surface: publish-now (bypasses the time
// gate), retry of failed posts, and repost. All three go through the same
// claim -> dispatch -> finalize path as scheduled publishing.
type AdminService interface {
	PublishNow(ctx context.Context, postID string) error
	Retry(ctx context.Context, postID string) error
	Repost(ctx context.Context, sourcePostID string) (string, error)
}

type adminService struct {
	pr         repository.PostRepository
	dispatcher Dispatcher
	grace      time.Duration
}

func NewAdminService(pr repository.PostRepository, dispatcher Dispatcher, grace time.Duration) AdminService {
	return &adminService{
		pr:         pr,
		dispatcher: dispatcher,
		grace:      grace,
	}
}

// PublishNow claims a scheduled post regardless of its scheduled_for and
// dispatches it immediately.
func (s *adminService) PublishNow(ctx context.Context, postID string) error {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrPostNotFound
	}

	claimed, err := s.pr.Claim(ctx, postID, time.Now(), s.grace)
	if err != nil {
		return err
	}
	if !claimed {
		slog.Info("publish-now claim lost", "post_id", postID, "status", post.Status)
		return ErrPostNotClaimable
	}

	return s.dispatcher.Dispatch(ctx, postID)
}

func (s *adminService) Retry(ctx context.Context, postID string) error {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrPostNotFound
	}
	if post.Status != models.PostStatusFailed {
		return ErrPostNotFailed
	}

	claimed, err := s.pr.ClaimFailed(ctx, postID)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrPostNotClaimable
	}

	return s.dispatcher.Dispatch(ctx, postID)
}

// Repost copies content, media, platforms and comments into a new post
// scheduled for now, then pushes the copy through the normal claim and
// publish path. The source post is untouched.
func (s *adminService) Repost(ctx context.Context, sourcePostID string) (string, error) {
	source, err := s.pr.GetByID(ctx, sourcePostID)
	if err != nil {
		return "", err
	}
	if source == nil {
		return "", ErrPostNotFound
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	copyPost := &models.Post{
		ID:           id,
		Content:      source.Content,
		Media:        source.Media,
		Platforms:    source.Platforms,
		Comments:     source.Comments,
		ScheduledFor: time.Now(),
		Status:       models.PostStatusScheduled,
	}
	if err := s.pr.Create(ctx, copyPost); err != nil {
		return "", fmt.Errorf("creating repost of %s: %w", sourcePostID, err)
	}

	claimed, err := s.pr.Claim(ctx, id, time.Now(), s.grace)
	if err != nil {
		return id, err
	}
	if claimed {
		if err := s.dispatcher.Dispatch(ctx, id); err != nil {
			return id, err
		}
	}
	return id, nil
}
