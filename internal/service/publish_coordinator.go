package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/maheshrc27/postengine/internal/models"
	"github.com/maheshrc27/postengine/internal/platforms"
	"github.com/maheshrc27/postengine/internal/repository"
)

const (
	platformConcurrencyLimit = 10
	commentDelay             = 1 * time.Second
)

// PublishCoordinator takes one claimed post through media resolution, token
// checks, the per-platform publish calls and comment follow-ups, then writes
// the final status. Platforms are independent failure domains: one platform
// succeeding is enough for the post to end up published, with the other
// failures kept in error_detail.
type PublishCoordinator struct {
	pr       repository.PostRepository
	cr       repository.ConnectionRepository
	registry platforms.Registry
	guard    *TokenGuard
	resolver *MediaResolver

	delay time.Duration
}

func NewPublishCoordinator(
	pr repository.PostRepository,
	cr repository.ConnectionRepository,
	registry platforms.Registry,
	guard *TokenGuard,
	resolver *MediaResolver) *PublishCoordinator {
	return &PublishCoordinator{
		pr:       pr,
		cr:       cr,
		registry: registry,
		guard:    guard,
		resolver: resolver,
		delay:    commentDelay,
	}
}

// Publish runs one publish cycle for a post already claimed into publishing.
// It returns an error only when it cannot reach a final state at all (post
// missing, storage unreachable); per-platform failures are aggregated, never
// raised.
func (c *PublishCoordinator) Publish(ctx context.Context, postID string) error {
	post, err := c.pr.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("loading post %s: %w", postID, err)
	}
	if post == nil {
		return fmt.Errorf("post %s not found", postID)
	}

	var assets []platforms.Asset
	var resolveErr error
	if len(post.Media) > 0 {
		assets, resolveErr = c.resolver.Resolve(ctx, post.Media)
		if resolveErr != nil {
			slog.Warn("media resolution failed", "post_id", postID, "error", resolveErr.Error())
		}
	}

	outcomes := make([]models.PublishOutcome, len(post.Platforms))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, platformConcurrencyLimit)

	for i, platform := range post.Platforms {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, platform models.Platform) {
			defer wg.Done()
			defer func() { <-semaphore }()
			outcomes[i] = c.publishOne(ctx, post, platform, assets, resolveErr)
		}(i, platform)
	}
	wg.Wait()

	publishedOn := make(map[models.Platform]time.Time)
	var errLines []string
	for _, outcome := range outcomes {
		if outcome.Success {
			publishedOn[outcome.Platform] = time.Now()
			continue
		}
		errLines = append(errLines, fmt.Sprintf("%s: %v", outcome.Platform, outcome.Err))
	}

	status := models.PostStatusFailed
	postedDelta := 0
	if len(publishedOn) > 0 {
		status = models.PostStatusPublished
		postedDelta = 1
	}
	errorDetail := strings.Join(errLines, "; ")

	if err := c.pr.SetFinalStatus(ctx, post.ID, status, publishedOn, errorDetail, postedDelta); err != nil {
		return fmt.Errorf("finalizing post %s: %w", post.ID, err)
	}

	slog.Info("publish cycle complete",
		"post_id", post.ID,
		"status", status,
		"succeeded", len(publishedOn),
		"failed", len(errLines))
	return nil
}

// requiresMedia reports whether the platform cannot post text-only.
func requiresMedia(platform models.Platform) bool {
	return platform == models.PlatformInstagram || platform == models.PlatformThreads
}

func (c *PublishCoordinator) publishOne(ctx context.Context, post *models.Post, platform models.Platform, assets []platforms.Asset, resolveErr error) models.PublishOutcome {
	outcome := models.PublishOutcome{Platform: platform}

	adapter, ok := c.registry.Get(platform)
	if !ok {
		outcome.Err = fmt.Errorf("no adapter registered for platform %s", platform)
		return outcome
	}

	conn, err := c.cr.GetActive(ctx, platform)
	if err != nil {
		outcome.Err = fmt.Errorf("loading connection: %w", err)
		return outcome
	}
	if conn == nil {
		outcome.Err = fmt.Errorf("no active %s connection", platform)
		return outcome
	}

	// Validation failures must never reach the network.
	if resolveErr != nil {
		outcome.Err = &platforms.ValidationError{Platform: platform, Reason: resolveErr.Error()}
		return outcome
	}
	if limit := adapter.CharacterLimit(); utf8.RuneCountInString(post.Content) > limit {
		outcome.Err = &platforms.ValidationError{
			Platform: platform,
			Reason:   fmt.Sprintf("content is %d characters, limit is %d", utf8.RuneCountInString(post.Content), limit),
		}
		return outcome
	}
	if requiresMedia(platform) && len(assets) == 0 {
		outcome.Err = &platforms.ValidationError{Platform: platform, Reason: "requires at least one image or video"}
		return outcome
	}

	token, err := c.guard.EnsureValid(ctx, adapter, conn)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	if conn.AccountRef == "" {
		if resolver, ok := adapter.(platforms.AccountResolver); ok {
			ref, err := resolver.ResolveAccountRef(ctx, token)
			if err != nil {
				outcome.Err = fmt.Errorf("resolving account id: %w", err)
				return outcome
			}
			conn.AccountRef = ref
			if err := c.cr.SetAccountRef(ctx, platform, ref); err != nil {
				slog.Warn("caching account ref failed", "platform", string(platform), "error", err.Error())
			}
		}
	}

	externalID, err := adapter.Publish(ctx, token, post.Content, assets, conn)
	if err != nil && platforms.IsAuthRetryable(err) {
		// Tokens can be invalidated out-of-band; one refresh-and-retry cycle.
		slog.Info("publish rejected with auth error, refreshing once", "platform", string(platform))
		retryToken, refreshErr := c.guard.RefreshForRetry(ctx, adapter, conn)
		if refreshErr != nil {
			slog.Warn("reactive refresh failed", "platform", string(platform), "error", refreshErr.Error())
		} else {
			token = retryToken
			externalID, err = adapter.Publish(ctx, token, post.Content, assets, conn)
		}
	}
	if err != nil {
		outcome.Err = err
		return outcome
	}

	// A success flag without a post id is a platform contract violation, never
	// a success.
	if externalID == "" {
		outcome.Err = &platforms.ProtocolError{
			Platform: platform,
			Endpoint: "publish",
			Body:     "no post id returned",
		}
		return outcome
	}

	outcome.Success = true
	outcome.ExternalPostID = externalID

	c.postComments(ctx, adapter, token, conn, externalID, post.Comments)
	return outcome
}

// postComments posts the follow-up comments in order, spaced by the comment
// delay. Comments are best-effort: a failure is logged and the rest are still
// attempted; empty comments are skipped.
func (c *PublishCoordinator) postComments(ctx context.Context, adapter platforms.Adapter, token string, conn *models.PlatformConnection, externalPostID string, comments []string) {
	posted := 0
	for i, text := range comments {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}

		if posted > 0 {
			timer := time.NewTimer(c.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				slog.Warn("comment posting cancelled", "platform", string(adapter.Name()), "remaining", len(comments)-i)
				return
			case <-timer.C:
			}
		}
		posted++

		if _, err := adapter.Comment(ctx, token, conn, externalPostID, trimmed); err != nil {
			slog.Warn("posting comment failed",
				"platform", string(adapter.Name()),
				"comment_index", i,
				"error", err.Error())
		}
	}
}
