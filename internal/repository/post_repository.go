package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postengine/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id string) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	ListByStatus(ctx context.Context, status string) ([]*models.Post, error)
	// FindDue returns ids of scheduled posts whose time has arrived, plus posts
	// stuck in publishing longer than grace (crash recovery).
	FindDue(ctx context.Context, now time.Time, grace time.Duration) ([]string, error)
	// Claim atomically transitions scheduled -> publishing (or re-claims a stale
	// publishing row). Returns false when another worker already holds the post.
	Claim(ctx context.Context, id string, now time.Time, grace time.Duration) (bool, error)
	// ClaimFailed transitions failed -> publishing for the manual retry path.
	ClaimFailed(ctx context.Context, id string) (bool, error)
	SetFinalStatus(ctx context.Context, id, status string, publishedOn map[models.Platform]time.Time, errorDetail string, postedDelta int) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, content, media, platforms, comments, scheduled_for, status, published_on, error_detail, times_posted, created_at, updated_at`

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	query := `
		INSERT INTO posts (id, content, media, platforms, comments, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	media, err := json.Marshal(post.Media)
	if err != nil {
		return err
	}
	platforms, err := json.Marshal(post.Platforms)
	if err != nil {
		return err
	}
	comments, err := json.Marshal(post.Comments)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, post.ID, post.Content, media, platforms, comments, post.ScheduledFor, post.Status)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	return scanPost(r.db.QueryRowContext(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var media, platforms, comments, publishedOn []byte
	var errorDetail sql.NullString

	err := row.Scan(&post.ID, &post.Content, &media, &platforms, &comments,
		&post.ScheduledFor, &post.Status, &publishedOn, &errorDetail,
		&post.TimesPosted, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	if err := json.Unmarshal(media, &post.Media); err != nil {
		return nil, fmt.Errorf("decoding media refs: %w", err)
	}
	if err := json.Unmarshal(platforms, &post.Platforms); err != nil {
		return nil, fmt.Errorf("decoding platforms: %w", err)
	}
	if err := json.Unmarshal(comments, &post.Comments); err != nil {
		return nil, fmt.Errorf("decoding comments: %w", err)
	}
	if len(publishedOn) > 0 {
		if err := json.Unmarshal(publishedOn, &post.PublishedOn); err != nil {
			return nil, fmt.Errorf("decoding published_on: %w", err)
		}
	}
	post.ErrorDetail = errorDetail.String

	return &post, nil
}

func (r *postRepository) ListByStatus(ctx context.Context, status string) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 ORDER BY scheduled_for`
	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) FindDue(ctx context.Context, now time.Time, grace time.Duration) ([]string, error) {
	query := `
		SELECT id FROM posts
		WHERE (status = $1 AND scheduled_for <= $2)
		   OR (status = $3 AND updated_at < $4)
		ORDER BY scheduled_for
	`
	cutoff := now.Add(-grace)
	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, now, models.PostStatusPublishing, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Claim is the sole mutual-exclusion mechanism for publishing: a single
// conditional UPDATE, so two concurrent claimers can never both win.
func (r *postRepository) Claim(ctx context.Context, id string, now time.Time, grace time.Duration) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, updated_at = $2
		WHERE id = $3
		  AND (status = $4 OR (status = $1 AND updated_at < $5))
	`
	cutoff := now.Add(-grace)
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPublishing, now, id, models.PostStatusScheduled, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) ClaimFailed(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, published_on = NULL, error_detail = NULL, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPublishing, time.Now(), id, models.PostStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) SetFinalStatus(ctx context.Context, id, status string, publishedOn map[models.Platform]time.Time, errorDetail string, postedDelta int) error {
	var published []byte
	if len(publishedOn) > 0 {
		var err error
		published, err = json.Marshal(publishedOn)
		if err != nil {
			return err
		}
	}

	query := `
		UPDATE posts
		SET status = $1,
			published_on = $2,
			error_detail = NULLIF($3, ''),
			times_posted = times_posted + $4,
			updated_at = $5
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query, status, published, errorDetail, postedDelta, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
