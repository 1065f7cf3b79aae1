package models

import "time"

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

type MediaRef struct {
	Kind     MediaKind `json:"kind"`
	Location string    `json:"location"`
}

type Post struct {
	ID           string                 `db:"id" json:"id"`
	Content      string                 `db:"content" json:"content"`
	Media        []MediaRef             `db:"media" json:"media"`
	Platforms    []Platform             `db:"platforms" json:"platforms"`
	Comments     []string               `db:"comments" json:"comments"`
	ScheduledFor time.Time              `db:"scheduled_for" json:"scheduled_for"`
	Status       string                 `db:"status" json:"status"` // draft, scheduled, publishing, published, failed
	PublishedOn  map[Platform]time.Time `db:"published_on" json:"published_on"`
	ErrorDetail  string                 `db:"error_detail" json:"error_detail"`
	TimesPosted  int                    `db:"times_posted" json:"times_posted"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time              `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

// PublishOutcome is the per-platform result of one publish cycle. It is not
// persisted beyond the post's published_on/error_detail columns.
type PublishOutcome struct {
	Platform       Platform
	Success        bool
	ExternalPostID string
	Err            error
}
