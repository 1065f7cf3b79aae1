package models

import "time"

type Platform string

const (
	PlatformLinkedin  Platform = "linkedin"
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformThreads   Platform = "threads"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformLinkedin, PlatformTwitter, PlatformInstagram, PlatformThreads:
		return true
	}
	return false
}

// PlatformConnection holds one platform's credentials. Token fields are stored
// AES-GCM encrypted; the engine only mutates the token/expiry fields and the
// cached account_ref, never creates or deletes rows.
type PlatformConnection struct {
	Platform     Platform   `db:"platform" json:"platform"`
	AccessToken  string     `db:"access_token" json:"-"`
	RefreshToken string     `db:"refresh_token" json:"-"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at"`
	AccountRef   string     `db:"account_ref" json:"account_ref"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
