package service

import (
	"context"
	"errors"
	"testing"
	"time"

	config "github.com/maheshrc27/postengine/configs"
	"github.com/maheshrc27/postengine/internal/models"
	"github.com/maheshrc27/postengine/internal/platforms"
	"github.com/maheshrc27/postengine/pkg/utils"
)

func newTestGuard(cr *fakeConnRepo) *TokenGuard {
	return NewTokenGuard(config.Config{SecretKey: testSecret}, cr)
}

func TestExpired(t *testing.T) {
	t.Parallel()

	g := newTestGuard(newFakeConnRepo())
	in := func(d time.Duration) *time.Time {
		ts := time.Now().Add(d)
		return &ts
	}

	tests := []struct {
		name      string
		platform  models.Platform
		expiresAt *time.Time
		want      bool
	}{
		{name: "missing expiry", platform: models.PlatformTwitter, expiresAt: nil, want: true},
		{name: "already past", platform: models.PlatformTwitter, expiresAt: in(-time.Hour), want: true},
		{name: "short-lived within margin", platform: models.PlatformTwitter, expiresAt: in(4 * time.Minute), want: true},
		{name: "short-lived outside margin", platform: models.PlatformLinkedin, expiresAt: in(10 * time.Minute), want: false},
		{name: "long-lived within margin", platform: models.PlatformInstagram, expiresAt: in(6 * 24 * time.Hour), want: true},
		{name: "long-lived outside margin", platform: models.PlatformThreads, expiresAt: in(8 * 24 * time.Hour), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := g.Expired(tt.platform, tt.expiresAt); got != tt.want {
				t.Fatalf("Expired(%s, %v) = %v, want %v", tt.platform, tt.expiresAt, got, tt.want)
			}
		})
	}
}

func TestEnsureValidFreshTokenSkipsRefresh(t *testing.T) {
	t.Parallel()

	cr := newFakeConnRepo()
	g := newTestGuard(cr)
	adapter := &fakeAdapter{platform: models.PlatformLinkedin}
	conn := activeConn(t, models.PlatformLinkedin, "current-token", time.Now().Add(time.Hour))

	token, err := g.EnsureValid(context.Background(), adapter, conn)
	if err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if token != "current-token" {
		t.Fatalf("token %q, want the stored token decrypted", token)
	}
	if adapter.refreshCalls != 0 {
		t.Fatalf("refresh called %d times for a fresh token", adapter.refreshCalls)
	}
}

func TestEnsureValidRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	cr := newFakeConnRepo()
	g := newTestGuard(cr)
	adapter := &fakeAdapter{
		platform:      models.PlatformLinkedin,
		refreshResult: &platforms.RefreshResult{AccessToken: "fresh-token", RefreshToken: "fresh-refresh", ExpiresIn: 3600},
	}
	conn := activeConn(t, models.PlatformLinkedin, "old-token", time.Now().Add(time.Minute))
	conn.RefreshToken = mustEncrypt(t, "old-refresh")

	token, err := g.EnsureValid(context.Background(), adapter, conn)
	if err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if token != "fresh-token" {
		t.Fatalf("token %q, want the refreshed token", token)
	}
	if adapter.refreshCalls != 1 {
		t.Fatalf("refresh called %d times, want exactly 1", adapter.refreshCalls)
	}
	if got := adapter.refreshTokens[0]; got != "old-refresh" {
		t.Fatalf("refresh used %q, want the decrypted refresh token", got)
	}

	if len(cr.updates) != 1 {
		t.Fatalf("UpdateToken called %d times, want 1", len(cr.updates))
	}
	update := cr.updates[0]
	if decrypted, _ := utils.Decrypt(update.accessToken, []byte(testSecret)); decrypted != "fresh-token" {
		t.Fatalf("persisted access token decrypts to %q, want fresh-token", decrypted)
	}
	if decrypted, _ := utils.Decrypt(update.refreshToken, []byte(testSecret)); decrypted != "fresh-refresh" {
		t.Fatalf("persisted refresh token decrypts to %q, want fresh-refresh", decrypted)
	}
	if until := time.Until(update.expiresAt); until < 55*time.Minute || until > 65*time.Minute {
		t.Fatalf("persisted expiry %v away, want about an hour", until)
	}

	if conn.ExpiresAt == nil || g.Expired(conn.Platform, conn.ExpiresAt) {
		t.Fatal("in-memory connection not updated with the new expiry")
	}
}

func TestEnsureValidFailsOpen(t *testing.T) {
	t.Parallel()

	cr := newFakeConnRepo()
	g := newTestGuard(cr)
	adapter := &fakeAdapter{
		platform:   models.PlatformLinkedin,
		refreshErr: errors.New("refresh endpoint down"),
	}
	conn := activeConn(t, models.PlatformLinkedin, "stored-token", time.Now().Add(-time.Hour))
	conn.RefreshToken = mustEncrypt(t, "stored-refresh")

	// A failed proactive refresh must not block the publish attempt: the
	// stored token is returned and the platform delivers the real verdict.
	token, err := g.EnsureValid(context.Background(), adapter, conn)
	if err != nil {
		t.Fatalf("EnsureValid surfaced the refresh failure: %v", err)
	}
	if token != "stored-token" {
		t.Fatalf("token %q, want the original stored token", token)
	}
	if len(cr.updates) != 0 {
		t.Fatal("UpdateToken called after a failed refresh")
	}
}

func TestRefreshForRetryFailurePropagates(t *testing.T) {
	t.Parallel()

	cr := newFakeConnRepo()
	g := newTestGuard(cr)
	adapter := &fakeAdapter{
		platform:   models.PlatformTwitter,
		refreshErr: errors.New("invalid_grant"),
	}
	conn := activeConn(t, models.PlatformTwitter, "rejected-token", time.Now().Add(time.Hour))
	conn.RefreshToken = mustEncrypt(t, "rt")

	if _, err := g.RefreshForRetry(context.Background(), adapter, conn); err == nil {
		t.Fatal("RefreshForRetry hid the refresh failure")
	}
}

func TestRefreshFallsBackToAccessToken(t *testing.T) {
	t.Parallel()

	cr := newFakeConnRepo()
	g := newTestGuard(cr)
	adapter := &fakeAdapter{
		platform:      models.PlatformInstagram,
		refreshResult: &platforms.RefreshResult{AccessToken: "renewed", RefreshToken: "renewed", ExpiresIn: 5184000},
	}
	// Instagram has no separate refresh token: the access token refreshes itself.
	conn := activeConn(t, models.PlatformInstagram, "long-lived", time.Now().Add(time.Hour))

	token, err := g.RefreshForRetry(context.Background(), adapter, conn)
	if err != nil {
		t.Fatalf("RefreshForRetry failed: %v", err)
	}
	if token != "renewed" {
		t.Fatalf("token %q, want renewed", token)
	}
	if got := adapter.refreshTokens[0]; got != "long-lived" {
		t.Fatalf("refresh used %q, want the access token itself", got)
	}
}
