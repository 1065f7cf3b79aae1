package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/postengine/configs"
	"github.com/maheshrc27/postengine/internal/models"
	"github.com/maheshrc27/postengine/internal/platforms"
	"github.com/maheshrc27/postengine/internal/repository"
	"github.com/maheshrc27/postengine/pkg/utils"
	"golang.org/x/sync/singleflight"
)

// Refresh margins differ per platform: LinkedIn and Twitter tokens are
// short-lived and refreshed close to expiry; Instagram and Threads issue
// ~60-day tokens whose refresh is cheap and idempotent, so they are renewed
// a week ahead.
const (
	shortLivedMargin = 5 * time.Minute
	longLivedMargin  = 7 * 24 * time.Hour
)

// TokenGuard decides whether a connection's token must be refreshed before
// use, performs the refresh through the platform adapter, and persists the
// rotated credentials.
type TokenGuard struct {
	cr     repository.ConnectionRepository
	secret []byte
	group  singleflight.Group
}

func NewTokenGuard(cfg config.Config, cr repository.ConnectionRepository) *TokenGuard {
	return &TokenGuard{
		cr:     cr,
		secret: []byte(cfg.SecretKey),
	}
}

func expiryMargin(platform models.Platform) time.Duration {
	switch platform {
	case models.PlatformInstagram, models.PlatformThreads:
		return longLivedMargin
	default:
		return shortLivedMargin
	}
}

// Expired treats a missing expiry as expired.
func (g *TokenGuard) Expired(platform models.Platform, expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return time.Until(*expiresAt) <= expiryMargin(platform)
}

// EnsureValid returns a plaintext access token for the connection, refreshing
// first when the stored token is at or past its margin. A failed refresh is
// logged and the original token returned: the publish call must be attempted
// anyway so the operator sees the platform's real rejection, not a masked
// refresh error.
func (g *TokenGuard) EnsureValid(ctx context.Context, adapter platforms.Adapter, conn *models.PlatformConnection) (string, error) {
	accessToken, err := utils.Decrypt(conn.AccessToken, g.secret)
	if err != nil {
		return "", fmt.Errorf("decrypting %s access token: %w", conn.Platform, err)
	}

	if !g.Expired(conn.Platform, conn.ExpiresAt) {
		return accessToken, nil
	}

	refreshed, err := g.refresh(ctx, adapter, conn)
	if err != nil {
		slog.Warn("token refresh failed, proceeding with stored token",
			"platform", string(conn.Platform), "error", err.Error())
		return accessToken, nil
	}
	return refreshed, nil
}

// RefreshForRetry forces a refresh after the platform rejected a token the
// pre-flight check considered valid. Used for the single reactive
// refresh-and-retry cycle; a failure here is terminal for the caller.
func (g *TokenGuard) RefreshForRetry(ctx context.Context, adapter platforms.Adapter, conn *models.PlatformConnection) (string, error) {
	return g.refresh(ctx, adapter, conn)
}

// refresh is coalesced per platform: concurrent publishes racing to refresh
// the same connection share one refresh call, and the latest persisted token
// wins.
func (g *TokenGuard) refresh(ctx context.Context, adapter platforms.Adapter, conn *models.PlatformConnection) (string, error) {
	v, err, _ := g.group.Do(string(conn.Platform), func() (interface{}, error) {
		stored := conn.RefreshToken
		if stored == "" {
			// Instagram/Threads refresh with the access token itself.
			stored = conn.AccessToken
		}
		refreshToken, err := utils.Decrypt(stored, g.secret)
		if err != nil {
			return nil, fmt.Errorf("decrypting %s refresh token: %w", conn.Platform, err)
		}

		result, err := adapter.Refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}

		encryptedAccess, err := utils.Encrypt([]byte(result.AccessToken), g.secret)
		if err != nil {
			return nil, err
		}
		var encryptedRefresh string
		if result.RefreshToken != "" {
			encryptedRefresh, err = utils.Encrypt([]byte(result.RefreshToken), g.secret)
			if err != nil {
				return nil, err
			}
		}

		expiresAt := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
		if err := g.cr.UpdateToken(ctx, conn.Platform, encryptedAccess, encryptedRefresh, expiresAt); err != nil {
			// The refreshed token is still usable for this cycle.
			slog.Warn("persisting refreshed token failed",
				"platform", string(conn.Platform), "error", err.Error())
		}

		conn.AccessToken = encryptedAccess
		if encryptedRefresh != "" {
			conn.RefreshToken = encryptedRefresh
		}
		conn.ExpiresAt = &expiresAt

		return result.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
