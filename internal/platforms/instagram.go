package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	config "github.com/maheshrc27/postengine/configs"
	"github.com/maheshrc27/postengine/internal/models"
	"github.com/maheshrc27/postengine/internal/transfer"
)

const (
	instagramCharacterLimit = 2200
	instagramPollAttempts   = 20
	instagramPollSeconds    = 5
)

type instagramAdapter struct {
	cfg     config.Config
	client  *http.Client
	baseURL string
}

func NewInstagramAdapter(cfg config.Config) Adapter {
	return &instagramAdapter{
		cfg:     cfg,
		client:  httpClient(),
		baseURL: "https://graph.instagram.com",
	}
}

func (a *instagramAdapter) Name() models.Platform { return models.PlatformInstagram }

func (a *instagramAdapter) CharacterLimit() int { return instagramCharacterLimit }

func (a *instagramAdapter) checkCredentials() error {
	if a.cfg.InstagramClientID == "" || a.cfg.InstagramClientSecret == "" {
		return &ConfigError{Platform: models.PlatformInstagram, Missing: "INSTAGRAM_CLIENT_ID / INSTAGRAM_CLIENT_SECRET"}
	}
	return nil
}

// Publish creates a media container for exactly one asset, waits for video
// containers to finish server-side processing, then publishes the container.
// Instagram cannot post text-only; the coordinator rejects that earlier, but
// the adapter guards as well.
func (a *instagramAdapter) Publish(ctx context.Context, token, content string, assets []Asset, conn *models.PlatformConnection) (string, error) {
	if err := a.checkCredentials(); err != nil {
		return "", err
	}
	if len(assets) == 0 {
		return "", &ValidationError{Platform: models.PlatformInstagram, Reason: "requires at least one image or video"}
	}
	if conn.AccountRef == "" {
		return "", &ValidationError{Platform: models.PlatformInstagram, Reason: "connection has no business account id"}
	}

	asset := assets[0]
	payload := map[string]interface{}{
		"caption":      content,
		"access_token": token,
	}
	if asset.Kind == models.MediaKindVideo {
		payload["media_type"] = "REELS"
		payload["video_url"] = asset.URL
	} else {
		payload["image_url"] = asset.URL
	}

	containerURL := fmt.Sprintf("%s/v21.0/%s/media", a.baseURL, conn.AccountRef)
	var container transfer.InstagramContainerResponse
	if err := postJSON(ctx, a.client, models.PlatformInstagram, containerURL, "", payload, &container); err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", &ProtocolError{Platform: models.PlatformInstagram, Endpoint: containerURL, Body: "no container id returned"}
	}

	if asset.Kind == models.MediaKindVideo {
		if err := a.awaitContainer(ctx, token, container.ID); err != nil {
			return "", err
		}
	}

	publishURL := fmt.Sprintf("%s/v21.0/%s/media_publish", a.baseURL, conn.AccountRef)
	publishPayload := map[string]string{
		"creation_id":  container.ID,
		"access_token": token,
	}
	var published transfer.InstagramPublishResponse
	if err := postJSON(ctx, a.client, models.PlatformInstagram, publishURL, "", publishPayload, &published); err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", &ProtocolError{Platform: models.PlatformInstagram, Endpoint: publishURL, Body: "no post id returned"}
	}
	return published.ID, nil
}

func (a *instagramAdapter) awaitContainer(ctx context.Context, token, containerID string) error {
	for attempt := 0; attempt < instagramPollAttempts; attempt++ {
		statusURL := fmt.Sprintf("%s/v21.0/%s?fields=status_code&access_token=%s", a.baseURL, containerID, url.QueryEscape(token))
		var status transfer.InstagramContainerStatus
		if err := getJSON(ctx, a.client, models.PlatformInstagram, statusURL, "", &status); err != nil {
			return err
		}
		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR":
			return fmt.Errorf("instagram: container %s processing failed", containerID)
		}
		if err := sleepCtx(ctx, instagramPollSeconds*time.Second); err != nil {
			return err
		}
	}
	return &TransientError{Platform: models.PlatformInstagram, Err: fmt.Errorf("container %s still processing after %d polls", containerID, instagramPollAttempts)}
}

func (a *instagramAdapter) Comment(ctx context.Context, token string, conn *models.PlatformConnection, externalPostID, text string) (string, error) {
	if err := a.checkCredentials(); err != nil {
		return "", err
	}

	commentURL := fmt.Sprintf("%s/v21.0/%s/comments", a.baseURL, externalPostID)
	payload := map[string]string{
		"message":      text,
		"access_token": token,
	}
	var result transfer.InstagramCommentResponse
	if err := postJSON(ctx, a.client, models.PlatformInstagram, commentURL, "", payload, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// Refresh exchanges a long-lived token for a fresh 60-day one. Instagram
// refreshes with the token itself, so the stored "refresh token" is the
// current access token. The endpoint authenticates with the token alone,
// so no client credential check here.
func (a *instagramAdapter) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	refreshURL := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s", a.baseURL, url.QueryEscape(refreshToken))

	var result transfer.InstagramRefreshResponse
	if err := getJSON(ctx, a.client, models.PlatformInstagram, refreshURL, "", &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, &ProtocolError{Platform: models.PlatformInstagram, Endpoint: a.baseURL + "/refresh_access_token", Body: "no access token returned"}
	}

	return &RefreshResult{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresIn:    result.ExpiresIn,
	}, nil
}

func (a *instagramAdapter) ResolveAccountRef(ctx context.Context, token string) (string, error) {
	meURL := fmt.Sprintf("%s/me?fields=id,username&access_token=%s", a.baseURL, url.QueryEscape(token))
	var userInfo transfer.InstagramUserInfo
	if err := getJSON(ctx, a.client, models.PlatformInstagram, meURL, "", &userInfo); err != nil {
		return "", err
	}
	if userInfo.ID == "" {
		return "", &ProtocolError{Platform: models.PlatformInstagram, Endpoint: meURL, Body: "no account id returned"}
	}
	return userInfo.ID, nil
}
