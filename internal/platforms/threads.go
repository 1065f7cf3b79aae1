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
	threadsCharacterLimit = 500
	threadsPollAttempts   = 20
	threadsPollSeconds    = 5
)

type threadsAdapter struct {
	cfg     config.Config
	client  *http.Client
	baseURL string
}

func NewThreadsAdapter(cfg config.Config) Adapter {
	return &threadsAdapter{
		cfg:     cfg,
		client:  httpClient(),
		baseURL: "https://graph.threads.net",
	}
}

func (a *threadsAdapter) Name() models.Platform { return models.PlatformThreads }

func (a *threadsAdapter) CharacterLimit() int { return threadsCharacterLimit }

func (a *threadsAdapter) checkCredentials() error {
	if a.cfg.ThreadsClientID == "" || a.cfg.ThreadsClientSecret == "" {
		return &ConfigError{Platform: models.PlatformThreads, Missing: "THREADS_CLIENT_ID / THREADS_CLIENT_SECRET"}
	}
	return nil
}

// Publish creates a thread container for exactly one image or video, waits
// for media processing, then publishes the container. Threads cannot post
// text-only; the coordinator rejects that earlier, but the adapter guards as
// well. TEXT containers exist only on the reply path.
func (a *threadsAdapter) Publish(ctx context.Context, token, content string, assets []Asset, conn *models.PlatformConnection) (string, error) {
	if err := a.checkCredentials(); err != nil {
		return "", err
	}
	if len(assets) == 0 {
		return "", &ValidationError{Platform: models.PlatformThreads, Reason: "requires at least one image or video"}
	}
	if conn.AccountRef == "" {
		return "", &ValidationError{Platform: models.PlatformThreads, Reason: "connection has no threads user id"}
	}

	params := url.Values{}
	params.Set("text", content)
	params.Set("access_token", token)

	asset := assets[0]
	if asset.Kind == models.MediaKindVideo {
		params.Set("media_type", "VIDEO")
		params.Set("video_url", asset.URL)
	} else {
		params.Set("media_type", "IMAGE")
		params.Set("image_url", asset.URL)
	}

	containerID, err := a.createContainer(ctx, conn.AccountRef, params)
	if err != nil {
		return "", err
	}

	if err := a.awaitContainer(ctx, token, containerID); err != nil {
		return "", err
	}

	return a.publishContainer(ctx, token, conn.AccountRef, containerID)
}

func (a *threadsAdapter) createContainer(ctx context.Context, accountRef string, params url.Values) (string, error) {
	containerURL := fmt.Sprintf("%s/v1.0/%s/threads?%s", a.baseURL, accountRef, params.Encode())
	var container transfer.ThreadsContainerResponse
	if err := postJSON(ctx, a.client, models.PlatformThreads, containerURL, "", struct{}{}, &container); err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", &ProtocolError{Platform: models.PlatformThreads, Endpoint: containerURL, Body: "no container id returned"}
	}
	return container.ID, nil
}

func (a *threadsAdapter) publishContainer(ctx context.Context, token, accountRef, containerID string) (string, error) {
	publishURL := fmt.Sprintf("%s/v1.0/%s/threads_publish?creation_id=%s&access_token=%s",
		a.baseURL, accountRef, url.QueryEscape(containerID), url.QueryEscape(token))
	var published transfer.ThreadsPublishResponse
	if err := postJSON(ctx, a.client, models.PlatformThreads, publishURL, "", struct{}{}, &published); err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", &ProtocolError{Platform: models.PlatformThreads, Endpoint: publishURL, Body: "no post id returned"}
	}
	return published.ID, nil
}

func (a *threadsAdapter) awaitContainer(ctx context.Context, token, containerID string) error {
	for attempt := 0; attempt < threadsPollAttempts; attempt++ {
		statusURL := fmt.Sprintf("%s/v1.0/%s?fields=status&access_token=%s", a.baseURL, containerID, url.QueryEscape(token))
		var status transfer.ThreadsContainerStatus
		if err := getJSON(ctx, a.client, models.PlatformThreads, statusURL, "", &status); err != nil {
			return err
		}
		switch status.Status {
		case "FINISHED":
			return nil
		case "ERROR":
			return fmt.Errorf("threads: container %s processing failed", containerID)
		}
		if err := sleepCtx(ctx, threadsPollSeconds*time.Second); err != nil {
			return err
		}
	}
	return &TransientError{Platform: models.PlatformThreads, Err: fmt.Errorf("container %s still processing after %d polls", containerID, threadsPollAttempts)}
}

// Comment is a reply container keyed by the parent post id. The threads user
// id comes from the connection record, not re-derived from the token.
func (a *threadsAdapter) Comment(ctx context.Context, token string, conn *models.PlatformConnection, externalPostID, text string) (string, error) {
	if err := a.checkCredentials(); err != nil {
		return "", err
	}
	if conn.AccountRef == "" {
		return "", &ValidationError{Platform: models.PlatformThreads, Reason: "connection has no threads user id"}
	}

	params := url.Values{}
	params.Set("media_type", "TEXT")
	params.Set("text", text)
	params.Set("reply_to_id", externalPostID)
	params.Set("access_token", token)

	containerID, err := a.createContainer(ctx, conn.AccountRef, params)
	if err != nil {
		return "", err
	}
	return a.publishContainer(ctx, token, conn.AccountRef, containerID)
}

// Refresh renews the long-lived token with itself. The endpoint
// authenticates with the token alone, so no client credential check here.
func (a *threadsAdapter) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	refreshURL := fmt.Sprintf("%s/refresh_access_token?grant_type=th_refresh_token&access_token=%s", a.baseURL, url.QueryEscape(refreshToken))

	var result transfer.ThreadsRefreshResponse
	if err := getJSON(ctx, a.client, models.PlatformThreads, refreshURL, "", &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, &ProtocolError{Platform: models.PlatformThreads, Endpoint: a.baseURL + "/refresh_access_token", Body: "no access token returned"}
	}

	return &RefreshResult{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresIn:    result.ExpiresIn,
	}, nil
}

func (a *threadsAdapter) ResolveAccountRef(ctx context.Context, token string) (string, error) {
	meURL := fmt.Sprintf("%s/v1.0/me?fields=id,username&access_token=%s", a.baseURL, url.QueryEscape(token))
	var userInfo transfer.ThreadsUserInfo
	if err := getJSON(ctx, a.client, models.PlatformThreads, meURL, "", &userInfo); err != nil {
		return "", err
	}
	if userInfo.ID == "" {
		return "", &ProtocolError{Platform: models.PlatformThreads, Endpoint: meURL, Body: "no account id returned"}
	}
	return userInfo.ID, nil
}
