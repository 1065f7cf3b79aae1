package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maheshrc27/postengine/internal/models"
)

// Asset is a platform-ready media input: an absolute, fetchable URL with a
// declared kind, plus what the probe learned about it.
type Asset struct {
	Kind        models.MediaKind
	URL         string
	ContentType string
	Size        int64
}

type RefreshResult struct {
	AccessToken  string
	RefreshToken string // empty when the platform does not rotate refresh tokens
	ExpiresIn    int64  // seconds
}

// Adapter encapsulates one platform's publish protocol. Tokens arrive in
// plaintext; the connection record supplies the cached account reference.
type Adapter interface {
	Name() models.Platform
	CharacterLimit() int
	Publish(ctx context.Context, token, content string, assets []Asset, conn *models.PlatformConnection) (externalPostID string, err error)
	Comment(ctx context.Context, token string, conn *models.PlatformConnection, externalPostID, text string) (externalCommentID string, err error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
}

// AccountResolver is implemented by adapters whose publish calls need a
// platform-side account id that may be absent from the connection record.
type AccountResolver interface {
	ResolveAccountRef(ctx context.Context, token string) (string, error)
}

type Registry map[models.Platform]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Name()] = a
	}
	return r
}

func (r Registry) Get(platform models.Platform) (Adapter, bool) {
	a, ok := r[platform]
	return a, ok
}

const requestTimeout = 2 * time.Minute

func httpClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

func nowUnix() int64 { return time.Now().Unix() }

// sleepCtx waits d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// postJSON sends payload as JSON and decodes a 2xx response body into out.
// Non-2xx responses are classified through statusError.
func postJSON(ctx context.Context, client *http.Client, platform models.Platform, url, bearer string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &TransientError{Platform: platform, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(platform, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ProtocolError{Platform: platform, Endpoint: url, Body: string(respBody)}
		}
	}
	return nil
}

func getJSON(ctx context.Context, client *http.Client, platform models.Platform, url, bearer string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &TransientError{Platform: platform, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(platform, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &ProtocolError{Platform: platform, Endpoint: url, Body: string(respBody)}
	}
	return nil
}

// fetchAsset downloads the asset bytes for platforms that require the engine
// to push media itself (LinkedIn, Twitter) rather than pulling from a URL.
func fetchAsset(ctx context.Context, client *http.Client, platform models.Platform, asset Asset) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransientError{Platform: platform, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: fetching asset %s: unexpected status %d", platform, asset.URL, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
