package platforms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	config "github.com/maheshrc27/postengine/configs"
	"github.com/maheshrc27/postengine/internal/models"
	"github.com/maheshrc27/postengine/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	twitterCharacterLimit = 280
	twitterChunkSize      = 5 * 1024 * 1024
	twitterMaxImages      = 4
	twitterPollAttempts   = 10
)

type twitterAdapter struct {
	cfg       config.Config
	client    *http.Client
	apiURL    string
	uploadURL string
	tokenURL  string
}

func NewTwitterAdapter(cfg config.Config) Adapter {
	return &twitterAdapter{
		cfg:       cfg,
		client:    httpClient(),
		apiURL:    "https://api.twitter.com",
		uploadURL: "https://upload.twitter.com/1.1/media/upload.json",
		tokenURL:  "https://api.twitter.com/2/oauth2/token",
	}
}

func (a *twitterAdapter) Name() models.Platform { return models.PlatformTwitter }

func (a *twitterAdapter) CharacterLimit() int { return twitterCharacterLimit }

func (a *twitterAdapter) checkCredentials() error {
	if a.cfg.TwitterClientID == "" || a.cfg.TwitterClientSecret == "" {
		return &ConfigError{Platform: models.PlatformTwitter, Missing: "TWITTER_CLIENT_ID / TWITTER_CLIENT_SECRET"}
	}
	return nil
}

// Publish uploads media through the chunked INIT/APPEND/FINALIZE protocol,
// waits out asynchronous video processing, then issues a single tweet call.
// At most 4 images or 1 video; the two are never combined.
func (a *twitterAdapter) Publish(ctx context.Context, token, content string, assets []Asset, conn *models.PlatformConnection) (string, error) {
	if err := a.checkCredentials(); err != nil {
		return "", err
	}

	videos := filterKind(assets, models.MediaKindVideo)
	images := filterKind(assets, models.MediaKindImage)
	switch {
	case len(videos) > 1:
		return "", &ValidationError{Platform: models.PlatformTwitter, Reason: "at most one video per tweet"}
	case len(videos) == 1 && len(images) > 0:
		return "", &ValidationError{Platform: models.PlatformTwitter, Reason: "videos and images cannot be combined in one tweet"}
	case len(images) > twitterMaxImages:
		return "", &ValidationError{Platform: models.PlatformTwitter, Reason: fmt.Sprintf("at most %d images per tweet", twitterMaxImages)}
	}

	var mediaIDs []string
	for _, asset := range assets {
		mediaID, err := a.uploadMedia(ctx, token, asset)
		if err != nil {
			return "", fmt.Errorf("uploading %s: %w", asset.Kind, err)
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	payload := transfer.TwitterTweetRequest{Text: content}
	if len(mediaIDs) > 0 {
		payload.Media = &transfer.TwitterTweetMedia{MediaIDs: mediaIDs}
	}

	var result transfer.TwitterTweetResponse
	tweetURL := a.apiURL + "/2/tweets"
	if err := postJSON(ctx, a.client, models.PlatformTwitter, tweetURL, token, payload, &result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", &ProtocolError{Platform: models.PlatformTwitter, Endpoint: tweetURL, Body: "no tweet id returned"}
	}
	return result.Data.ID, nil
}

func (a *twitterAdapter) uploadMedia(ctx context.Context, token string, asset Asset) (string, error) {
	data, err := fetchAsset(ctx, a.client, models.PlatformTwitter, asset)
	if err != nil {
		return "", err
	}

	mediaType := asset.ContentType
	category := "tweet_image"
	if asset.Kind == models.MediaKindVideo {
		category = "tweet_video"
		if mediaType == "" {
			mediaType = "video/mp4"
		}
	} else if mediaType == "" {
		mediaType = "image/jpeg"
	}

	// INIT
	initValues := url.Values{}
	initValues.Set("command", "INIT")
	initValues.Set("total_bytes", strconv.Itoa(len(data)))
	initValues.Set("media_type", mediaType)
	initValues.Set("media_category", category)

	var initResp transfer.TwitterMediaUploadResponse
	if err := a.uploadForm(ctx, token, initValues, &initResp); err != nil {
		return "", fmt.Errorf("INIT: %w", err)
	}
	if initResp.MediaIDString == "" {
		return "", &ProtocolError{Platform: models.PlatformTwitter, Endpoint: a.uploadURL, Body: "INIT returned no media id"}
	}
	mediaID := initResp.MediaIDString

	// APPEND, one chunk at a time
	for segment := 0; segment*twitterChunkSize < len(data); segment++ {
		start := segment * twitterChunkSize
		end := start + twitterChunkSize
		if end > len(data) {
			end = len(data)
		}

		appendValues := url.Values{}
		appendValues.Set("command", "APPEND")
		appendValues.Set("media_id", mediaID)
		appendValues.Set("segment_index", strconv.Itoa(segment))
		appendValues.Set("media_data", base64.StdEncoding.EncodeToString(data[start:end]))

		if err := a.uploadForm(ctx, token, appendValues, nil); err != nil {
			return "", fmt.Errorf("APPEND segment %d: %w", segment, err)
		}
	}

	// FINALIZE
	finalizeValues := url.Values{}
	finalizeValues.Set("command", "FINALIZE")
	finalizeValues.Set("media_id", mediaID)

	var finalizeResp transfer.TwitterMediaUploadResponse
	if err := a.uploadForm(ctx, token, finalizeValues, &finalizeResp); err != nil {
		return "", fmt.Errorf("FINALIZE: %w", err)
	}

	if finalizeResp.ProcessingInfo != nil {
		if err := a.awaitProcessing(ctx, token, mediaID, finalizeResp.ProcessingInfo); err != nil {
			return "", err
		}
	}

	return mediaID, nil
}

// awaitProcessing polls STATUS with the platform's backoff hints until the
// upload succeeds, fails, or the attempt cap is reached.
func (a *twitterAdapter) awaitProcessing(ctx context.Context, token, mediaID string, info *transfer.TwitterProcessingInfo) error {
	for attempt := 0; attempt < twitterPollAttempts; attempt++ {
		switch info.State {
		case "succeeded":
			return nil
		case "failed":
			msg := "media processing failed"
			if info.Error != nil {
				msg = info.Error.Message
			}
			return fmt.Errorf("twitter: %s", msg)
		}

		wait := time.Duration(info.CheckAfterSecs) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}

		statusURL := fmt.Sprintf("%s?command=STATUS&media_id=%s", a.uploadURL, mediaID)
		var statusResp transfer.TwitterMediaUploadResponse
		if err := getJSON(ctx, a.client, models.PlatformTwitter, statusURL, token, &statusResp); err != nil {
			return fmt.Errorf("STATUS: %w", err)
		}
		if statusResp.ProcessingInfo == nil {
			return nil
		}
		info = statusResp.ProcessingInfo
	}
	return &TransientError{Platform: models.PlatformTwitter, Err: fmt.Errorf("media %s still processing after %d polls", mediaID, twitterPollAttempts)}
}

func (a *twitterAdapter) uploadForm(ctx context.Context, token string, values url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.uploadURL, strings.NewReader(values.Encode()))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return &TransientError{Platform: models.PlatformTwitter, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(models.PlatformTwitter, resp.StatusCode, string(body))
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return &ProtocolError{Platform: models.PlatformTwitter, Endpoint: a.uploadURL, Body: string(body)}
		}
	}
	return nil
}

func (a *twitterAdapter) Comment(ctx context.Context, token string, conn *models.PlatformConnection, externalPostID, text string) (string, error) {
	if err := a.checkCredentials(); err != nil {
		return "", err
	}

	payload := transfer.TwitterTweetRequest{
		Text:  text,
		Reply: &transfer.TwitterTweetReply{InReplyToTweetID: externalPostID},
	}

	var result transfer.TwitterTweetResponse
	tweetURL := a.apiURL + "/2/tweets"
	if err := postJSON(ctx, a.client, models.PlatformTwitter, tweetURL, token, payload, &result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", &ProtocolError{Platform: models.PlatformTwitter, Endpoint: tweetURL, Body: "no reply id returned"}
	}
	return result.Data.ID, nil
}

func (a *twitterAdapter) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if err := a.checkCredentials(); err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     a.cfg.TwitterClientID,
		ClientSecret: a.cfg.TwitterClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: a.tokenURL, AuthStyle: oauth2.AuthStyleInHeader},
	}

	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := tokenSource.Token()
	if err != nil {
		return nil, &AuthError{Platform: models.PlatformTwitter, StatusCode: http.StatusUnauthorized, Body: err.Error()}
	}

	result := &RefreshResult{AccessToken: token.AccessToken}
	if token.RefreshToken != refreshToken {
		result.RefreshToken = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		result.ExpiresIn = token.Expiry.Unix() - nowUnix()
	}
	return result, nil
}
