package platforms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	config "github.com/maheshrc27/postengine/configs"
	"github.com/maheshrc27/postengine/internal/models"
	"github.com/maheshrc27/postengine/internal/transfer"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
)

const linkedinCharacterLimit = 3000

type linkedinAdapter struct {
	cfg     config.Config
	client  *http.Client
	baseURL string
}

func NewLinkedinAdapter(cfg config.Config) Adapter {
	return &linkedinAdapter{
		cfg:     cfg,
		client:  httpClient(),
		baseURL: "https://api.linkedin.com",
	}
}

func (a *linkedinAdapter) Name() models.Platform { return models.PlatformLinkedin }

func (a *linkedinAdapter) CharacterLimit() int { return linkedinCharacterLimit }

func (a *linkedinAdapter) checkCredentials() error {
	if a.cfg.LinkedinClientID == "" || a.cfg.LinkedinClientSecret == "" {
		return &ConfigError{Platform: models.PlatformLinkedin, Missing: "LINKEDIN_CLIENT_ID / LINKEDIN_CLIENT_SECRET"}
	}
	return nil
}

// Publish uploads every asset first (register-then-PUT), then issues one
// ugcPost referencing the uploaded asset URNs. Media category is exclusive:
// when images and videos are mixed, videos win and images are skipped.
func (a *linkedinAdapter) Publish(ctx context.Context, token, content string, assets []Asset, conn *models.PlatformConnection) (string, error) {
	if err := a.checkCredentials(); err != nil {
		return "", err
	}
	if conn.AccountRef == "" {
		return "", &ValidationError{Platform: models.PlatformLinkedin, Reason: "connection has no member id"}
	}

	owner := "urn:li:person:" + conn.AccountRef

	category := "NONE"
	var selected []Asset
	if hasKind(assets, models.MediaKindVideo) {
		category = "VIDEO"
		if hasKind(assets, models.MediaKindImage) {
			slog.Warn("linkedin post mixes images and videos, images skipped")
		}
		selected = filterKind(assets, models.MediaKindVideo)
	} else if hasKind(assets, models.MediaKindImage) {
		category = "IMAGE"
		selected = filterKind(assets, models.MediaKindImage)
	}

	var mediaURNs []string
	for _, asset := range selected {
		urn, err := a.uploadAsset(ctx, token, owner, asset)
		if err != nil {
			return "", fmt.Errorf("uploading %s asset: %w", asset.Kind, err)
		}
		mediaURNs = append(mediaURNs, urn)
	}

	share := transfer.LinkedinShareContent{
		ShareCommentary:    transfer.LinkedinShareText{Text: content},
		ShareMediaCategory: category,
	}
	for _, urn := range mediaURNs {
		share.Media = append(share.Media, transfer.LinkedinShareMedia{Status: "READY", Media: urn})
	}

	payload := transfer.LinkedinUGCPostRequest{
		Author:         owner,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]transfer.LinkedinShareContent{
			"com.linkedin.ugc.ShareContent": share,
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var result transfer.LinkedinUGCPostResponse
	url := a.baseURL + "/v2/ugcPosts"
	if err := postJSON(ctx, a.client, models.PlatformLinkedin, url, token, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", &ProtocolError{Platform: models.PlatformLinkedin, Endpoint: url, Body: "no post id returned"}
	}
	return result.ID, nil
}

func (a *linkedinAdapter) uploadAsset(ctx context.Context, token, owner string, asset Asset) (string, error) {
	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if asset.Kind == models.MediaKindVideo {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
	}

	payload := transfer.LinkedinRegisterUploadRequest{
		RegisterUploadRequest: transfer.LinkedinRegisterUpload{
			Recipes: []string{recipe},
			Owner:   owner,
			ServiceRelationships: []transfer.LinkedinServiceRelationship{
				{RelationshipType: "OWNER", Identifier: "urn:li:userGeneratedContent"},
			},
		},
	}

	var registered transfer.LinkedinRegisterUploadResponse
	registerURL := a.baseURL + "/v2/assets?action=registerUpload"
	if err := postJSON(ctx, a.client, models.PlatformLinkedin, registerURL, token, payload, &registered); err != nil {
		return "", err
	}

	uploadURL := registered.Value.UploadMechanism.MediaUploadHTTPRequest.UploadURL
	if uploadURL == "" || registered.Value.Asset == "" {
		return "", &ProtocolError{Platform: models.PlatformLinkedin, Endpoint: registerURL, Body: "register upload returned no upload url or asset urn"}
	}

	data, err := fetchAsset(ctx, a.client, models.PlatformLinkedin, asset)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &TransientError{Platform: models.PlatformLinkedin, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", statusError(models.PlatformLinkedin, resp.StatusCode, string(body))
	}

	return registered.Value.Asset, nil
}

func (a *linkedinAdapter) Comment(ctx context.Context, token string, conn *models.PlatformConnection, externalPostID, text string) (string, error) {
	if err := a.checkCredentials(); err != nil {
		return "", err
	}

	payload := transfer.LinkedinCommentRequest{
		Actor:   "urn:li:person:" + conn.AccountRef,
		Message: transfer.LinkedinShareText{Text: text},
	}

	var result transfer.LinkedinCommentResponse
	url := fmt.Sprintf("%s/v2/socialActions/%s/comments", a.baseURL, externalPostID)
	if err := postJSON(ctx, a.client, models.PlatformLinkedin, url, token, payload, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (a *linkedinAdapter) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if err := a.checkCredentials(); err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     a.cfg.LinkedinClientID,
		ClientSecret: a.cfg.LinkedinClientSecret,
		Endpoint:     linkedin.Endpoint,
	}

	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := tokenSource.Token()
	if err != nil {
		return nil, &AuthError{Platform: models.PlatformLinkedin, StatusCode: http.StatusUnauthorized, Body: err.Error()}
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

func (a *linkedinAdapter) ResolveAccountRef(ctx context.Context, token string) (string, error) {
	var userInfo transfer.LinkedinUserInfo
	url := a.baseURL + "/v2/userinfo"
	if err := getJSON(ctx, a.client, models.PlatformLinkedin, url, token, &userInfo); err != nil {
		return "", err
	}
	if userInfo.Sub == "" {
		return "", &ProtocolError{Platform: models.PlatformLinkedin, Endpoint: url, Body: "userinfo returned no member id"}
	}
	return userInfo.Sub, nil
}

func hasKind(assets []Asset, kind models.MediaKind) bool {
	for _, a := range assets {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

func filterKind(assets []Asset, kind models.MediaKind) []Asset {
	var out []Asset
	for _, a := range assets {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}
