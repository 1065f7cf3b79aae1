package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/postengine/internal/models"
	"github.com/maheshrc27/postengine/internal/platforms"
)

const (
	// filetype needs at most 261 bytes to sniff a container format.
	probeBytes   = 261
	maxImageSize = 8 * 1024 * 1024
	maxVideoSize = 1024 * 1024 * 1024
)

// MediaResolver turns a post's media refs into platform-ready assets:
// absolute fetchable URLs, verified content types and sizes. A ref that fails
// the probe fails resolution with an error naming the asset, before any
// platform call is attempted.
type MediaResolver struct {
	store  AssetStore
	client *http.Client
}

func NewMediaResolver(store AssetStore) *MediaResolver {
	return &MediaResolver{
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *MediaResolver) Resolve(ctx context.Context, refs []models.MediaRef) ([]platforms.Asset, error) {
	assets := make([]platforms.Asset, 0, len(refs))

	for i, ref := range refs {
		if ref.Kind != models.MediaKindImage && ref.Kind != models.MediaKindVideo {
			return nil, fmt.Errorf("media %d: unknown kind %q", i, ref.Kind)
		}

		assetURL := ref.Location
		if !strings.HasPrefix(assetURL, "http://") && !strings.HasPrefix(assetURL, "https://") {
			presigned, err := r.store.PresignGet(ctx, ref.Location)
			if err != nil {
				return nil, fmt.Errorf("media %d (%s): resolving storage key: %w", i, ref.Location, err)
			}
			assetURL = presigned
		}

		asset, err := r.probe(ctx, ref.Kind, assetURL)
		if err != nil {
			return nil, fmt.Errorf("media %d (%s): %w", i, ref.Location, err)
		}
		assets = append(assets, asset)
	}

	return assets, nil
}

// probe fetches the first bytes of the asset, sniffs the real format and
// checks it against the declared kind and size caps.
func (r *MediaResolver) probe(ctx context.Context, kind models.MediaKind, assetURL string) (platforms.Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return platforms.Asset{}, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", probeBytes-1))

	resp, err := r.client.Do(req)
	if err != nil {
		return platforms.Asset{}, fmt.Errorf("asset is not fetchable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return platforms.Asset{}, fmt.Errorf("asset is not fetchable: status %d", resp.StatusCode)
	}

	head := make([]byte, probeBytes)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return platforms.Asset{}, fmt.Errorf("reading asset header: %w", err)
	}
	head = head[:n]

	sniffed, err := filetype.Match(head)
	if err != nil {
		return platforms.Asset{}, fmt.Errorf("sniffing asset type: %w", err)
	}

	switch kind {
	case models.MediaKindImage:
		if !strings.HasPrefix(sniffed.MIME.Value, "image/") {
			return platforms.Asset{}, fmt.Errorf("declared as image but detected %q", sniffed.MIME.Value)
		}
	case models.MediaKindVideo:
		if !strings.HasPrefix(sniffed.MIME.Value, "video/") {
			return platforms.Asset{}, fmt.Errorf("declared as video but detected %q", sniffed.MIME.Value)
		}
	}

	size := assetSize(resp)
	if kind == models.MediaKindImage && size > maxImageSize {
		return platforms.Asset{}, fmt.Errorf("image is %d bytes, limit is %d", size, maxImageSize)
	}
	if kind == models.MediaKindVideo && size > maxVideoSize {
		return platforms.Asset{}, fmt.Errorf("video is %d bytes, limit is %d", size, maxVideoSize)
	}

	return platforms.Asset{
		Kind:        kind,
		URL:         assetURL,
		ContentType: sniffed.MIME.Value,
		Size:        size,
	}, nil
}

// assetSize prefers the total from Content-Range (ranged response), falling
// back to Content-Length.
func assetSize(resp *http.Response) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if idx := strings.LastIndex(cr, "/"); idx >= 0 {
			if total, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil {
				return total
			}
		}
	}
	return resp.ContentLength
}
