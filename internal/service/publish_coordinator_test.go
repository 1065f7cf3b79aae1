package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/postengine/configs"
	"github.com/maheshrc27/postengine/internal/models"
	"github.com/maheshrc27/postengine/internal/platforms"
	"github.com/maheshrc27/postengine/pkg/utils"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func mustEncrypt(t *testing.T, plaintext string) string {
	t.Helper()
	encrypted, err := utils.Encrypt([]byte(plaintext), []byte(testSecret))
	if err != nil {
		t.Fatalf("encrypting test token: %v", err)
	}
	return encrypted
}

func activeConn(t *testing.T, platform models.Platform, token string, expiresAt time.Time) *models.PlatformConnection {
	t.Helper()
	return &models.PlatformConnection{
		Platform:    platform,
		AccessToken: mustEncrypt(t, token),
		ExpiresAt:   &expiresAt,
		AccountRef:  "acct-" + string(platform),
		IsActive:    true,
	}
}

type publishResult struct {
	id  string
	err error
}

type fakeAdapter struct {
	mu sync.Mutex

	platform models.Platform
	limit    int

	results       []publishResult
	publishTokens []string

	comments     []string
	commentErrOn string

	refreshResult *platforms.RefreshResult
	refreshErr    error
	refreshCalls  int
	refreshTokens []string
}

func (a *fakeAdapter) Name() models.Platform { return a.platform }

func (a *fakeAdapter) CharacterLimit() int { return a.limit }

func (a *fakeAdapter) Publish(ctx context.Context, token, content string, assets []platforms.Asset, conn *models.PlatformConnection) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publishTokens = append(a.publishTokens, token)
	if len(a.results) == 0 {
		return "", errors.New("unexpected publish call")
	}
	r := a.results[0]
	a.results = a.results[1:]
	return r.id, r.err
}

func (a *fakeAdapter) Comment(ctx context.Context, token string, conn *models.PlatformConnection, externalPostID, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.comments = append(a.comments, text)
	if a.commentErrOn != "" && a.commentErrOn == text {
		return "", errors.New("comment rejected")
	}
	return "comment-id", nil
}

func (a *fakeAdapter) Refresh(ctx context.Context, refreshToken string) (*platforms.RefreshResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshCalls++
	a.refreshTokens = append(a.refreshTokens, refreshToken)
	if a.refreshErr != nil {
		return nil, a.refreshErr
	}
	return a.refreshResult, nil
}

func (a *fakeAdapter) publishCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.publishTokens)
}

type tokenUpdate struct {
	platform     models.Platform
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

type fakeConnRepo struct {
	mu      sync.Mutex
	conns   map[models.Platform]*models.PlatformConnection
	updates []tokenUpdate
}

func newFakeConnRepo(conns ...*models.PlatformConnection) *fakeConnRepo {
	r := &fakeConnRepo{conns: make(map[models.Platform]*models.PlatformConnection)}
	for _, c := range conns {
		r.conns[c.Platform] = c
	}
	return r
}

func (r *fakeConnRepo) GetActive(ctx context.Context, platform models.Platform) (*models.PlatformConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[platform], nil
}

func (r *fakeConnRepo) List(ctx context.Context) ([]*models.PlatformConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var conns []*models.PlatformConnection
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns, nil
}

func (r *fakeConnRepo) UpdateToken(ctx context.Context, platform models.Platform, accessToken, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, tokenUpdate{
		platform:     platform,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    expiresAt,
	})
	return nil
}

func (r *fakeConnRepo) SetAccountRef(ctx context.Context, platform models.Platform, accountRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[platform]; ok {
		c.AccountRef = accountRef
	}
	return nil
}

type fakePostStore struct {
	mu   sync.Mutex
	post *models.Post

	finalStatus      string
	finalPublishedOn map[models.Platform]time.Time
	finalErrorDetail string
	finalDelta       int
	finalized        bool
}

func (s *fakePostStore) GetByID(ctx context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.post != nil && s.post.ID == id {
		return s.post, nil
	}
	return nil, nil
}

func (s *fakePostStore) Create(ctx context.Context, post *models.Post) error { return nil }

func (s *fakePostStore) ListByStatus(ctx context.Context, status string) ([]*models.Post, error) {
	return nil, nil
}

func (s *fakePostStore) FindDue(ctx context.Context, now time.Time, grace time.Duration) ([]string, error) {
	return nil, nil
}

func (s *fakePostStore) Claim(ctx context.Context, id string, now time.Time, grace time.Duration) (bool, error) {
	return true, nil
}

func (s *fakePostStore) ClaimFailed(ctx context.Context, id string) (bool, error) {
	return true, nil
}

func (s *fakePostStore) SetFinalStatus(ctx context.Context, id, status string, publishedOn map[models.Platform]time.Time, errorDetail string, postedDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalStatus = status
	s.finalPublishedOn = publishedOn
	s.finalErrorDetail = errorDetail
	s.finalDelta = postedDelta
	s.finalized = true
	return nil
}

func newTestCoordinator(post *models.Post, cr *fakeConnRepo, adapters ...platforms.Adapter) (*PublishCoordinator, *fakePostStore) {
	ps := &fakePostStore{post: post}
	guard := NewTokenGuard(config.Config{SecretKey: testSecret}, cr)
	c := NewPublishCoordinator(ps, cr, platforms.NewRegistry(adapters...), guard, NewMediaResolver(nil))
	c.delay = time.Millisecond
	return c, ps
}

func TestPublishPartialSuccess(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(30 * 24 * time.Hour)
	linkedin := &fakeAdapter{
		platform: models.PlatformLinkedin,
		limit:    3000,
		results:  []publishResult{{id: "li-1"}},
	}
	twitter := &fakeAdapter{
		platform: models.PlatformTwitter,
		limit:    280,
		results:  []publishResult{{err: &platforms.TransientError{Platform: models.PlatformTwitter, Err: errors.New("status 500")}}},
	}
	cr := newFakeConnRepo(
		activeConn(t, models.PlatformLinkedin, "li-token", expiry),
		activeConn(t, models.PlatformTwitter, "tw-token", expiry),
	)

	post := &models.Post{
		ID:        "p1",
		Content:   "hello world",
		Platforms: []models.Platform{models.PlatformLinkedin, models.PlatformTwitter},
		Status:    models.PostStatusPublishing,
	}
	c, ps := newTestCoordinator(post, cr, linkedin, twitter)

	if err := c.Publish(context.Background(), "p1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if ps.finalStatus != models.PostStatusPublished {
		t.Fatalf("final status %s, want published when at least one platform succeeds", ps.finalStatus)
	}
	if _, ok := ps.finalPublishedOn[models.PlatformLinkedin]; !ok {
		t.Fatal("linkedin missing from published_on")
	}
	if _, ok := ps.finalPublishedOn[models.PlatformTwitter]; ok {
		t.Fatal("failed twitter publish recorded in published_on")
	}
	if !strings.Contains(ps.finalErrorDetail, "twitter:") {
		t.Fatalf("error detail %q does not name the failed platform", ps.finalErrorDetail)
	}
	if ps.finalDelta != 1 {
		t.Fatalf("times_posted delta %d, want 1", ps.finalDelta)
	}
}

func TestPublishAllPlatformsFail(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(30 * 24 * time.Hour)
	twitter := &fakeAdapter{
		platform: models.PlatformTwitter,
		limit:    280,
		results:  []publishResult{{err: errors.New("boom")}},
	}
	cr := newFakeConnRepo(activeConn(t, models.PlatformTwitter, "tw-token", expiry))

	post := &models.Post{
		ID:        "p1",
		Content:   "hello",
		Platforms: []models.Platform{models.PlatformTwitter},
	}
	c, ps := newTestCoordinator(post, cr, twitter)

	if err := c.Publish(context.Background(), "p1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if ps.finalStatus != models.PostStatusFailed {
		t.Fatalf("final status %s, want failed", ps.finalStatus)
	}
	if ps.finalDelta != 0 {
		t.Fatalf("times_posted delta %d, want 0", ps.finalDelta)
	}
	if len(ps.finalPublishedOn) != 0 {
		t.Fatalf("published_on %v, want empty", ps.finalPublishedOn)
	}
}

func TestPublishEmptyPostIDIsProtocolError(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(30 * 24 * time.Hour)
	linkedin := &fakeAdapter{
		platform: models.PlatformLinkedin,
		limit:    3000,
		results:  []publishResult{{id: ""}}, // success with no post id
	}
	cr := newFakeConnRepo(activeConn(t, models.PlatformLinkedin, "li-token", expiry))

	post := &models.Post{
		ID:        "p1",
		Content:   "hello",
		Platforms: []models.Platform{models.PlatformLinkedin},
	}
	c, ps := newTestCoordinator(post, cr, linkedin)

	if err := c.Publish(context.Background(), "p1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if ps.finalStatus != models.PostStatusFailed {
		t.Fatalf("final status %s, want failed", ps.finalStatus)
	}
	if !strings.Contains(ps.finalErrorDetail, "no post id returned") {
		t.Fatalf("error detail %q, want protocol violation for missing post id", ps.finalErrorDetail)
	}
}

func TestPublishCharacterLimitFailsBeforeNetwork(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(30 * 24 * time.Hour)
	linkedin := &fakeAdapter{
		platform: models.PlatformLinkedin,
		limit:    3000,
		results:  []publishResult{{id: "li-1"}},
	}
	twitter := &fakeAdapter{platform: models.PlatformTwitter, limit: 280}
	cr := newFakeConnRepo(
		activeConn(t, models.PlatformLinkedin, "li-token", expiry),
		activeConn(t, models.PlatformTwitter, "tw-token", expiry),
	)

	post := &models.Post{
		ID:        "p1",
		Content:   strings.Repeat("x", 281),
		Platforms: []models.Platform{models.PlatformLinkedin, models.PlatformTwitter},
	}
	c, ps := newTestCoordinator(post, cr, linkedin, twitter)

	if err := c.Publish(context.Background(), "p1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if twitter.publishCount() != 0 {
		t.Fatal("over-limit content reached the twitter adapter")
	}
	if ps.finalStatus != models.PostStatusPublished {
		t.Fatalf("final status %s, want published (linkedin under its limit)", ps.finalStatus)
	}
	if !strings.Contains(ps.finalErrorDetail, "limit is 280") {
		t.Fatalf("error detail %q does not mention the limit", ps.finalErrorDetail)
	}
}

func TestPublishMediaOnlyPlatformsRejectTextOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		platform models.Platform
		limit    int
	}{
		{name: "instagram", platform: models.PlatformInstagram, limit: 2200},
		{name: "threads", platform: models.PlatformThreads, limit: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			expiry := time.Now().Add(30 * 24 * time.Hour)
			adapter := &fakeAdapter{platform: tt.platform, limit: tt.limit}
			cr := newFakeConnRepo(activeConn(t, tt.platform, "token", expiry))

			post := &models.Post{
				ID:        "p1",
				Content:   "text only",
				Platforms: []models.Platform{tt.platform},
			}
			c, ps := newTestCoordinator(post, cr, adapter)

			if err := c.Publish(context.Background(), "p1"); err != nil {
				t.Fatalf("Publish failed: %v", err)
			}
			if adapter.publishCount() != 0 {
				t.Fatalf("text-only post reached the %s adapter", tt.platform)
			}
			if ps.finalStatus != models.PostStatusFailed {
				t.Fatalf("final status %s, want failed", ps.finalStatus)
			}
			if !strings.Contains(ps.finalErrorDetail, "requires at least one image or video") {
				t.Fatalf("error detail %q does not name the media requirement", ps.finalErrorDetail)
			}
		})
	}
}

func TestCommentDelayDefault(t *testing.T) {
	t.Parallel()

	if commentDelay < time.Second {
		t.Fatalf("comment delay is %v, want at least one second between comments", commentDelay)
	}

	c := NewPublishCoordinator(&fakePostStore{}, newFakeConnRepo(), nil, nil, nil)
	if c.delay != commentDelay {
		t.Fatalf("coordinator delay %v, want the default %v", c.delay, commentDelay)
	}
}

func TestPublishNoActiveConnection(t *testing.T) {
	t.Parallel()

	twitter := &fakeAdapter{platform: models.PlatformTwitter, limit: 280}
	cr := newFakeConnRepo() // nothing connected

	post := &models.Post{
		ID:        "p1",
		Content:   "hello",
		Platforms: []models.Platform{models.PlatformTwitter},
	}
	c, ps := newTestCoordinator(post, cr, twitter)

	if err := c.Publish(context.Background(), "p1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if !strings.Contains(ps.finalErrorDetail, "no active twitter connection") {
		t.Fatalf("error detail %q, want missing connection", ps.finalErrorDetail)
	}
}

func TestPublishRefreshesOnceOnAuthRejection(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(30 * 24 * time.Hour)
	twitter := &fakeAdapter{
		platform: models.PlatformTwitter,
		limit:    280,
		results: []publishResult{
			{err: &platforms.AuthError{Platform: models.PlatformTwitter, StatusCode: 401}},
			{id: "tw-2"},
		},
		refreshResult: &platforms.RefreshResult{AccessToken: "rotated-token", ExpiresIn: 7200},
	}
	conn := activeConn(t, models.PlatformTwitter, "stale-token", expiry)
	conn.RefreshToken = mustEncrypt(t, "refresh-token")
	cr := newFakeConnRepo(conn)

	post := &models.Post{
		ID:        "p1",
		Content:   "hello",
		Platforms: []models.Platform{models.PlatformTwitter},
	}
	c, ps := newTestCoordinator(post, cr, twitter)

	if err := c.Publish(context.Background(), "p1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if ps.finalStatus != models.PostStatusPublished {
		t.Fatalf("final status %s, want published after refresh-and-retry", ps.finalStatus)
	}
	if twitter.refreshCalls != 1 {
		t.Fatalf("refresh called %d times, want exactly 1", twitter.refreshCalls)
	}
	if got := twitter.publishTokens; len(got) != 2 || got[1] != "rotated-token" {
		t.Fatalf("publish tokens %v, want retry with the rotated token", got)
	}
}

func TestPublishCommentsInOrder(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(30 * 24 * time.Hour)
	linkedin := &fakeAdapter{
		platform:     models.PlatformLinkedin,
		limit:        3000,
		results:      []publishResult{{id: "li-1"}},
		commentErrOn: "second",
	}
	cr := newFakeConnRepo(activeConn(t, models.PlatformLinkedin, "li-token", expiry))

	post := &models.Post{
		ID:        "p1",
		Content:   "hello",
		Platforms: []models.Platform{models.PlatformLinkedin},
		Comments:  []string{"first", "   ", "second", "third"},
	}
	c, ps := newTestCoordinator(post, cr, linkedin)

	if err := c.Publish(context.Background(), "p1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	want := []string{"first", "second", "third"}
	if len(linkedin.comments) != len(want) {
		t.Fatalf("comments posted %v, want %v", linkedin.comments, want)
	}
	for i, text := range want {
		if linkedin.comments[i] != text {
			t.Fatalf("comment %d is %q, want %q (order must be preserved)", i, linkedin.comments[i], text)
		}
	}

	// Comment failures never change the publish outcome.
	if ps.finalStatus != models.PostStatusPublished {
		t.Fatalf("final status %s, want published despite a failed comment", ps.finalStatus)
	}
}

func TestPublishMissingPost(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(nil, newFakeConnRepo())
	if err := c.Publish(context.Background(), "absent"); err == nil {
		t.Fatal("Publish succeeded for a missing post")
	}
}
