package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/quickai/quickai/internal/cache"
	"github.com/quickai/quickai/internal/delegate"
	"github.com/quickai/quickai/internal/identity"
	"github.com/quickai/quickai/internal/metrics"
	"github.com/quickai/quickai/internal/model"
	"github.com/quickai/quickai/internal/repository"
	"github.com/quickai/quickai/internal/usagesync"
)

type fakeStore struct {
	created   []*model.Creation
	creations map[string]*model.Creation
	createErr error
	updateErr error
}

func (s *fakeStore) CreateCreation(_ context.Context, c *model.Creation) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, c)
	return nil
}

func (s *fakeStore) GetCreation(_ context.Context, id string) (*model.Creation, error) {
	c, ok := s.creations[id]
	if !ok {
		return nil, repository.ErrCreationNotFound
	}
	return c, nil
}

func (s *fakeStore) ListUserCreations(_ context.Context, userID string) ([]*model.Creation, error) {
	var out []*model.Creation
	for _, c := range s.creations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) ListPublishedCreations(_ context.Context, _ int) ([]*model.Creation, error) {
	var out []*model.Creation
	for _, c := range s.creations {
		if c.Publish {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateCreationLikes(_ context.Context, id string, likes []string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	c, ok := s.creations[id]
	if !ok {
		return repository.ErrCreationNotFound
	}
	c.Likes = likes
	return nil
}

type fakeUsage struct {
	used       int64
	limit      int64
	reserveErr error
	releases   int
}

func (u *fakeUsage) ReserveUsage(_ context.Context, _ string, limit, seed int) (*cache.UsageReservation, error) {
	if u.reserveErr != nil {
		return nil, u.reserveErr
	}
	if u.used == 0 && seed > 0 {
		u.used = int64(seed)
	}
	if u.used >= int64(limit) {
		return &cache.UsageReservation{Allowed: false, Used: u.used}, nil
	}
	u.used++
	return &cache.UsageReservation{Allowed: true, Used: u.used}, nil
}

func (u *fakeUsage) ReleaseUsage(_ context.Context, _ string) error {
	u.releases++
	if u.used > 0 {
		u.used--
	}
	return nil
}

type fakePublisher struct {
	events []usagesync.Event
}

func (p *fakePublisher) PublishAsync(e usagesync.Event) {
	p.events = append(p.events, e)
}

type fakeText struct {
	content string
	err     error
	prompts []string
}

func (t *fakeText) Complete(_ context.Context, prompt string, _ int) (string, error) {
	t.prompts = append(t.prompts, prompt)
	if t.err != nil {
		return "", t.err
	}
	return t.content, nil
}

type fakeImage struct {
	data []byte
	err  error
}

func (i *fakeImage) Generate(_ context.Context, _ string) ([]byte, error) {
	if i.err != nil {
		return nil, i.err
	}
	return i.data, nil
}

type fakeMedia struct {
	result    *delegate.UploadResult
	err       error
	transform string
}

func (m *fakeMedia) UploadDataURI(_ context.Context, _, transformation string) (*delegate.UploadResult, error) {
	m.transform = transformation
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *fakeMedia) UploadFile(_ context.Context, _, transformation string) (*delegate.UploadResult, error) {
	m.transform = transformation
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *fakeMedia) ObjectRemovalURL(publicID, object string) string {
	return "https://media.example.com/e_gen_remove:prompt_" + object + "/" + publicID
}

type fakeResume struct {
	text string
	err  error
}

func (r *fakeResume) Extract(_ string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.text, nil
}

type testEnv struct {
	svc    *GenerationService
	store  *fakeStore
	usage  *fakeUsage
	pub    *fakePublisher
	text   *fakeText
	image  *fakeImage
	media  *fakeMedia
	resume *fakeResume
	rec    *metrics.InMemoryRecorder
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:  &fakeStore{creations: map[string]*model.Creation{}},
		usage:  &fakeUsage{},
		pub:    &fakePublisher{},
		text:   &fakeText{content: "generated text"},
		image:  &fakeImage{data: []byte("png-bytes")},
		media:  &fakeMedia{result: &delegate.UploadResult{PublicID: "pub-1", SecureURL: "https://media.example.com/pub-1.png"}},
		resume: &fakeResume{text: "resume body"},
		rec:    metrics.NewInMemory(),
	}
	env.svc = NewGenerationService(Config{
		Store:     env.store,
		Usage:     env.usage,
		UsagePub:  env.pub,
		Text:      env.text,
		Image:     env.image,
		Media:     env.media,
		Resume:    env.resume,
		FreeLimit: 10,
		Logger:    slog.New(slog.NewTextHandler(testWriter{}, nil)),
		Metrics:   env.rec,
	})
	return env
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func ctxWith(plan model.Plan, freeUsage int) context.Context {
	return identity.ContextWithIdentity(context.Background(), &model.Identity{
		UserID:    "user_1",
		Plan:      plan,
		FreeUsage: freeUsage,
	})
}

func TestGenerateArticle(t *testing.T) {
	env := newTestEnv()

	content, err := env.svc.GenerateArticle(ctxWith(model.PlanFree, 0), "The future of cats", 800)
	if err != nil {
		t.Fatalf("GenerateArticle() error = %v", err)
	}
	if content != "generated text" {
		t.Errorf("content = %q, want %q", content, "generated text")
	}

	if len(env.store.created) != 1 {
		t.Fatalf("created %d rows, want 1", len(env.store.created))
	}
	c := env.store.created[0]
	if c.Type != model.CreationTypeArticle {
		t.Errorf("type = %q, want %q", c.Type, model.CreationTypeArticle)
	}
	if c.Prompt != "The future of cats" {
		t.Errorf("prompt = %q", c.Prompt)
	}
	if c.Publish {
		t.Error("article should not be published")
	}
	if c.ID == "" || c.UserID != "user_1" {
		t.Errorf("unexpected row identity: id=%q user=%q", c.ID, c.UserID)
	}

	if len(env.pub.events) != 1 {
		t.Fatalf("published %d usage events, want 1", len(env.pub.events))
	}
	if env.pub.events[0].Used != 1 {
		t.Errorf("usage event used = %d, want 1", env.pub.events[0].Used)
	}
}

func TestGenerateArticleValidation(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		name    string
		prompt  string
		length  int
		wantErr error
	}{
		{"empty prompt", "", 800, ErrEmptyPrompt},
		{"blank prompt", "   ", 800, ErrEmptyPrompt},
		{"zero length", "cats", 0, ErrInvalidArticleLength},
		{"off-menu length", "cats", 1000, ErrInvalidArticleLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.GenerateArticle(ctxWith(model.PlanFree, 0), tt.prompt, tt.length)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(env.store.created) != 0 {
		t.Errorf("validation failures created %d rows", len(env.store.created))
	}
	if env.usage.used != 0 {
		t.Errorf("validation failures consumed quota: used = %d", env.usage.used)
	}
}

func TestGenerateArticleQuotaBoundary(t *testing.T) {
	env := newTestEnv()

	// Seeded at 9 of 10, the next request fits and lands the counter
	// exactly on the limit.
	content, err := env.svc.GenerateArticle(ctxWith(model.PlanFree, 9), "cats", 800)
	if err != nil {
		t.Fatalf("request at 9/10 failed: %v", err)
	}
	if content == "" {
		t.Error("expected content")
	}
	if env.usage.used != 10 {
		t.Errorf("used = %d, want 10", env.usage.used)
	}

	// The request after that is rejected without touching a delegate.
	calls := len(env.text.prompts)
	_, err = env.svc.GenerateArticle(ctxWith(model.PlanFree, 9), "cats", 800)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("error = %v, want ErrQuotaExceeded", err)
	}
	if len(env.text.prompts) != calls {
		t.Error("rejected request reached the completion delegate")
	}
	if len(env.store.created) != 1 {
		t.Errorf("created %d rows, want 1", len(env.store.created))
	}
}

func TestGenerateArticlePremiumBypassesQuota(t *testing.T) {
	env := newTestEnv()

	for i := 0; i < 15; i++ {
		if _, err := env.svc.GenerateArticle(ctxWith(model.PlanPremium, 10), "cats", 800); err != nil {
			t.Fatalf("premium request %d failed: %v", i, err)
		}
	}

	if env.usage.used != 0 {
		t.Errorf("premium requests consumed quota: used = %d", env.usage.used)
	}
	if len(env.pub.events) != 0 {
		t.Errorf("premium requests published %d usage events", len(env.pub.events))
	}
}

func TestGenerateArticleDelegateFailureReleasesQuota(t *testing.T) {
	env := newTestEnv()
	env.text.err = delegate.ErrVendor

	_, err := env.svc.GenerateArticle(ctxWith(model.PlanFree, 0), "cats", 800)
	if !errors.Is(err, delegate.ErrVendor) {
		t.Fatalf("error = %v, want ErrVendor", err)
	}

	if env.usage.releases != 1 {
		t.Errorf("releases = %d, want 1", env.usage.releases)
	}
	if env.usage.used != 0 {
		t.Errorf("used = %d, want 0 after release", env.usage.used)
	}
	if len(env.store.created) != 0 {
		t.Errorf("failed request created %d rows", len(env.store.created))
	}
	if len(env.pub.events) != 0 {
		t.Errorf("failed request published %d usage events", len(env.pub.events))
	}
}

func TestGenerateArticlePersistFailureReleasesQuota(t *testing.T) {
	env := newTestEnv()
	env.store.createErr = errors.New("connection refused")

	_, err := env.svc.GenerateArticle(ctxWith(model.PlanFree, 0), "cats", 800)
	if err == nil {
		t.Fatal("expected error")
	}

	if env.usage.releases != 1 {
		t.Errorf("releases = %d, want 1", env.usage.releases)
	}
	if len(env.pub.events) != 0 {
		t.Errorf("failed request published %d usage events", len(env.pub.events))
	}
}

func TestGenerateArticleCounterFallback(t *testing.T) {
	env := newTestEnv()
	env.usage.reserveErr = errors.New("redis: connection refused")

	// Under the limit by the provider's value: allowed.
	if _, err := env.svc.GenerateArticle(ctxWith(model.PlanFree, 3), "cats", 800); err != nil {
		t.Fatalf("fallback under limit failed: %v", err)
	}
	if len(env.pub.events) != 1 || env.pub.events[0].Used != 4 {
		t.Errorf("fallback usage event = %+v, want used 4", env.pub.events)
	}

	// At the limit: rejected.
	_, err := env.svc.GenerateArticle(ctxWith(model.PlanFree, 10), "cats", 800)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("fallback at limit error = %v, want ErrQuotaExceeded", err)
	}
}

func TestGenerateBlogTitle(t *testing.T) {
	env := newTestEnv()

	content, err := env.svc.GenerateBlogTitle(ctxWith(model.PlanFree, 0), "blog about cats")
	if err != nil {
		t.Fatalf("GenerateBlogTitle() error = %v", err)
	}
	if content != "generated text" {
		t.Errorf("content = %q", content)
	}
	if env.store.created[0].Type != model.CreationTypeBlogTitle {
		t.Errorf("type = %q, want %q", env.store.created[0].Type, model.CreationTypeBlogTitle)
	}

	if _, err := env.svc.GenerateBlogTitle(ctxWith(model.PlanFree, 0), " "); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("blank prompt error = %v, want ErrEmptyPrompt", err)
	}
}

func TestGenerateImage(t *testing.T) {
	env := newTestEnv()

	url, err := env.svc.GenerateImage(ctxWith(model.PlanPremium, 0), "a cat in space", true)
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if url != "https://media.example.com/pub-1.png" {
		t.Errorf("url = %q", url)
	}

	c := env.store.created[0]
	if c.Type != model.CreationTypeImage {
		t.Errorf("type = %q", c.Type)
	}
	if !c.Publish {
		t.Error("publish flag not persisted")
	}
	if c.Content != url {
		t.Errorf("content = %q, want hosted URL", c.Content)
	}
	if env.usage.used != 0 {
		t.Error("premium image generation consumed quota")
	}
}

func TestGenerateImageRequiresPremium(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.GenerateImage(ctxWith(model.PlanFree, 0), "a cat", false)
	if !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("error = %v, want ErrPremiumRequired", err)
	}

	snap := env.rec.Snapshot()
	if snap.GateRejections["premium"] != 1 {
		t.Errorf("gate rejections[premium] = %d, want 1", snap.GateRejections["premium"])
	}
}

func TestRemoveBackground(t *testing.T) {
	env := newTestEnv()

	url, err := env.svc.RemoveBackground(ctxWith(model.PlanPremium, 0), "/tmp/upload.png")
	if err != nil {
		t.Fatalf("RemoveBackground() error = %v", err)
	}
	if url != "https://media.example.com/pub-1.png" {
		t.Errorf("url = %q", url)
	}
	if env.media.transform != delegate.TransformBackgroundRemoval {
		t.Errorf("transformation = %q, want %q", env.media.transform, delegate.TransformBackgroundRemoval)
	}

	if _, err := env.svc.RemoveBackground(ctxWith(model.PlanFree, 0), "/tmp/upload.png"); !errors.Is(err, ErrPremiumRequired) {
		t.Errorf("free plan error = %v, want ErrPremiumRequired", err)
	}
}

func TestRemoveObject(t *testing.T) {
	env := newTestEnv()

	url, err := env.svc.RemoveObject(ctxWith(model.PlanPremium, 0), "/tmp/upload.png", "car")
	if err != nil {
		t.Fatalf("RemoveObject() error = %v", err)
	}
	if !strings.Contains(url, "e_gen_remove:prompt_car") {
		t.Errorf("url = %q, want removal transform for %q", url, "car")
	}

	c := env.store.created[0]
	if c.Content != url {
		t.Errorf("content = %q, want %q", c.Content, url)
	}
}

func TestRemoveObjectNameValidation(t *testing.T) {
	env := newTestEnv()
	ctx := ctxWith(model.PlanPremium, 0)

	tests := []struct {
		name    string
		object  string
		wantErr bool
	}{
		{"single word", "car", false},
		{"padded single word", "  car  ", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"two words", "red car", true},
		{"tab separated", "red\tcar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.RemoveObject(ctx, "/tmp/upload.png", tt.object)
			if tt.wantErr && !errors.Is(err, ErrInvalidObjectName) {
				t.Errorf("error = %v, want ErrInvalidObjectName", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestReviewResume(t *testing.T) {
	env := newTestEnv()

	content, err := env.svc.ReviewResume(ctxWith(model.PlanPremium, 0), "/tmp/resume.pdf")
	if err != nil {
		t.Fatalf("ReviewResume() error = %v", err)
	}
	if content != "generated text" {
		t.Errorf("content = %q", content)
	}

	if len(env.text.prompts) != 1 {
		t.Fatalf("completion calls = %d, want 1", len(env.text.prompts))
	}
	prompt := env.text.prompts[0]
	if !strings.HasPrefix(prompt, "Review the following resume") {
		t.Errorf("prompt missing review framing: %q", prompt)
	}
	if !strings.Contains(prompt, "resume body") {
		t.Errorf("prompt missing extracted text: %q", prompt)
	}

	if env.store.created[0].Type != model.CreationTypeResumeReview {
		t.Errorf("type = %q", env.store.created[0].Type)
	}
}

func TestReviewResumeExtractFailure(t *testing.T) {
	env := newTestEnv()
	env.resume.err = delegate.ErrFileTooLarge

	_, err := env.svc.ReviewResume(ctxWith(model.PlanPremium, 0), "/tmp/resume.pdf")
	if !errors.Is(err, delegate.ErrFileTooLarge) {
		t.Fatalf("error = %v, want ErrFileTooLarge", err)
	}
	if len(env.text.prompts) != 0 {
		t.Error("extraction failure still called the completion delegate")
	}
	if len(env.store.created) != 0 {
		t.Error("extraction failure created a row")
	}

	snap := env.rec.Snapshot()
	if snap.Generations["resume-review:failed"] != 1 {
		t.Errorf("generations[resume-review:failed] = %d, want 1", snap.Generations["resume-review:failed"])
	}
}

func TestToggleLike(t *testing.T) {
	env := newTestEnv()
	env.store.creations["c1"] = &model.Creation{
		ID:     "c1",
		UserID: "other",
		Likes:  []string{"someone_else"},
	}
	ctx := ctxWith(model.PlanFree, 0)

	liked, count, err := env.svc.ToggleLike(ctx, "c1")
	if err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}
	if !liked || count != 2 {
		t.Errorf("liked=%v count=%d, want true 2", liked, count)
	}

	liked, count, err = env.svc.ToggleLike(ctx, "c1")
	if err != nil {
		t.Fatalf("second ToggleLike() error = %v", err)
	}
	if liked || count != 1 {
		t.Errorf("liked=%v count=%d, want false 1", liked, count)
	}
}

func TestToggleLikeNotFound(t *testing.T) {
	env := newTestEnv()

	_, _, err := env.svc.ToggleLike(ctxWith(model.PlanFree, 0), "missing")
	if !errors.Is(err, ErrCreationNotFound) {
		t.Errorf("error = %v, want ErrCreationNotFound", err)
	}
}

func TestNoIdentity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.GenerateArticle(ctx, "cats", 800); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("GenerateArticle error = %v, want ErrNoIdentity", err)
	}
	if _, err := env.svc.GenerateImage(ctx, "cats", false); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("GenerateImage error = %v, want ErrNoIdentity", err)
	}
	if _, _, err := env.svc.ToggleLike(ctx, "c1"); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("ToggleLike error = %v, want ErrNoIdentity", err)
	}
}
