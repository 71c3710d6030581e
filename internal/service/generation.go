// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quickai/quickai/internal/cache"
	"github.com/quickai/quickai/internal/delegate"
	"github.com/quickai/quickai/internal/identity"
	"github.com/quickai/quickai/internal/metrics"
	"github.com/quickai/quickai/internal/model"
	"github.com/quickai/quickai/internal/repository"
	"github.com/quickai/quickai/internal/usagesync"
)

// Service errors.
var (
	ErrNoIdentity           = errors.New("no identity in request context")
	ErrPremiumRequired      = errors.New("premium plan required")
	ErrQuotaExceeded        = errors.New("free usage limit reached")
	ErrEmptyPrompt          = errors.New("prompt must not be empty")
	ErrInvalidArticleLength = errors.New("invalid article length")
	ErrInvalidObjectName    = errors.New("object name must be a single word")
	ErrCreationNotFound     = errors.New("creation not found")
)

// Token budgets per operation.
const (
	blogTitleMaxTokens    = 100
	resumeReviewMaxTokens = 1000
)

// articleLengths are the accepted article token budgets.
var articleLengths = map[int]bool{800: true, 1200: true, 1600: true}

// resumeReviewPrompt frames the extracted resume text for the completion API.
const resumeReviewPrompt = "Review the following resume and provide constructive feedback on its strengths, weaknesses, and areas for improvement:\n\n"

// TextCompleter produces prose from a prompt.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ImageGenerator synthesizes raw image bytes from a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// MediaUploader stores images on the media host.
type MediaUploader interface {
	UploadDataURI(ctx context.Context, dataURI, transformation string) (*delegate.UploadResult, error)
	UploadFile(ctx context.Context, path, transformation string) (*delegate.UploadResult, error)
	ObjectRemovalURL(publicID, object string) string
}

// ResumeTextExtractor pulls plain text out of an uploaded PDF.
type ResumeTextExtractor interface {
	Extract(path string) (string, error)
}

// CreationStore persists generation results.
type CreationStore interface {
	CreateCreation(ctx context.Context, c *model.Creation) error
	GetCreation(ctx context.Context, id string) (*model.Creation, error)
	ListUserCreations(ctx context.Context, userID string) ([]*model.Creation, error)
	ListPublishedCreations(ctx context.Context, limit int) ([]*model.Creation, error)
	UpdateCreationLikes(ctx context.Context, id string, likes []string) error
}

// UsageCounter reserves free-tier quota atomically.
type UsageCounter interface {
	ReserveUsage(ctx context.Context, userID string, limit, seed int) (*cache.UsageReservation, error)
	ReleaseUsage(ctx context.Context, userID string) error
}

// UsagePublisher propagates counter changes to the identity provider.
type UsagePublisher interface {
	PublishAsync(event usagesync.Event)
}

// Config wires the generation service's dependencies.
type Config struct {
	Store     CreationStore
	Usage     UsageCounter
	UsagePub  UsagePublisher
	Text      TextCompleter
	Image     ImageGenerator
	Media     MediaUploader
	Resume    ResumeTextExtractor
	FreeLimit int
	Logger    *slog.Logger
	Metrics   metrics.Recorder
}

// GenerationService orchestrates the request pipeline for every AI
// endpoint: gate on plan/usage, invoke the delegate, persist the
// creation, and account the usage.
type GenerationService struct {
	store     CreationStore
	usage     UsageCounter
	usagePub  UsagePublisher
	text      TextCompleter
	image     ImageGenerator
	media     MediaUploader
	resume    ResumeTextExtractor
	freeLimit int
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewGenerationService creates a GenerationService.
func NewGenerationService(cfg Config) *GenerationService {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FreeLimit <= 0 {
		cfg.FreeLimit = 10
	}
	return &GenerationService{
		store:     cfg.Store,
		usage:     cfg.Usage,
		usagePub:  cfg.UsagePub,
		text:      cfg.Text,
		image:     cfg.Image,
		media:     cfg.Media,
		resume:    cfg.Resume,
		freeLimit: cfg.FreeLimit,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// GenerateArticle runs the counter-gated article pipeline.
// The article length doubles as the completion token budget.
func (s *GenerationService) GenerateArticle(ctx context.Context, prompt string, length int) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if !articleLengths[length] {
		return "", ErrInvalidArticleLength
	}

	return s.runCounterGated(ctx, model.CreationTypeArticle, prompt, func(ctx context.Context) (delegate.Result, error) {
		text, err := s.completeTimed(ctx, prompt, length)
		if err != nil {
			return delegate.Result{}, err
		}
		return delegate.TextResult(text), nil
	})
}

// GenerateBlogTitle runs the counter-gated blog title pipeline.
func (s *GenerationService) GenerateBlogTitle(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	return s.runCounterGated(ctx, model.CreationTypeBlogTitle, prompt, func(ctx context.Context) (delegate.Result, error) {
		text, err := s.completeTimed(ctx, prompt, blogTitleMaxTokens)
		if err != nil {
			return delegate.Result{}, err
		}
		return delegate.TextResult(text), nil
	})
}

// GenerateImage runs the premium-only image synthesis pipeline. The
// synthesized image is re-hosted on the media host and the hosted URL
// is persisted and returned.
func (s *GenerationService) GenerateImage(ctx context.Context, prompt string, publish bool) (string, error) {
	id, err := s.requirePremium(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	start := time.Now()
	raw, err := s.image.Generate(ctx, prompt)
	s.metrics.ObserveDelegateDuration("image_synthesis", time.Since(start))
	if err != nil {
		s.metrics.IncGeneration(string(model.CreationTypeImage), "failed")
		return "", err
	}

	upload, err := s.media.UploadDataURI(ctx, delegate.EncodePNGDataURI(raw), "")
	if err != nil {
		s.metrics.IncGeneration(string(model.CreationTypeImage), "failed")
		return "", err
	}

	if err := s.persist(ctx, id.UserID, prompt, upload.SecureURL, model.CreationTypeImage, publish); err != nil {
		return "", err
	}

	s.metrics.IncGeneration(string(model.CreationTypeImage), "success")
	return upload.SecureURL, nil
}

// RemoveBackground runs the premium-only background removal pipeline.
func (s *GenerationService) RemoveBackground(ctx context.Context, imagePath string) (string, error) {
	id, err := s.requirePremium(ctx)
	if err != nil {
		return "", err
	}

	start := time.Now()
	upload, err := s.media.UploadFile(ctx, imagePath, delegate.TransformBackgroundRemoval)
	s.metrics.ObserveDelegateDuration("media_upload", time.Since(start))
	if err != nil {
		s.metrics.IncGeneration(string(model.CreationTypeImage), "failed")
		return "", err
	}

	if err := s.persist(ctx, id.UserID, "Remove background from image", upload.SecureURL, model.CreationTypeImage, false); err != nil {
		return "", err
	}

	s.metrics.IncGeneration(string(model.CreationTypeImage), "success")
	return upload.SecureURL, nil
}

// RemoveObject runs the premium-only object removal pipeline. The
// returned URL applies the removal transform on delivery, so it can be
// handed out before the media host has rendered the derived image.
func (s *GenerationService) RemoveObject(ctx context.Context, imagePath, object string) (string, error) {
	id, err := s.requirePremium(ctx)
	if err != nil {
		return "", err
	}

	object = strings.TrimSpace(object)
	if object == "" || strings.ContainsAny(object, " \t\n") {
		return "", ErrInvalidObjectName
	}

	start := time.Now()
	upload, err := s.media.UploadFile(ctx, imagePath, "")
	s.metrics.ObserveDelegateDuration("media_upload", time.Since(start))
	if err != nil {
		s.metrics.IncGeneration(string(model.CreationTypeImage), "failed")
		return "", err
	}

	url := s.media.ObjectRemovalURL(upload.PublicID, object)

	prompt := fmt.Sprintf("Removed %s from image", object)
	if err := s.persist(ctx, id.UserID, prompt, url, model.CreationTypeImage, false); err != nil {
		return "", err
	}

	s.metrics.IncGeneration(string(model.CreationTypeImage), "success")
	return url, nil
}

// ReviewResume runs the premium-only resume review pipeline: extract
// the PDF text, then ask the completion API for feedback on it.
func (s *GenerationService) ReviewResume(ctx context.Context, pdfPath string) (string, error) {
	id, err := s.requirePremium(ctx)
	if err != nil {
		return "", err
	}

	start := time.Now()
	text, err := s.resume.Extract(pdfPath)
	s.metrics.ObserveDelegateDuration("pdf_extract", time.Since(start))
	if err != nil {
		s.metrics.IncGeneration(string(model.CreationTypeResumeReview), "failed")
		return "", err
	}

	content, err := s.completeTimed(ctx, resumeReviewPrompt+text, resumeReviewMaxTokens)
	if err != nil {
		s.metrics.IncGeneration(string(model.CreationTypeResumeReview), "failed")
		return "", err
	}

	if err := s.persist(ctx, id.UserID, "Review the uploaded resume", content, model.CreationTypeResumeReview, false); err != nil {
		return "", err
	}

	s.metrics.IncGeneration(string(model.CreationTypeResumeReview), "success")
	return content, nil
}

// ListUserCreations returns the caller's creations, newest first.
func (s *GenerationService) ListUserCreations(ctx context.Context) ([]*model.Creation, error) {
	id := identity.FromContext(ctx)
	if id == nil {
		return nil, ErrNoIdentity
	}
	return s.store.ListUserCreations(ctx, id.UserID)
}

// ListPublishedCreations returns the community feed of published creations.
func (s *GenerationService) ListPublishedCreations(ctx context.Context, limit int) ([]*model.Creation, error) {
	return s.store.ListPublishedCreations(ctx, limit)
}

// ToggleLike flips the caller's like on a creation and returns the new
// liked state and like count. Toggling twice restores the original set.
func (s *GenerationService) ToggleLike(ctx context.Context, creationID string) (bool, int, error) {
	id := identity.FromContext(ctx)
	if id == nil {
		return false, 0, ErrNoIdentity
	}

	c, err := s.store.GetCreation(ctx, creationID)
	if err != nil {
		if errors.Is(err, repository.ErrCreationNotFound) {
			return false, 0, ErrCreationNotFound
		}
		return false, 0, fmt.Errorf("load creation: %w", err)
	}

	liked := c.ToggleLike(id.UserID)

	if err := s.store.UpdateCreationLikes(ctx, c.ID, c.Likes); err != nil {
		if errors.Is(err, repository.ErrCreationNotFound) {
			return false, 0, ErrCreationNotFound
		}
		return false, 0, fmt.Errorf("update likes: %w", err)
	}

	return liked, len(c.Likes), nil
}

// runCounterGated wraps a delegate invocation with the free-usage gate:
// reserve a quota slot, invoke, persist, then commit the reservation.
// Any failure after the reservation releases the slot so failed
// requests do not consume quota.
func (s *GenerationService) runCounterGated(ctx context.Context, typ model.CreationType, prompt string, invoke func(context.Context) (delegate.Result, error)) (string, error) {
	id := identity.FromContext(ctx)
	if id == nil {
		return "", ErrNoIdentity
	}

	reservation, err := s.reserveQuota(ctx, id)
	if err != nil {
		return "", err
	}

	result, err := invoke(ctx)
	if err != nil {
		s.releaseQuota(ctx, id, reservation)
		s.metrics.IncGeneration(string(typ), "failed")
		return "", err
	}

	if err := s.persist(ctx, id.UserID, prompt, result.Content(), typ, false); err != nil {
		s.releaseQuota(ctx, id, reservation)
		return "", err
	}

	s.commitQuota(id, reservation)
	s.metrics.IncGeneration(string(typ), "success")
	return result.Content(), nil
}

// quotaReservation tracks one reserved free-usage slot.
type quotaReservation struct {
	// used is the counter value including this reservation.
	used int64
	// counted is false for premium callers, who never consume quota.
	counted bool
	// held is true when the slot is reserved in Redis and must be
	// released on failure.
	held bool
}

// reserveQuota reserves one quota slot for counter-gated endpoints.
// Premium callers pass through untouched. When the counter backend is
// unavailable the gate falls back to the provider's possibly stale
// value rather than failing the request.
func (s *GenerationService) reserveQuota(ctx context.Context, id *model.Identity) (quotaReservation, error) {
	if id.Plan.IsPremium() {
		return quotaReservation{}, nil
	}

	res, err := s.usage.ReserveUsage(ctx, id.UserID, s.freeLimit, id.FreeUsage)
	if err != nil {
		s.logger.Warn("usage counter unavailable, using provider value",
			"user_id", id.UserID,
			"error", err,
		)
		if id.FreeUsage >= s.freeLimit {
			s.metrics.IncGateRejected("quota")
			return quotaReservation{}, ErrQuotaExceeded
		}
		return quotaReservation{used: int64(id.FreeUsage) + 1, counted: true}, nil
	}

	if !res.Allowed {
		s.metrics.IncGateRejected("quota")
		return quotaReservation{}, ErrQuotaExceeded
	}

	return quotaReservation{used: res.Used, counted: true, held: true}, nil
}

// releaseQuota returns a reserved slot after a downstream failure.
func (s *GenerationService) releaseQuota(ctx context.Context, id *model.Identity, r quotaReservation) {
	if !r.held {
		return
	}
	if err := s.usage.ReleaseUsage(ctx, id.UserID); err != nil {
		s.logger.Warn("failed to release usage reservation",
			"user_id", id.UserID,
			"error", err,
		)
	}
}

// commitQuota propagates a consumed slot to the identity provider.
func (s *GenerationService) commitQuota(id *model.Identity, r quotaReservation) {
	if !r.counted || s.usagePub == nil {
		return
	}
	s.usagePub.PublishAsync(usagesync.Event{
		UserID: id.UserID,
		Used:   r.used,
		At:     time.Now().UnixMilli(),
	})
}

// requirePremium resolves the caller and rejects free-plan users.
func (s *GenerationService) requirePremium(ctx context.Context) (*model.Identity, error) {
	id := identity.FromContext(ctx)
	if id == nil {
		return nil, ErrNoIdentity
	}
	if !id.Plan.IsPremium() {
		s.metrics.IncGateRejected("premium")
		return nil, ErrPremiumRequired
	}
	return id, nil
}

// completeTimed calls the completion API and records its latency.
func (s *GenerationService) completeTimed(ctx context.Context, prompt string, maxTokens int) (string, error) {
	start := time.Now()
	text, err := s.text.Complete(ctx, prompt, maxTokens)
	s.metrics.ObserveDelegateDuration("completion", time.Since(start))
	return text, err
}

// persist inserts exactly one creation row for a successful delegate call.
func (s *GenerationService) persist(ctx context.Context, userID, prompt, content string, typ model.CreationType, publish bool) error {
	c := &model.Creation{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Prompt:    prompt,
		Content:   content,
		Type:      typ,
		Publish:   publish,
		Likes:     []string{},
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateCreation(ctx, c); err != nil {
		s.metrics.IncGeneration(string(typ), "failed")
		return fmt.Errorf("persist creation: %w", err)
	}

	return nil
}
