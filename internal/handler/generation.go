package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/quickai/quickai/internal/delegate"
	"github.com/quickai/quickai/internal/handler/dto"
	"github.com/quickai/quickai/internal/service"
)

// Generator is the slice of the generation service the AI endpoints use.
type Generator interface {
	GenerateArticle(ctx context.Context, prompt string, length int) (string, error)
	GenerateBlogTitle(ctx context.Context, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string, publish bool) (string, error)
	RemoveBackground(ctx context.Context, imagePath string) (string, error)
	RemoveObject(ctx context.Context, imagePath, object string) (string, error)
	ReviewResume(ctx context.Context, pdfPath string) (string, error)
}

// GenerationHandler handles HTTP requests for the AI endpoints.
type GenerationHandler struct {
	svc           Generator
	logger        *slog.Logger
	maxUploadSize int64
	maxResumeSize int64
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(svc Generator, logger *slog.Logger, maxUploadSize, maxResumeSize int64) *GenerationHandler {
	return &GenerationHandler{
		svc:           svc,
		logger:        logger,
		maxUploadSize: maxUploadSize,
		maxResumeSize: maxResumeSize,
	}
}

// GenerateArticle handles POST /api/v1/ai/generate-article.
func (h *GenerationHandler) GenerateArticle(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	content, err := h.svc.GenerateArticle(r.Context(), req.Prompt, req.Length)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("article_generated", "length", req.Length)
	writeContent(w, http.StatusOK, content)
}

// GenerateBlogTitle handles POST /api/v1/ai/generate-blog-title.
func (h *GenerationHandler) GenerateBlogTitle(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateBlogTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	content, err := h.svc.GenerateBlogTitle(r.Context(), req.Prompt)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeContent(w, http.StatusOK, content)
}

// GenerateImage handles POST /api/v1/ai/generate-image.
func (h *GenerationHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	url, err := h.svc.GenerateImage(r.Context(), req.Prompt, req.Publish)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("image_generated", "publish", req.Publish)
	writeContent(w, http.StatusOK, url)
}

// RemoveBackground handles POST /api/v1/ai/remove-image-background.
// Expects a multipart form with an "image" file field.
func (h *GenerationHandler) RemoveBackground(w http.ResponseWriter, r *http.Request) {
	path, cleanup, ok := h.saveUpload(w, r, "image", h.maxUploadSize)
	if !ok {
		return
	}
	defer cleanup()

	url, err := h.svc.RemoveBackground(r.Context(), path)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeContent(w, http.StatusOK, url)
}

// RemoveObject handles POST /api/v1/ai/remove-image-object.
// Expects a multipart form with an "image" file field and an "object"
// text field naming the object to remove.
func (h *GenerationHandler) RemoveObject(w http.ResponseWriter, r *http.Request) {
	path, cleanup, ok := h.saveUpload(w, r, "image", h.maxUploadSize)
	if !ok {
		return
	}
	defer cleanup()

	url, err := h.svc.RemoveObject(r.Context(), path, r.FormValue("object"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeContent(w, http.StatusOK, url)
}

// ReviewResume handles POST /api/v1/ai/resume-review.
// Expects a multipart form with a "resume" file field.
func (h *GenerationHandler) ReviewResume(w http.ResponseWriter, r *http.Request) {
	path, cleanup, ok := h.saveUpload(w, r, "resume", h.maxResumeSize)
	if !ok {
		return
	}
	defer cleanup()

	content, err := h.svc.ReviewResume(r.Context(), path)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeContent(w, http.StatusOK, content)
}

// saveUpload spools the named multipart file field to a temp file and
// returns its path with a cleanup func. On failure it writes the error
// response itself and returns ok=false.
func (h *GenerationHandler) saveUpload(w http.ResponseWriter, r *http.Request, field string, maxSize int64) (string, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
			return "", nil, false
		}
		writeMessage(w, http.StatusBadRequest, "Invalid multipart form")
		return "", nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Missing %q file field", field))
		return "", nil, false
	}

	if header.Size > maxSize {
		file.Close()
		writeMessage(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
		return "", nil, false
	}

	path, err := spoolToTemp(file, header)
	file.Close()
	if err != nil {
		h.logger.Error("failed to spool upload", "error", err)
		writeMessage(w, http.StatusInternalServerError, "An internal error occurred")
		return "", nil, false
	}

	return path, func() { os.Remove(path) }, true
}

// formOverhead leaves room for multipart boundaries and text fields
// beyond the file itself.
const formOverhead = 64 << 10

// spoolToTemp copies an uploaded file to a temp file, preserving the
// original extension so downstream delegates can infer the format.
func spoolToTemp(file multipart.File, header *multipart.FileHeader) (string, error) {
	ext := filepath.Ext(header.Filename)
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	return tmp.Name(), nil
}

// handleServiceError maps service errors to HTTP responses.
func (h *GenerationHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoIdentity):
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, service.ErrPremiumRequired):
		writeMessage(w, http.StatusForbidden, "This feature is only available for premium subscriptions")
	case errors.Is(err, service.ErrQuotaExceeded):
		writeMessage(w, http.StatusForbidden, "Limit reached. Upgrade your plan to continue.")
	case errors.Is(err, service.ErrEmptyPrompt):
		writeMessage(w, http.StatusBadRequest, "Prompt must not be empty")
	case errors.Is(err, service.ErrInvalidArticleLength):
		writeMessage(w, http.StatusBadRequest, "Article length must be 800, 1200 or 1600")
	case errors.Is(err, service.ErrInvalidObjectName):
		writeMessage(w, http.StatusBadRequest, "Please enter only one object name")
	case errors.Is(err, service.ErrCreationNotFound):
		writeMessage(w, http.StatusNotFound, "Creation not found")
	case errors.Is(err, delegate.ErrFileTooLarge):
		writeMessage(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
	case errors.Is(err, delegate.ErrPDFParse), errors.Is(err, delegate.ErrEmptyDocument):
		writeMessage(w, http.StatusBadRequest, "Could not read the uploaded PDF")
	case errors.Is(err, delegate.ErrVendor):
		h.logger.Error("vendor_error", "error", err)
		writeMessage(w, http.StatusBadGateway, "Upstream provider failed, please try again")
	default:
		h.logger.Error("internal_error", "error", err)
		writeMessage(w, http.StatusInternalServerError, "An internal error occurred")
	}
}
