package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quickai/quickai/internal/handler/dto"
	"github.com/quickai/quickai/internal/model"
	"github.com/quickai/quickai/internal/service"
)

// Community is the slice of the generation service the community
// endpoints use.
type Community interface {
	ListPublishedCreations(ctx context.Context, limit int) ([]*model.Creation, error)
	ListUserCreations(ctx context.Context) ([]*model.Creation, error)
	ToggleLike(ctx context.Context, creationID string) (bool, int, error)
}

// CommunityHandler handles HTTP requests for the community feed.
type CommunityHandler struct {
	svc    Community
	logger *slog.Logger
}

// NewCommunityHandler creates a new CommunityHandler.
func NewCommunityHandler(svc Community, logger *slog.Logger) *CommunityHandler {
	return &CommunityHandler{
		svc:    svc,
		logger: logger,
	}
}

// ListPublished handles GET /api/v1/community/creations.
func (h *CommunityHandler) ListPublished(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	creations, err := h.svc.ListPublishedCreations(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeContent(w, http.StatusOK, dto.ToCreationResponses(creations))
}

// ListMine handles GET /api/v1/user/creations.
func (h *CommunityHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	creations, err := h.svc.ListUserCreations(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeContent(w, http.StatusOK, dto.ToCreationResponses(creations))
}

// ToggleLike handles POST /api/v1/community/creations/{id}/like.
func (h *CommunityHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeMessage(w, http.StatusBadRequest, "Creation ID is required")
		return
	}

	liked, likes, err := h.svc.ToggleLike(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeContent(w, http.StatusOK, dto.ToggleLikeResult{Liked: liked, Likes: likes})
}

func (h *CommunityHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoIdentity):
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, service.ErrCreationNotFound):
		writeMessage(w, http.StatusNotFound, "Creation not found")
	default:
		h.logger.Error("internal_error", "error", err)
		writeMessage(w, http.StatusInternalServerError, "An internal error occurred")
	}
}
