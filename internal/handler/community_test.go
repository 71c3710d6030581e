package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/quickai/quickai/internal/handler/dto"
	"github.com/quickai/quickai/internal/model"
	"github.com/quickai/quickai/internal/service"
)

type fakeCommunity struct {
	published []*model.Creation
	mine      []*model.Creation
	liked     bool
	likes     int
	err       error

	limit    int
	toggleID string
}

func (c *fakeCommunity) ListPublishedCreations(_ context.Context, limit int) ([]*model.Creation, error) {
	c.limit = limit
	return c.published, c.err
}

func (c *fakeCommunity) ListUserCreations(_ context.Context) ([]*model.Creation, error) {
	return c.mine, c.err
}

func (c *fakeCommunity) ToggleLike(_ context.Context, creationID string) (bool, int, error) {
	c.toggleID = creationID
	return c.liked, c.likes, c.err
}

func TestListPublishedHandler(t *testing.T) {
	svc := &fakeCommunity{published: []*model.Creation{
		{ID: "c1", Type: model.CreationTypeImage, Publish: true},
	}}
	h := NewCommunityHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/community/creations?limit=25", nil)
	rec := httptest.NewRecorder()

	h.ListPublished(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.limit != 25 {
		t.Errorf("limit = %d, want 25", svc.limit)
	}

	env := decodeEnvelope(t, rec)
	var creations []dto.CreationResponse
	if err := json.Unmarshal(env.Content, &creations); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if len(creations) != 1 || creations[0].ID != "c1" {
		t.Errorf("creations = %+v", creations)
	}
	if creations[0].Likes == nil {
		t.Error("likes serialized as null, want []")
	}
}

func TestListPublishedHandlerLimitClamped(t *testing.T) {
	svc := &fakeCommunity{}
	h := NewCommunityHandler(svc, discardLogger())

	for _, q := range []string{"limit=0", "limit=500", "limit=abc", ""} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/community/creations?"+q, nil)
		h.ListPublished(httptest.NewRecorder(), req)
		if svc.limit != 50 {
			t.Errorf("query %q: limit = %d, want default 50", q, svc.limit)
		}
	}
}

func TestToggleLikeHandler(t *testing.T) {
	svc := &fakeCommunity{liked: true, likes: 3}
	h := NewCommunityHandler(svc, discardLogger())

	router := chi.NewRouter()
	router.Post("/community/creations/{id}/like", h.ToggleLike)

	req := httptest.NewRequest(http.MethodPost, "/community/creations/c42/like", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.toggleID != "c42" {
		t.Errorf("toggle id = %q", svc.toggleID)
	}

	env := decodeEnvelope(t, rec)
	var result dto.ToggleLikeResult
	if err := json.Unmarshal(env.Content, &result); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if !result.Liked || result.Likes != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestToggleLikeHandlerNotFound(t *testing.T) {
	svc := &fakeCommunity{err: service.ErrCreationNotFound}
	h := NewCommunityHandler(svc, discardLogger())

	router := chi.NewRouter()
	router.Post("/community/creations/{id}/like", h.ToggleLike)

	req := httptest.NewRequest(http.MethodPost, "/community/creations/missing/like", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
