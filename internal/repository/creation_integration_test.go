//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quickai/quickai/internal/model"
	"github.com/quickai/quickai/internal/testutil"
)

func newCreationTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	dbURL := testutil.RequireEnv(t, "TEST_DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("failed to acquire DB lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := testutil.ResetCreationsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("failed to reset schema: %v", err)
	}

	return ctx, repo
}

func TestIntegrationCreationRepository_CreateAndGet(t *testing.T) {
	ctx, repo := newCreationTestEnv(t)

	c := testutil.NewTestCreation(t, testutil.UniqueUserID("create"), model.CreationTypeArticle)

	if err := repo.CreateCreation(ctx, c); err != nil {
		t.Fatalf("CreateCreation failed: %v", err)
	}

	got, err := repo.GetCreation(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCreation failed: %v", err)
	}

	if got.UserID != c.UserID {
		t.Errorf("UserID mismatch: got %q, want %q", got.UserID, c.UserID)
	}
	if got.Type != model.CreationTypeArticle {
		t.Errorf("Type mismatch: got %q", got.Type)
	}
	if len(got.Likes) != 0 {
		t.Errorf("expected empty like set, got %v", got.Likes)
	}
}

func TestIntegrationCreationRepository_GetMissing(t *testing.T) {
	ctx, repo := newCreationTestEnv(t)

	_, err := repo.GetCreation(ctx, "01J00000000000000000MISSING")
	if !errors.Is(err, ErrCreationNotFound) {
		t.Fatalf("expected ErrCreationNotFound, got %v", err)
	}
}

func TestIntegrationCreationRepository_ListPublished(t *testing.T) {
	ctx, repo := newCreationTestEnv(t)

	userID := testutil.UniqueUserID("publish")

	private := testutil.NewTestCreation(t, userID, model.CreationTypeImage)
	if err := repo.CreateCreation(ctx, private); err != nil {
		t.Fatalf("CreateCreation failed: %v", err)
	}

	published := testutil.NewTestCreation(t, userID, model.CreationTypeImage)
	published.Publish = true
	if err := repo.CreateCreation(ctx, published); err != nil {
		t.Fatalf("CreateCreation failed: %v", err)
	}

	got, err := repo.ListPublishedCreations(ctx, 50)
	if err != nil {
		t.Fatalf("ListPublishedCreations failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 published creation, got %d", len(got))
	}
	if got[0].ID != published.ID {
		t.Errorf("expected published creation %s, got %s", published.ID, got[0].ID)
	}
}

func TestIntegrationCreationRepository_UpdateLikes(t *testing.T) {
	ctx, repo := newCreationTestEnv(t)

	c := testutil.NewTestCreation(t, testutil.UniqueUserID("likes"), model.CreationTypeImage)
	if err := repo.CreateCreation(ctx, c); err != nil {
		t.Fatalf("CreateCreation failed: %v", err)
	}

	if err := repo.UpdateCreationLikes(ctx, c.ID, []string{"user_2def"}); err != nil {
		t.Fatalf("UpdateCreationLikes failed: %v", err)
	}

	got, err := repo.GetCreation(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCreation failed: %v", err)
	}
	if len(got.Likes) != 1 || got.Likes[0] != "user_2def" {
		t.Errorf("unexpected like set: %v", got.Likes)
	}

	if err := repo.UpdateCreationLikes(ctx, "01J00000000000000000MISSING", nil); !errors.Is(err, ErrCreationNotFound) {
		t.Fatalf("expected ErrCreationNotFound for missing row, got %v", err)
	}
}
