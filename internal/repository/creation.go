package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quickai/quickai/internal/model"
)

// Common errors for creation repository operations.
var (
	ErrCreationNotFound = errors.New("creation not found")
)

// maxPublishedPageSize caps how many published creations are returned.
const maxPublishedPageSize = 100

// CreateCreation inserts a new creation row.
// Creations are append-only; this is the only insert path.
func (r *Repository) CreateCreation(ctx context.Context, c *model.Creation) error {
	query := `
		INSERT INTO creations (id, user_id, prompt, content, type, publish, likes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	likes := c.Likes
	if likes == nil {
		likes = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.UserID,
		c.Prompt,
		c.Content,
		string(c.Type),
		c.Publish,
		likes,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create creation: %w", err)
	}

	return nil
}

// GetCreation retrieves a creation by ID.
func (r *Repository) GetCreation(ctx context.Context, id string) (*model.Creation, error) {
	query := `
		SELECT id, user_id, prompt, content, type, publish, likes, created_at
		FROM creations
		WHERE id = $1
	`

	c, err := scanCreation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCreationNotFound
		}
		return nil, fmt.Errorf("failed to get creation: %w", err)
	}

	return c, nil
}

// ListUserCreations retrieves all creations owned by a user, newest first.
func (r *Repository) ListUserCreations(ctx context.Context, userID string) ([]*model.Creation, error) {
	query := `
		SELECT id, user_id, prompt, content, type, publish, likes, created_at
		FROM creations
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user creations: %w", err)
	}
	defer rows.Close()

	return collectCreations(rows)
}

// ListPublishedCreations retrieves published image creations, newest first.
func (r *Repository) ListPublishedCreations(ctx context.Context, limit int) ([]*model.Creation, error) {
	if limit <= 0 || limit > maxPublishedPageSize {
		limit = maxPublishedPageSize
	}

	query := `
		SELECT id, user_id, prompt, content, type, publish, likes, created_at
		FROM creations
		WHERE publish = TRUE
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list published creations: %w", err)
	}
	defer rows.Close()

	return collectCreations(rows)
}

// UpdateCreationLikes replaces the like set of a creation.
func (r *Repository) UpdateCreationLikes(ctx context.Context, id string, likes []string) error {
	if likes == nil {
		likes = []string{}
	}

	query := `UPDATE creations SET likes = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, likes)
	if err != nil {
		return fmt.Errorf("failed to update likes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCreationNotFound
	}

	return nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCreation scans a creation from a row.
func scanCreation(row rowScanner) (*model.Creation, error) {
	var (
		c   model.Creation
		typ string
	)

	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Prompt,
		&c.Content,
		&typ,
		&c.Publish,
		&c.Likes,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Type = model.CreationType(typ)
	return &c, nil
}

// collectCreations drains rows into a slice.
func collectCreations(rows pgx.Rows) ([]*model.Creation, error) {
	creations := make([]*model.Creation, 0)
	for rows.Next() {
		c, err := scanCreation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan creation: %w", err)
		}
		creations = append(creations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read creations: %w", err)
	}
	return creations, nil
}
