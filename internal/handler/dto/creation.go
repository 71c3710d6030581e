// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/quickai/quickai/internal/model"
)

// GenerateArticleRequest represents the request body for article generation.
type GenerateArticleRequest struct {
	Prompt string `json:"prompt"`
	Length int    `json:"length"`
}

// GenerateBlogTitleRequest represents the request body for blog title generation.
type GenerateBlogTitleRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateImageRequest represents the request body for image generation.
type GenerateImageRequest struct {
	Prompt  string `json:"prompt"`
	Publish bool   `json:"publish,omitempty"`
}

// ContentResponse is the success envelope for every endpoint.
type ContentResponse struct {
	Success bool `json:"success"`
	Content any  `json:"content"`
}

// MessageResponse is the failure envelope for every endpoint.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ToggleLikeResult is the content payload for a like toggle.
type ToggleLikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

// CreationResponse represents a creation in API responses.
type CreationResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Prompt    string    `json:"prompt"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Publish   bool      `json:"publish"`
	Likes     []string  `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
}

// ToCreationResponse converts a model.Creation to a CreationResponse.
func ToCreationResponse(c *model.Creation) CreationResponse {
	likes := c.Likes
	if likes == nil {
		likes = []string{}
	}
	return CreationResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		Prompt:    c.Prompt,
		Content:   c.Content,
		Type:      string(c.Type),
		Publish:   c.Publish,
		Likes:     likes,
		CreatedAt: c.CreatedAt,
	}
}

// ToCreationResponses converts a slice of creations.
func ToCreationResponses(creations []*model.Creation) []CreationResponse {
	out := make([]CreationResponse, 0, len(creations))
	for _, c := range creations {
		out = append(out, ToCreationResponse(c))
	}
	return out
}
