// Package model defines domain entities for the application.
package model

import "time"

// CreationType identifies which tool produced a creation.
type CreationType string

const (
	CreationTypeArticle      CreationType = "article"
	CreationTypeBlogTitle    CreationType = "blog-title"
	CreationTypeImage        CreationType = "image"
	CreationTypeResumeReview CreationType = "resume-review"
)

// IsValid checks if the creation type is known.
func (t CreationType) IsValid() bool {
	switch t {
	case CreationTypeArticle, CreationTypeBlogTitle, CreationTypeImage, CreationTypeResumeReview:
		return true
	}
	return false
}

// Creation is the persisted record of one successful generation.
// Rows are append-only; only the Likes set is mutated after insert.
type Creation struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Prompt    string       `json:"prompt"`
	Content   string       `json:"content"`
	Type      CreationType `json:"type"`
	Publish   bool         `json:"publish"`
	Likes     []string     `json:"likes"`
	CreatedAt time.Time    `json:"created_at"`
}

// LikedBy reports whether the given user has liked this creation.
func (c *Creation) LikedBy(userID string) bool {
	for _, id := range c.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// ToggleLike adds the user to the like set if absent, removes them if
// present, and returns the resulting liked state. Toggling twice is a
// no-op on the set.
func (c *Creation) ToggleLike(userID string) bool {
	for i, id := range c.Likes {
		if id == userID {
			c.Likes = append(c.Likes[:i], c.Likes[i+1:]...)
			return false
		}
	}
	c.Likes = append(c.Likes, userID)
	return true
}
