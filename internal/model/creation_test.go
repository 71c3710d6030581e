package model

import "testing"

func TestCreationType_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		typ   CreationType
		valid bool
	}{
		{"article", CreationTypeArticle, true},
		{"blog_title", CreationTypeBlogTitle, true},
		{"image", CreationTypeImage, true},
		{"resume_review", CreationTypeResumeReview, true},
		{"unknown", CreationType("poem"), false},
		{"empty", CreationType(""), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.typ.IsValid(); got != test.valid {
				t.Errorf("IsValid(%q) = %v, want %v", test.typ, got, test.valid)
			}
		})
	}
}

func TestCreation_ToggleLike(t *testing.T) {
	c := &Creation{Likes: []string{"user_a"}}

	if liked := c.ToggleLike("user_b"); !liked {
		t.Error("expected toggle to like for new user")
	}
	if !c.LikedBy("user_b") {
		t.Error("expected user_b in like set after toggle")
	}

	if liked := c.ToggleLike("user_b"); liked {
		t.Error("expected second toggle to unlike")
	}
	if c.LikedBy("user_b") {
		t.Error("expected user_b removed after second toggle")
	}

	// Round-trip leaves the original set untouched.
	if len(c.Likes) != 1 || c.Likes[0] != "user_a" {
		t.Errorf("like set changed after round-trip: %v", c.Likes)
	}
}

func TestPlan(t *testing.T) {
	if !PlanPremium.IsPremium() {
		t.Error("premium plan should be premium")
	}
	if PlanFree.IsPremium() {
		t.Error("free plan should not be premium")
	}
	if Plan("pro").IsValid() {
		t.Error("unknown plan should be invalid")
	}
}
