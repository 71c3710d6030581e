package cache

import "testing"

func TestUsageKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		userID string
		want   string
	}{
		{"simple", "user_2abc", "usage:free:user_2abc"},
		{"empty", "", "usage:free:"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := usageKey(tt.userID); got != tt.want {
				t.Errorf("usageKey(%q) = %q, want %q", tt.userID, got, tt.want)
			}
		})
	}
}

func TestUsageKey_DistinctUsers(t *testing.T) {
	t.Parallel()

	if usageKey("user_a") == usageKey("user_b") {
		t.Error("different users must map to different counter keys")
	}
}
