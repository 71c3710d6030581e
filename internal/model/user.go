// Package model defines domain entities for the application.
package model

// Plan represents a user's subscription plan.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// IsValid checks if the plan is a known plan.
func (p Plan) IsValid() bool {
	return p == PlanFree || p == PlanPremium
}

// IsPremium returns true for paid plans.
func (p Plan) IsPremium() bool {
	return p == PlanPremium
}

// Identity represents the resolved caller for a single request.
// It is produced by the auth middleware from the identity provider's
// user record and carried in the request context.
type Identity struct {
	UserID    string `json:"user_id"`
	Plan      Plan   `json:"plan"`
	FreeUsage int    `json:"free_usage"`
}
