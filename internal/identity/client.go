package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/quickai/quickai/internal/model"
)

var (
	// ErrUserNotFound is returned when the provider has no record of the user.
	ErrUserNotFound = errors.New("user not found")
)

const (
	// clientTimeout is the total request timeout for provider calls.
	clientTimeout = 10 * time.Second
	// dialTimeout is the connection timeout.
	dialTimeout = 5 * time.Second
)

// Client is a REST client for the identity provider's backend API.
// It reads the user's plan and free-usage counter from the user's
// private metadata and writes the counter back.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient creates a provider API client.
func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		httpClient: &http.Client{
			Timeout: clientTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// userResponse is the provider's user record shape.
type userResponse struct {
	ID              string `json:"id"`
	PrivateMetadata struct {
		Plan      string `json:"plan"`
		FreeUsage int    `json:"free_usage"`
	} `json:"private_metadata"`
}

// GetUser fetches a user record and maps it to an Identity.
// Users without a plan in their metadata default to the free plan.
func (c *Client) GetUser(ctx context.Context, userID string) (*model.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch user: provider returned %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}

	plan := model.Plan(user.PrivateMetadata.Plan)
	if !plan.IsValid() {
		plan = model.PlanFree
	}

	return &model.Identity{
		UserID:    user.ID,
		Plan:      plan,
		FreeUsage: user.PrivateMetadata.FreeUsage,
	}, nil
}

// SetFreeUsage writes the free-usage counter into the user's private
// metadata. The provider merges metadata patches, so only the counter
// is touched.
func (c *Client) SetFreeUsage(ctx context.Context, userID string, freeUsage int) error {
	payload := map[string]any{
		"private_metadata": map[string]any{
			"free_usage": freeUsage,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal metadata patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/users/"+userID+"/metadata", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update metadata: provider returned %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	return nil
}

// readErrorBody reads a bounded amount of an error response body for logging.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
