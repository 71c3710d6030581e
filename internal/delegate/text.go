package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// defaultTemperature is used for all completion requests.
const defaultTemperature = 0.7

// TextClient calls an OpenAI-compatible chat completions endpoint.
type TextClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewTextClient creates a text completion client.
func NewTextClient(baseURL, apiKey, model string, httpClient *http.Client) *TextClient {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &TextClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

// chatMessage is one turn in a chat completion request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest is the request body for /chat/completions.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// chatCompletionResponse is the response body from /chat/completions.
type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *vendorError `json:"error,omitempty"`
}

// vendorError is the error shape shared by OpenAI-compatible vendors.
type vendorError struct {
	Message string `json:"message"`
}

// Complete sends a single-prompt completion request and returns the
// first choice's text.
func (c *TextClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: defaultTemperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVendor, err)
	}
	defer resp.Body.Close()

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrVendor, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if completion.Error != nil && completion.Error.Message != "" {
			msg = completion.Error.Message
		}
		return "", fmt.Errorf("%w: completion API returned %d: %s", ErrVendor, resp.StatusCode, msg)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: completion response has no choices", ErrVendor)
	}

	return completion.Choices[0].Message.Content, nil
}
