package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// maxImageResponseSize caps how much image data is read from the vendor (16MB).
const maxImageResponseSize = 16 << 20

// ImageClient calls a text-to-image synthesis endpoint.
// The vendor returns raw image bytes, not JSON.
type ImageClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewImageClient creates an image synthesis client.
func NewImageClient(url, apiKey string, httpClient *http.Client) *ImageClient {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &ImageClient{
		url:        url,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Generate synthesizes an image from a text prompt and returns the raw
// image bytes.
func (c *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	if err := writer.WriteField("prompt", prompt); err != nil {
		return nil, fmt.Errorf("build image form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build image form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &form)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image API returned %d: %s", ErrVendor, resp.StatusCode, readVendorError(resp.Body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read image body: %v", ErrVendor, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image API returned empty body", ErrVendor)
	}

	return data, nil
}

// readVendorError extracts an error message from a JSON error body,
// falling back to the raw body.
func readVendorError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}

	return string(bytes.TrimSpace(data))
}
