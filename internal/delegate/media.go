package delegate

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TransformBackgroundRemoval is the upload transformation that strips
// the image background server-side.
const TransformBackgroundRemoval = "e_background_removal"

// deliveryBaseURL is where uploaded assets are served from.
const deliveryBaseURL = "https://res.cloudinary.com"

// MediaClient uploads images to the media host and builds transform
// delivery URLs. Uploads are signed with the account's API secret.
type MediaClient struct {
	baseURL    string
	cloudName  string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	now        func() time.Time
}

// NewMediaClient creates a media host client.
func NewMediaClient(baseURL, cloudName, apiKey, apiSecret string, httpClient *http.Client) *MediaClient {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &MediaClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		cloudName:  cloudName,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// UploadResult is the media host's record of an uploaded asset.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

// uploadError is the media host's error shape.
type uploadError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// UploadDataURI uploads an inline base64 data URI.
func (c *MediaClient) UploadDataURI(ctx context.Context, dataURI, transformation string) (*UploadResult, error) {
	return c.upload(ctx, func(w *multipart.Writer) error {
		return w.WriteField("file", dataURI)
	}, transformation)
}

// UploadFile uploads a local file from disk.
func (c *MediaClient) UploadFile(ctx context.Context, path, transformation string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	return c.upload(ctx, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			return err
		}
		_, err = io.Copy(part, f)
		return err
	}, transformation)
}

// upload performs a signed upload with an optional incoming transformation.
func (c *MediaClient) upload(ctx context.Context, writeFile func(*multipart.Writer) error, transformation string) (*UploadResult, error) {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)

	signed := map[string]string{"timestamp": timestamp}
	if transformation != "" {
		signed["transformation"] = transformation
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)

	fields := map[string]string{
		"api_key":   c.apiKey,
		"signature": signUploadParams(signed, c.apiSecret),
	}
	for k, v := range signed {
		fields[k] = v
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("build upload form: %w", err)
		}
	}
	if err := writeFile(writer); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}

	url := fmt.Sprintf("%s/%s/image/upload", c.baseURL, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &form)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var ue uploadError
		msg := http.StatusText(resp.StatusCode)
		if err := json.NewDecoder(resp.Body).Decode(&ue); err == nil && ue.Error.Message != "" {
			msg = ue.Error.Message
		}
		return nil, fmt.Errorf("%w: media host returned %d: %s", ErrVendor, resp.StatusCode, msg)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode upload response: %v", ErrVendor, err)
	}
	if result.SecureURL == "" {
		return nil, fmt.Errorf("%w: upload response missing secure_url", ErrVendor)
	}

	return &result, nil
}

// ObjectRemovalURL builds a delivery URL that applies a generative
// object-removal transform to an uploaded asset. The media host renders
// the transform on first fetch, so the URL can be returned before the
// derived image exists.
func (c *MediaClient) ObjectRemovalURL(publicID, object string) string {
	return fmt.Sprintf("%s/%s/image/upload/e_gen_remove:prompt_%s/%s", deliveryBaseURL, c.cloudName, object, publicID)
}

// EncodePNGDataURI wraps raw image bytes as a base64 PNG data URI
// suitable for inline upload.
func EncodePNGDataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// signUploadParams produces the hex SHA-1 signature over the sorted
// signed params joined with '&', with the API secret appended.
func signUploadParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}
