package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTextClient_Complete(t *testing.T) {
	var gotReq chatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Ten Purrfect Blog Titles"}}]
		}`))
	}))
	defer srv.Close()

	c := NewTextClient(srv.URL, "test-key", "gemini-2.0-flash", srv.Client())

	text, err := c.Complete(context.Background(), "blog titles about cats", 100)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if text != "Ten Purrfect Blog Titles" {
		t.Errorf("unexpected completion text: %q", text)
	}
	if gotReq.Model != "gemini-2.0-flash" {
		t.Errorf("unexpected model: %s", gotReq.Model)
	}
	if gotReq.MaxTokens != 100 {
		t.Errorf("unexpected max_tokens: %d", gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
}

func TestTextClient_Complete_VendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
	}))
	defer srv.Close()

	c := NewTextClient(srv.URL, "test-key", "gemini-2.0-flash", srv.Client())

	_, err := c.Complete(context.Background(), "prompt", 100)
	if !errors.Is(err, ErrVendor) {
		t.Fatalf("expected ErrVendor, got %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "rate limit exceeded") {
		t.Errorf("expected vendor message in error, got %q", got)
	}
}

func TestTextClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewTextClient(srv.URL, "test-key", "gemini-2.0-flash", srv.Client())

	if _, err := c.Complete(context.Background(), "prompt", 100); !errors.Is(err, ErrVendor) {
		t.Fatalf("expected ErrVendor for empty choices, got %v", err)
	}
}
