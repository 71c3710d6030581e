// Package delegate provides clients for the external vendor APIs that
// perform generation and transformation work. Every call is single
// attempt; failures surface the vendor's message when available.
package delegate

import "errors"

// ErrVendor wraps any failure reported by an external vendor API.
var ErrVendor = errors.New("vendor request failed")

// ResultKind discriminates delegate result payloads.
type ResultKind string

const (
	ResultKindText     ResultKind = "text"
	ResultKindImageURL ResultKind = "image_url"
)

// Result is the normalized payload of a successful delegate call.
type Result struct {
	Kind     ResultKind
	Text     string
	ImageURL string
}

// TextResult wraps generated prose.
func TextResult(text string) Result {
	return Result{Kind: ResultKindText, Text: text}
}

// ImageResult wraps a hosted image URL.
func ImageResult(url string) Result {
	return Result{Kind: ResultKindImageURL, ImageURL: url}
}

// Content returns the payload persisted into a creation row.
func (r Result) Content() string {
	if r.Kind == ResultKindImageURL {
		return r.ImageURL
	}
	return r.Text
}
