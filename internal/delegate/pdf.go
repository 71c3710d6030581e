package delegate

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Resume extraction errors.
var (
	// ErrFileTooLarge is returned before parsing when the upload
	// exceeds the size ceiling.
	ErrFileTooLarge = errors.New("resume file too large")

	// ErrPDFParse is returned when the document cannot be parsed.
	ErrPDFParse = errors.New("failed to parse PDF")

	// ErrEmptyDocument is returned when the document contains no
	// readable text.
	ErrEmptyDocument = errors.New("no readable text found in PDF")
)

// DefaultMaxResumeSize is the resume upload ceiling (5MB).
const DefaultMaxResumeSize = 5 * 1024 * 1024

// ResumeExtractor extracts plain text from uploaded resume PDFs.
type ResumeExtractor struct {
	maxSize int64
}

// NewResumeExtractor creates an extractor with the given size ceiling.
// A non-positive ceiling falls back to the default.
func NewResumeExtractor(maxSize int64) *ResumeExtractor {
	if maxSize <= 0 {
		maxSize = DefaultMaxResumeSize
	}
	return &ResumeExtractor{maxSize: maxSize}
}

// Extract reads the PDF at path and returns its text, page by page.
// The size ceiling is enforced before the parser runs.
func (e *ResumeExtractor) Extract(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat resume file: %w", err)
	}
	if info.Size() > e.maxSize {
		return "", ErrFileTooLarge
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPDFParse, err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrPDFParse, i, err)
		}
		pages = append(pages, text)
	}

	text := strings.Join(pages, "\n\n")
	if isBlank(text) {
		return "", ErrEmptyDocument
	}

	return text, nil
}

// isBlank reports whether the extracted text is empty after trimming.
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
