package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when the file extension is not handled
	// by any registered extractor.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrCorruptFile is returned when a file cannot be decoded as text.
	ErrCorruptFile = errors.New("corrupt file")
)

// Extractor converts raw file bytes into an ordered sequence of page texts.
// Page boundaries are format-specific; formats without a native page concept
// produce a single page.
type Extractor interface {
	// Extract returns one string per page, in document order.
	Extract(filename string, data []byte) ([]string, error)
	// Supports reports whether the extractor handles the given file extension.
	Supports(ext string) bool
}

// Registry dispatches extraction to the first extractor that supports the
// file's extension.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry with the built-in extractors (plain text and
// markdown). PDF and DOCX extraction plug in here when available.
func NewRegistry() *Registry {
	return &Registry{
		extractors: []Extractor{
			NewMarkdownExtractor(),
			NewTextExtractor(),
		},
	}
}

// Extract extracts page texts from the given file.
// Returns ErrUnsupportedFormat if no extractor handles the extension.
func (r *Registry) Extract(filename string, data []byte) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range r.extractors {
		if e.Supports(ext) {
			return e.Extract(filename, data)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// SupportedExtensions lists the extensions the registry accepts.
func (r *Registry) SupportedExtensions() []string {
	return []string{".txt", ".md"}
}
