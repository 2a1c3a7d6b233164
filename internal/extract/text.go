package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TextExtractor extracts plain text files. Form feed characters (\f), the
// conventional page separator in extracted text, delimit pages; files without
// them produce a single page.
type TextExtractor struct{}

// NewTextExtractor creates a new plain text extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Supports reports whether the extractor handles the given extension.
func (e *TextExtractor) Supports(ext string) bool {
	return ext == ".txt"
}

// Extract splits the file into pages on form feed characters.
func (e *TextExtractor) Extract(filename string, data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrCorruptFile, filename)
	}

	raw := strings.Split(string(data), "\f")
	pages := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		// Keep the page count honest for blank files; the chunker rejects
		// empty documents with its own error.
		return []string{""}, nil
	}
	return pages, nil
}
