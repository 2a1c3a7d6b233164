package rag

import (
	"regexp"
	"strconv"
)

// citationPattern matches [Document N] markers emitted by the generator.
var citationPattern = regexp.MustCompile(`\[Document (\d+)\]`)

// contextBlock is one labeled chunk supplied to the generator. Citations
// resolve against these blocks, never against anything else.
type contextBlock struct {
	Document  string
	Page      int
	Relevance float64
}

// resolveCitations parses [Document N] markers from the answer and maps them
// back to the supplied context blocks. N is 1-based to match the block
// labels. Markers outside the supplied range are dropped, never fabricated,
// and each (document, page) pair is reported once.
func resolveCitations(answer string, blocks []contextBlock) []Citation {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)

	type pageKey struct {
		document string
		page     int
	}
	seen := make(map[pageKey]struct{})
	citations := make([]Citation, 0, len(matches))

	for _, match := range matches {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(blocks) {
			continue
		}
		block := blocks[n-1]

		key := pageKey{document: block.Document, page: block.Page}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		citations = append(citations, Citation{
			Document:  block.Document,
			Page:      block.Page,
			Relevance: block.Relevance,
		})
	}

	return citations
}
