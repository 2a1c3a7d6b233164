package indexer

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyDocument is returned when extraction produced no usable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// pageSeparator joins extracted pages into one chunking stream.
const pageSeparator = "\n\n"

// financialKeywords marks chunks that discuss financial figures so retrieval
// consumers can surface them preferentially.
var financialKeywords = []string{
	"revenue", "earnings", "profit", "loss", "ebitda", "cash flow",
	"balance sheet", "income statement", "assets", "liabilities",
	"equity", "valuation", "market cap", "pe ratio", "guidance",
}

// Chunk is one window of document text ready for embedding.
type Chunk struct {
	Text                 string
	Index                int  // position within the document, starts at 0
	Page                 int  // 1-based page the chunk starts on
	CharCount            int
	HasFinancialKeywords bool
}

// Chunker splits extracted pages into overlapping fixed-size windows.
// Window ends prefer natural boundaries: paragraph break, then sentence end,
// then whitespace, then a hard cut.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. size is the window length in characters and
// overlap is how many characters consecutive windows share; overlap must be
// smaller than size or the window would never advance.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// ChunkPages joins pages into one stream and cuts overlapping windows from
// it. Each chunk is attributed to the page its first character falls on, so
// a chunk spanning a page break cites the page it starts on.
func (c *Chunker) ChunkPages(pages []string) ([]Chunk, error) {
	text, pageStarts := joinPages(pages)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	var chunks []Chunk
	pos := 0
	for pos < len(text) {
		end := pos + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.adjustBoundary(text, pos, end)
		}

		window := strings.TrimSpace(text[pos:end])
		if window != "" {
			chunks = append(chunks, Chunk{
				Text:                 window,
				Index:                len(chunks),
				Page:                 pageForOffset(pageStarts, pos),
				CharCount:            len(window),
				HasFinancialKeywords: containsFinancialKeywords(window),
			})
		}

		if end == len(text) {
			break
		}
		next := end - c.overlap
		if next <= pos {
			// Boundary adjustment shrank the window below the overlap;
			// advance past it to guarantee progress.
			next = end
		}
		pos = next
	}

	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}
	return chunks, nil
}

// adjustBoundary pulls the window end back to the nearest natural break.
// Only the last 40% of the window is considered so chunks stay near the
// configured size.
func (c *Chunker) adjustBoundary(text string, start, end int) int {
	searchFrom := start + (c.size*3)/5
	window := text[searchFrom:end]

	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return searchFrom + i + 2
	}
	for _, sep := range []string{". ", ".\n", "! ", "? "} {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return searchFrom + i + len(sep)
		}
	}
	if i := strings.LastIndexAny(window, " \t\n"); i >= 0 {
		return searchFrom + i + 1
	}
	return end
}

// joinPages concatenates pages and records each page's starting offset in
// the joined stream.
func joinPages(pages []string) (string, []int) {
	var b strings.Builder
	starts := make([]int, len(pages))
	for i, page := range pages {
		if i > 0 {
			b.WriteString(pageSeparator)
		}
		starts[i] = b.Len()
		b.WriteString(page)
	}
	return b.String(), starts
}

// pageForOffset returns the 1-based page containing the given offset.
func pageForOffset(starts []int, offset int) int {
	page := 1
	for i, start := range starts {
		if offset >= start {
			page = i + 1
		}
	}
	return page
}

// containsFinancialKeywords reports whether the text mentions any of the
// tracked financial terms.
func containsFinancialKeywords(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range financialKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
