package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_generator.go -package=mocks finrag/internal/rag Generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"finrag/internal/contextutil"
	"finrag/internal/llm"
)

// Generator produces text completions from a message list.
type Generator interface {
	Chat(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
}

const expandPrompt = `Generate %d alternative phrasings of the following question about financial documents. Keep each rephrasing short and focused on the same information need. Respond with only a JSON array of strings.

Question: %s`

// Expander widens retrieval recall by asking the generator for paraphrases
// of the original query. Expansion is an enhancement, never a dependency:
// any failure degrades to the original query alone.
type Expander struct {
	generator Generator
	max       int
}

// NewExpander creates an expander producing at most max paraphrases.
func NewExpander(generator Generator, max int) *Expander {
	return &Expander{generator: generator, max: max}
}

// Expand returns up to max paraphrased queries, or nil when the generator
// fails or returns something unusable.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	logger := contextutil.LoggerFromContext(ctx)

	if e.max <= 0 {
		return nil
	}

	raw, err := e.generator.Chat(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(expandPrompt, e.max, query)},
	}, llm.ChatParams{Temperature: 0.7})
	if err != nil {
		logger.WarnContext(ctx, "query expansion failed, using original query only", "error", err)
		return nil
	}

	expansions := parseExpansions(raw, query)
	if len(expansions) > e.max {
		expansions = expansions[:e.max]
	}

	logger.DebugContext(ctx, "query expanded", "expansions", len(expansions))
	return expansions
}

// parseExpansions extracts a JSON string array from generator output,
// tolerating surrounding prose or code fences. Entries matching the
// original query are dropped.
func parseExpansions(raw, original string) []string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}

	var parsed []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil
	}

	normalizedOriginal := strings.ToLower(strings.TrimSpace(original))
	var out []string
	for _, q := range parsed {
		q = strings.TrimSpace(q)
		if q == "" || strings.ToLower(q) == normalizedOriginal {
			continue
		}
		out = append(out, q)
	}
	return out
}
