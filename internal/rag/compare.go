package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"finrag/internal/contextutil"
	"finrag/internal/llm"
)

const (
	// compareK is the widened retrieval size for comparisons.
	compareK = 15
	// minCompareDocs and maxCompareDocs bound how many documents one
	// comparison may cover.
	minCompareDocs = 2
	maxCompareDocs = 5
)

// compareTemplates maps each comparison type to its retrieval probe and
// generation instruction. The type changes only the prompt, never the
// retrieval algorithm.
var compareTemplates = map[string]struct {
	probe       string
	instruction string
}{
	"general": {
		probe:       "overview key topics main content",
		instruction: "Compare these documents. Describe what each covers and how they relate.",
	},
	"financial": {
		probe:       "revenue earnings margins financial performance",
		instruction: "Compare the financial performance described in these documents: revenue, profitability, cash flow, and trends.",
	},
	"risks": {
		probe:       "risks uncertainties challenges threats",
		instruction: "Compare the risks discussed in these documents. Which risks are shared and which are unique?",
	},
	"opportunities": {
		probe:       "growth opportunities outlook strategy expansion",
		instruction: "Compare the opportunities and outlook described in these documents.",
	},
}

// ComparisonTypes lists the supported comparison types.
func ComparisonTypes() []string {
	return []string{"general", "financial", "risks", "opportunities"}
}

// compareResult is the structured shape requested from the generator.
type compareResult struct {
	Comparison     string   `json:"comparison"`
	KeyDifferences []string `json:"key_differences"`
	Similarities   []string `json:"similarities"`
}

// Compare retrieves balanced context across 2-5 documents and asks the
// generator for a structured comparison.
func (e *Engine) Compare(ctx context.Context, documentIDs []string, comparisonType string) (*CompareResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	template, ok := compareTemplates[comparisonType]
	if !ok {
		return nil, &ValidationError{
			Field:   "comparison_type",
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ComparisonTypes(), ", ")),
		}
	}
	if len(documentIDs) < minCompareDocs || len(documentIDs) > maxCompareDocs {
		return nil, &ValidationError{
			Field:   "document_ids",
			Message: fmt.Sprintf("comparison requires between %d and %d documents", minCompareDocs, maxCompareDocs),
		}
	}

	filter, err := e.validateDocumentFilter(ctx, documentIDs)
	if err != nil {
		return nil, err
	}

	candidates, err := e.balancedRetrieve(ctx, template.probe, documentIDs, filter)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, WrapError(ErrNotFound, "no indexed content for the selected documents")
	}

	contextText, _ := formatContext(candidates)
	prompt := fmt.Sprintf(`Document excerpts:

%s

%s

Respond with JSON in this shape:
{"comparison": "...", "key_differences": ["..."], "similarities": ["..."]}`,
		contextText, template.instruction)

	raw, err := e.generator.Chat(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, llm.ChatParams{})
	if err != nil {
		return nil, WrapError(ErrExternalService, err.Error())
	}

	result := parseCompareResult(raw)
	logger.InfoContext(ctx, "documents compared",
		"comparison_type", comparisonType, "documents", len(documentIDs))

	return &CompareResponse{
		ComparisonType: comparisonType,
		Documents:      documentNames(candidates),
		Comparison:     result.Comparison,
		KeyDifferences: result.KeyDifferences,
		Similarities:   result.Similarities,
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// balancedRetrieve runs the widened retrieval and then guarantees each
// selected document a floor of candidates. Without the backfill the
// comparison skews toward whichever document's chunks score highest
// overall.
func (e *Engine) balancedRetrieve(ctx context.Context, probe string, documentIDs []string, filter map[string]struct{}) ([]Candidate, error) {
	candidates, err := e.retriever.Retrieve(ctx, probe, compareK, filter, true)
	if err != nil {
		return nil, err
	}

	perDoc := compareK / len(documentIDs)
	counts := make(map[string]int)
	seen := make(map[string]struct{})
	for _, cand := range candidates {
		counts[cand.Chunk.DocumentID]++
		seen[cand.Chunk.ID] = struct{}{}
	}

	for _, docID := range documentIDs {
		if counts[docID] >= perDoc {
			continue
		}
		extra, err := e.retriever.Retrieve(ctx, probe, perDoc, map[string]struct{}{docID: {}}, true)
		if err != nil {
			return nil, err
		}
		for _, cand := range extra {
			if counts[docID] >= perDoc {
				break
			}
			if _, ok := seen[cand.Chunk.ID]; ok {
				continue
			}
			seen[cand.Chunk.ID] = struct{}{}
			counts[docID]++
			candidates = append(candidates, cand)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Combined != candidates[j].Combined {
			return candidates[i].Combined > candidates[j].Combined
		}
		return candidates[i].SemanticRank < candidates[j].SemanticRank
	})
	return candidates, nil
}

// parseCompareResult extracts the structured comparison from generator
// output, falling back to the raw text when it is not valid JSON.
func parseCompareResult(raw string) compareResult {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		var result compareResult
		if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err == nil && result.Comparison != "" {
			return result
		}
	}
	return compareResult{Comparison: strings.TrimSpace(raw)}
}
