package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finrag/internal/contextutil"
	"finrag/internal/llm"
)

// insightsK is how many chunks feed an insight extraction. Wider than a
// normal query because insights summarize rather than answer.
const insightsK = 10

// insightTemplates maps each insight type to its retrieval probe and
// generation instruction.
var insightTemplates = map[string]struct {
	probe       string
	instruction string
}{
	"summary": {
		probe:       "overview summary of the document",
		instruction: "Write a concise summary of these document excerpts in a few paragraphs.",
	},
	"key_points": {
		probe:       "key points main findings highlights",
		instruction: "List the key points from these document excerpts as a bulleted list.",
	},
	"financial_metrics": {
		probe:       "revenue earnings profit margins cash flow financial metrics",
		instruction: "Extract all financial metrics and figures from these document excerpts. Present each metric with its value and period.",
	},
	"risks": {
		probe:       "risks risk factors uncertainties challenges",
		instruction: "Identify and explain the risks discussed in these document excerpts.",
	},
}

// InsightTypes lists the supported insight types.
func InsightTypes() []string {
	return []string{"summary", "key_points", "financial_metrics", "risks"}
}

// ExtractInsights runs a wide retrieval over the given documents and asks
// the generator for the requested kind of analysis.
func (e *Engine) ExtractInsights(ctx context.Context, documentIDs []string, insightType string) (*InsightsResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	template, ok := insightTemplates[insightType]
	if !ok {
		return nil, &ValidationError{
			Field:   "insight_type",
			Message: fmt.Sprintf("must be one of: %s", strings.Join(InsightTypes(), ", ")),
		}
	}
	if len(documentIDs) == 0 {
		return nil, &ValidationError{Field: "document_ids", Message: "must not be empty"}
	}

	filter, err := e.validateDocumentFilter(ctx, documentIDs)
	if err != nil {
		return nil, err
	}

	candidates, err := e.retriever.Retrieve(ctx, template.probe, insightsK, filter, true)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, WrapError(ErrNotFound, "no indexed content for the selected documents")
	}

	contextText, _ := formatContext(candidates)
	answer, err := e.generator.Chat(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Document excerpts:\n\n%s\n\n%s", contextText, template.instruction)},
	}, llm.ChatParams{})
	if err != nil {
		return nil, WrapError(ErrExternalService, err.Error())
	}

	documents := documentNames(candidates)
	logger.InfoContext(ctx, "insights extracted",
		"insight_type", insightType, "documents", len(documents))

	return &InsightsResponse{
		InsightType:       insightType,
		DocumentsAnalyzed: documents,
		Content:           answer,
		ProcessingTime:    time.Since(start).Seconds(),
	}, nil
}

// documentNames collects the distinct source filenames from candidates,
// in ranking order.
func documentNames(candidates []Candidate) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, cand := range candidates {
		if _, ok := seen[cand.Document]; ok {
			continue
		}
		seen[cand.Document] = struct{}{}
		names = append(names, cand.Document)
	}
	return names
}
