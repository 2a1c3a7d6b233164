package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor extracts markdown files using goldmark AST parsing.
// Level-1 headings delimit pages, which maps section-per-page the way
// financial filings are usually authored; documents without level-1 headings
// produce a single page.
type MarkdownExtractor struct {
	parser goldmark.Markdown
}

// NewMarkdownExtractor creates a new markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// Supports reports whether the extractor handles the given extension.
func (e *MarkdownExtractor) Supports(ext string) bool {
	return ext == ".md" || ext == ".markdown"
}

// Extract parses the markdown and returns one page per level-1 section.
func (e *MarkdownExtractor) Extract(filename string, data []byte) ([]string, error) {
	reader := text.NewReader(data)
	doc := e.parser.Parser().Parse(reader)

	var pages []string
	var current strings.Builder

	flush := func() {
		page := strings.TrimSpace(current.String())
		if page != "" {
			pages = append(pages, page)
		}
		current.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if heading, ok := n.(*ast.Heading); ok && heading.Level == 1 {
			flush()
			current.WriteString(extractTextFromNode(heading, data))
			current.WriteString("\n\n")
			continue
		}
		block := extractBlockText(n, data)
		if block != "" {
			current.WriteString(block)
			current.WriteString("\n\n")
		}
	}
	flush()

	if len(pages) == 0 {
		return []string{""}, nil
	}
	return pages, nil
}

// extractBlockText renders a block node as plain text. Table rows become
// pipe-separated lines so tabular figures stay searchable.
func extractBlockText(n ast.Node, content []byte) string {
	kindName := n.Kind().String()
	if strings.Contains(kindName, "Table") {
		return extractTableText(n, content)
	}
	return extractTextFromNode(n, content)
}

// extractTextFromNode extracts text content from a node and its children.
func extractTextFromNode(n ast.Node, content []byte) string {
	var textBuilder strings.Builder

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch v := node.(type) {
		case *ast.Text:
			segment := v.Segment
			textBuilder.Write(segment.Value(content))
			if v.HardLineBreak() || v.SoftLineBreak() {
				textBuilder.WriteByte('\n')
			}
		case *ast.String:
			textBuilder.Write(v.Value)
		case *ast.CodeBlock:
			lines := v.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				textBuilder.Write(line.Value(content))
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			lines := v.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				textBuilder.Write(line.Value(content))
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if textBuilder.Len() > 0 && !strings.HasSuffix(textBuilder.String(), "\n") {
				textBuilder.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(textBuilder.String())
}

// extractTableText renders a table node with pipe-separated cells, one row per line.
func extractTableText(table ast.Node, content []byte) string {
	var rows []string

	_ = ast.Walk(table, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		kindName := node.Kind().String()
		if kindName == "TableRow" || kindName == "TableHeader" {
			var cells []string
			for cell := node.FirstChild(); cell != nil; cell = cell.NextSibling() {
				cells = append(cells, extractTextFromNode(cell, content))
			}
			rows = append(rows, strings.Join(cells, " | "))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(rows, "\n")
}
