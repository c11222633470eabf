// Package output renders catalog, fill, answer and maintenance results for
// the CLI in table, JSON or Markdown form.
package output

import (
	"fmt"
	"strings"

	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/store"
	"github.com/agritutor/agritutor/internal/tutor"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// FillResult is a filled template with its completeness check.
type FillResult struct {
	TemplateID string   `json:"template_id,omitempty"`
	Prompt     string   `json:"prompt"`
	Complete   bool     `json:"complete"`
	Missing    []string `json:"missing,omitempty"`
}

// CategorySummary is a category with the number of templates in it.
type CategorySummary struct {
	prompt.Category
	Templates int `json:"templates"`
}

// Formatter renders command results.
type Formatter interface {
	FormatCategories(categories []CategorySummary) (string, error)
	FormatTemplates(templates []prompt.Template) (string, error)
	FormatTemplate(tmpl prompt.Template) (string, error)
	FormatFill(result FillResult) (string, error)
	FormatAnswer(answer *tutor.Answer) (string, error)
	FormatIssues(issues []prompt.Issue) (string, error)
	FormatCacheStats(stats store.CacheStats) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// SummarizeCategories pairs each category with its template count.
func SummarizeCategories(catalog *prompt.Catalog) []CategorySummary {
	categories := catalog.Categories()
	out := make([]CategorySummary, 0, len(categories))
	for _, cat := range categories {
		out = append(out, CategorySummary{Category: cat, Templates: len(catalog.InCategory(cat.ID))})
	}
	return out
}

func variablesLabel(vars []string) string {
	if len(vars) == 0 {
		return "-"
	}
	return strings.Join(vars, ", ")
}

func answerSource(answer *tutor.Answer) string {
	source := answer.Provider
	if answer.Model != "" {
		source += "/" + answer.Model
	}
	if answer.Cached {
		source += " (cached)"
	}
	return source
}
