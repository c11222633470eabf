package output

import (
	"fmt"
	"strings"

	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/store"
	"github.com/agritutor/agritutor/internal/tutor"
)

// MarkdownFormatter renders results as Markdown.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatCategories(categories []CategorySummary) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Icon | ID | Name | Templates |\n")
	sb.WriteString("|------|----|------|-----------|\n")
	for _, c := range categories {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d |\n",
			escapeMarkdownCell(c.Icon), escapeMarkdownCell(c.ID), escapeMarkdownCell(c.Name), c.Templates))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatTemplates(templates []prompt.Template) (string, error) {
	var sb strings.Builder
	sb.WriteString("| ID | Category | Title | Variables |\n")
	sb.WriteString("|----|----------|-------|-----------|\n")
	for _, t := range templates {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(t.ID),
			escapeMarkdownCell(t.Category),
			escapeMarkdownCell(t.Title),
			escapeMarkdownCell(variablesLabel(t.Variables)),
		))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatTemplate(tmpl prompt.Template) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", tmpl.Title))
	sb.WriteString(fmt.Sprintf("- **ID**: `%s`\n", tmpl.ID))
	sb.WriteString(fmt.Sprintf("- **Category**: %s\n", tmpl.Category))
	sb.WriteString(fmt.Sprintf("- **Variables**: %s\n", variablesLabel(tmpl.Variables)))
	if tmpl.Description != "" {
		sb.WriteString(fmt.Sprintf("\n%s\n", tmpl.Description))
	}
	sb.WriteString("\n```text\n")
	sb.WriteString(tmpl.Body)
	sb.WriteString("\n```\n")
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatFill(result FillResult) (string, error) {
	var sb strings.Builder
	if result.TemplateID != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", result.TemplateID))
	}
	sb.WriteString(result.Prompt)
	sb.WriteString("\n")
	if !result.Complete {
		sb.WriteString(fmt.Sprintf("\n> **Incomplete**: missing %s\n", strings.Join(result.Missing, ", ")))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatAnswer(answer *tutor.Answer) (string, error) {
	if answer == nil {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString(answer.Text)
	sb.WriteString(fmt.Sprintf("\n\n---\n_%s, %dms_\n", answerSource(answer), answer.DurationMs))
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatIssues(issues []prompt.Issue) (string, error) {
	if len(issues) == 0 {
		return "No catalog issues found.\n", nil
	}
	var sb strings.Builder
	sb.WriteString("| Template | Kind | Name | Message |\n")
	sb.WriteString("|----------|------|------|---------|\n")
	for _, issue := range issues {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(issue.TemplateID),
			escapeMarkdownCell(string(issue.Kind)),
			escapeMarkdownCell(issue.Name),
			escapeMarkdownCell(issue.Message),
		))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatCacheStats(stats store.CacheStats) (string, error) {
	return fmt.Sprintf("| Entries | Expired | Hits |\n|---------|---------|------|\n| %d | %d | %d |\n",
		stats.Entries, stats.Expired, stats.Hits), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
