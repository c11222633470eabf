package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/store"
	"github.com/agritutor/agritutor/internal/tutor"
)

// TableFormatter renders results as ASCII tables. Free text (prompts and
// answers) is printed as-is.
type TableFormatter struct{}

const descriptionWidth = 48

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) FormatCategories(categories []CategorySummary) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"", "ID", "Name", "Templates"})
	total := 0
	for _, c := range categories {
		t.AppendRow(table.Row{c.Icon, c.ID, c.Name, c.Templates})
		total += c.Templates
	}
	t.AppendFooter(table.Row{"", "", "Total", total})
	return t.Render(), nil
}

func (f *TableFormatter) FormatTemplates(templates []prompt.Template) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Category", "Title", "Variables"})
	for _, tmpl := range templates {
		t.AppendRow(table.Row{tmpl.ID, tmpl.Category, tmpl.Title, variablesLabel(tmpl.Variables)})
	}
	return t.Render(), nil
}

func (f *TableFormatter) FormatTemplate(tmpl prompt.Template) (string, error) {
	t := newTable()
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: descriptionWidth * 2},
	})
	t.AppendRows([]table.Row{
		{"ID", tmpl.ID},
		{"Category", tmpl.Category},
		{"Title", tmpl.Title},
		{"Description", text.WrapSoft(tmpl.Description, descriptionWidth)},
		{"Variables", variablesLabel(tmpl.Variables)},
	})
	return t.Render() + "\n\n" + tmpl.Body + "\n", nil
}

func (f *TableFormatter) FormatFill(result FillResult) (string, error) {
	var sb strings.Builder
	sb.WriteString(result.Prompt)
	sb.WriteString("\n")
	if !result.Complete {
		sb.WriteString(fmt.Sprintf("\n(incomplete: missing %s)\n", strings.Join(result.Missing, ", ")))
	}
	return sb.String(), nil
}

func (f *TableFormatter) FormatAnswer(answer *tutor.Answer) (string, error) {
	if answer == nil {
		return "", nil
	}
	return fmt.Sprintf("%s\n\n-- %s, %dms\n", answer.Text, answerSource(answer), answer.DurationMs), nil
}

func (f *TableFormatter) FormatIssues(issues []prompt.Issue) (string, error) {
	if len(issues) == 0 {
		return "No catalog issues found.", nil
	}
	t := newTable()
	t.AppendHeader(table.Row{"Template", "Kind", "Name", "Message"})
	for _, issue := range issues {
		t.AppendRow(table.Row{issue.TemplateID, string(issue.Kind), issue.Name, text.WrapSoft(issue.Message, descriptionWidth)})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d issue(s)", len(issues))})
	return t.Render(), nil
}

func (f *TableFormatter) FormatCacheStats(stats store.CacheStats) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Entries", "Expired", "Hits"})
	t.AppendRow(table.Row{stats.Entries, stats.Expired, stats.Hits})
	return t.Render(), nil
}
