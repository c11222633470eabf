package output

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/store"
	"github.com/agritutor/agritutor/internal/tutor"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestSummarizeCategories(t *testing.T) {
	catalog, err := prompt.Default()
	require.NoError(t, err)

	summaries := SummarizeCategories(catalog)
	require.Len(t, summaries, len(catalog.Categories()))
	total := 0
	for _, s := range summaries {
		total += s.Templates
	}
	assert.Equal(t, catalog.Len(), total)

	data, err := NewFormatter(FormatJSON).FormatCategories(summaries[:1])
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &decoded))
	assert.Equal(t, "lesson", decoded[0]["id"])
	assert.EqualValues(t, 3, decoded[0]["templates"])
}

func TestFormatters(t *testing.T) {
	tmpl := prompt.Template{
		ID:          "regional-context",
		Category:    "contextual",
		Title:       "Regional Agriculture Context",
		Description: "Contextualizes topics | regions",
		Body:        "Explain {TOPIC} for {REGION}.",
		Variables:   []string{"TOPIC", "REGION"},
	}
	fill := FillResult{TemplateID: tmpl.ID, Prompt: "Explain Mulching for {REGION}.", Missing: []string{"REGION"}}
	answer := &tutor.Answer{Text: "Mulch conserves moisture.", Provider: "gemini", Model: "gemini-1.5-flash", Cached: true, DurationMs: 12}
	issues := []prompt.Issue{{TemplateID: "x", Kind: prompt.IssueUnusedVariable, Name: "CROP", Message: "declared but unused"}}
	stats := store.CacheStats{Entries: 4, Expired: 1, Hits: 9}

	for _, format := range []Format{FormatTable, FormatJSON, FormatMarkdown} {
		t.Run(string(format), func(t *testing.T) {
			f := NewFormatter(format)

			out, err := f.FormatTemplates([]prompt.Template{tmpl})
			require.NoError(t, err)
			assert.Contains(t, out, "regional-context")

			out, err = f.FormatTemplate(tmpl)
			require.NoError(t, err)
			assert.Contains(t, out, "{TOPIC}")

			out, err = f.FormatFill(fill)
			require.NoError(t, err)
			assert.Contains(t, out, "Explain Mulching")
			assert.Contains(t, out, "REGION")

			out, err = f.FormatAnswer(answer)
			require.NoError(t, err)
			assert.Contains(t, out, "Mulch conserves moisture.")

			out, err = f.FormatIssues(issues)
			require.NoError(t, err)
			assert.Contains(t, out, "CROP")

			out, err = f.FormatCacheStats(stats)
			require.NoError(t, err)
			assert.Contains(t, out, "9")

			out, err = f.FormatAnswer(nil)
			require.NoError(t, err)
			assert.Empty(t, out)
		})
	}
}

func TestTableAnswerShowsSource(t *testing.T) {
	out, err := (&TableFormatter{}).FormatAnswer(&tutor.Answer{Text: "ok", Provider: "openai", Model: "gpt-4o-mini", Cached: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ok\n"))
	assert.Contains(t, out, "openai/gpt-4o-mini (cached)")
}

func TestMarkdownEscapesCells(t *testing.T) {
	out, err := (&MarkdownFormatter{}).FormatIssues([]prompt.Issue{{TemplateID: "a|b", Kind: prompt.IssueUnbalancedBraces, Message: "line\nbreak"}})
	require.NoError(t, err)
	assert.Contains(t, out, `a\|b`)
	assert.Contains(t, out, "line break")
}

func TestEmptyIssues(t *testing.T) {
	out, err := NewFormatter(FormatTable).FormatIssues(nil)
	require.NoError(t, err)
	assert.Equal(t, "No catalog issues found.", out)

	out, err = NewFormatter(FormatJSON).FormatIssues(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}
