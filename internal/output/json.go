package output

import (
	"encoding/json"

	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/store"
	"github.com/agritutor/agritutor/internal/tutor"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *JSONFormatter) FormatCategories(categories []CategorySummary) (string, error) {
	if categories == nil {
		categories = []CategorySummary{}
	}
	return f.marshal(categories)
}

func (f *JSONFormatter) FormatTemplates(templates []prompt.Template) (string, error) {
	if templates == nil {
		templates = []prompt.Template{}
	}
	return f.marshal(templates)
}

func (f *JSONFormatter) FormatTemplate(tmpl prompt.Template) (string, error) {
	return f.marshal(tmpl)
}

func (f *JSONFormatter) FormatFill(result FillResult) (string, error) {
	return f.marshal(result)
}

func (f *JSONFormatter) FormatAnswer(answer *tutor.Answer) (string, error) {
	if answer == nil {
		return "", nil
	}
	return f.marshal(answer)
}

func (f *JSONFormatter) FormatIssues(issues []prompt.Issue) (string, error) {
	if issues == nil {
		issues = []prompt.Issue{}
	}
	return f.marshal(issues)
}

func (f *JSONFormatter) FormatCacheStats(stats store.CacheStats) (string, error) {
	return f.marshal(stats)
}
