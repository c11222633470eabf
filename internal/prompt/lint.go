package prompt

import "fmt"

// IssueKind classifies a lint finding.
type IssueKind string

const (
	IssueUnusedVariable     IssueKind = "unused_variable"
	IssueUndeclaredVariable IssueKind = "undeclared_placeholder"
	IssueUnbalancedBraces   IssueKind = "unbalanced_braces"
)

// Issue is a catalog authoring problem. Issues never prevent loading.
type Issue struct {
	TemplateID string    `json:"template_id"`
	Kind       IssueKind `json:"kind"`
	Name       string    `json:"name,omitempty"`
	Message    string    `json:"message"`
}

// Lint cross-checks each template's declared variables against the
// placeholders in its body.
func (c *Catalog) Lint() []Issue {
	if c == nil {
		return nil
	}
	var issues []Issue
	for _, t := range c.templates {
		issues = append(issues, lintTemplate(t)...)
	}
	return issues
}

func lintTemplate(t Template) []Issue {
	var issues []Issue

	used := make(map[string]bool)
	for _, name := range placeholders(t.Body) {
		used[name] = true
	}
	declared := make(map[string]bool, len(t.Variables))
	for _, name := range t.Variables {
		declared[name] = true
		if !used[name] {
			issues = append(issues, Issue{
				TemplateID: t.ID,
				Kind:       IssueUnusedVariable,
				Name:       name,
				Message:    fmt.Sprintf("variable %s is declared but {%s} never appears in the template", name, name),
			})
		}
	}
	for _, name := range placeholders(t.Body) {
		if !declared[name] {
			issues = append(issues, Issue{
				TemplateID: t.ID,
				Kind:       IssueUndeclaredVariable,
				Name:       name,
				Message:    fmt.Sprintf("placeholder {%s} is not declared and will never be filled", name),
			})
		}
	}

	if pos, ok := unbalancedBrace(t.Body); ok {
		issues = append(issues, Issue{
			TemplateID: t.ID,
			Kind:       IssueUnbalancedBraces,
			Message:    fmt.Sprintf("unmatched brace at byte %d", pos),
		})
	}

	return issues
}

// unbalancedBrace returns the offset of the first brace without a partner.
func unbalancedBrace(body string) (int, bool) {
	open := -1
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '{':
			if open >= 0 {
				return open, true
			}
			open = i
		case '}':
			if open < 0 {
				return i, true
			}
			open = -1
		}
	}
	if open >= 0 {
		return open, true
	}
	return 0, false
}
