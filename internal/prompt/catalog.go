package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTemplateNotFound is returned by Get for an unknown template id.
var ErrTemplateNotFound = errors.New("prompt template not found")

// Category groups templates for presentation.
type Category struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Icon string `yaml:"icon,omitempty" json:"icon,omitempty"`
}

// Template is a parameterized prompt. Variables lists the placeholder names a
// caller must supply before the filled prompt is considered ready.
type Template struct {
	ID          string   `yaml:"id" json:"id"`
	Category    string   `yaml:"category" json:"category"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Body        string   `yaml:"template" json:"template"`
	Variables   []string `yaml:"variables" json:"variables"`
}

// Fill substitutes values into the template body.
func (t Template) Fill(values Values) string {
	return Fill(t.Body, values)
}

// Complete reports whether values cover every declared variable.
func (t Template) Complete(values Values) bool {
	return Complete(t.Variables, values)
}

// Placeholders returns the distinct {NAME} tokens in the body, in order of
// first appearance.
func (t Template) Placeholders() []string {
	return placeholders(t.Body)
}

func (t Template) clone() Template {
	out := t
	out.Variables = append([]string(nil), t.Variables...)
	return out
}

// Catalog is an ordered, read-only collection of templates and categories.
type Catalog struct {
	source     string
	categories []Category
	templates  []Template
	byID       map[string]int
}

// NewCatalog validates and indexes the given categories and templates.
func NewCatalog(source string, categories []Category, templates []Template) (*Catalog, error) {
	c := &Catalog{
		source:     source,
		categories: make([]Category, 0, len(categories)),
		templates:  make([]Template, 0, len(templates)),
		byID:       make(map[string]int, len(templates)),
	}

	declared := make(map[string]bool, len(categories))
	for _, cat := range categories {
		id := strings.TrimSpace(cat.ID)
		if id == "" {
			return nil, fmt.Errorf("category missing id")
		}
		if declared[id] {
			return nil, fmt.Errorf("duplicate category id: %s", id)
		}
		declared[id] = true
		cat.ID = id
		c.categories = append(c.categories, cat)
	}

	for _, tmpl := range templates {
		id := strings.TrimSpace(tmpl.ID)
		if id == "" {
			return nil, fmt.Errorf("template missing id")
		}
		if _, ok := c.byID[id]; ok {
			return nil, fmt.Errorf("duplicate template id: %s", id)
		}
		if !declared[tmpl.Category] {
			return nil, fmt.Errorf("template %s: unknown category %q", id, tmpl.Category)
		}
		seen := make(map[string]bool, len(tmpl.Variables))
		for _, name := range tmpl.Variables {
			if seen[name] {
				return nil, fmt.Errorf("template %s: duplicate variable %s", id, name)
			}
			seen[name] = true
		}
		tmpl.ID = id
		c.byID[id] = len(c.templates)
		c.templates = append(c.templates, tmpl.clone())
	}

	return c, nil
}

// Source names where the catalog was loaded from.
func (c *Catalog) Source() string {
	if c == nil {
		return ""
	}
	return c.source
}

// Categories returns the declared categories in catalog order.
func (c *Catalog) Categories() []Category {
	if c == nil {
		return []Category{}
	}
	return append([]Category{}, c.categories...)
}

// Category returns the declared category with the given id.
func (c *Catalog) Category(id string) (Category, bool) {
	if c == nil {
		return Category{}, false
	}
	for _, cat := range c.categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// Templates returns every template in catalog order.
func (c *Catalog) Templates() []Template {
	if c == nil {
		return []Template{}
	}
	out := make([]Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t.clone())
	}
	return out
}

// InCategory returns the templates whose category equals id, preserving
// catalog order. An id that matches nothing yields an empty slice.
func (c *Catalog) InCategory(id string) []Template {
	out := []Template{}
	if c == nil {
		return out
	}
	for _, t := range c.templates {
		if t.Category == id {
			out = append(out, t.clone())
		}
	}
	return out
}

// Get returns the template with the given id.
func (c *Catalog) Get(id string) (Template, error) {
	if c == nil {
		return Template{}, fmt.Errorf("prompt catalog not configured")
	}
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}
	return c.templates[idx].clone(), nil
}

// Len returns the number of templates.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.templates)
}
