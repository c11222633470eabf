package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// Purpose names a canned lesson request.
type Purpose string

const (
	PurposeExplain   Purpose = "explain"
	PurposeQuiz      Purpose = "quiz"
	PurposeRemediate Purpose = "remediate"
	PurposeSummary   Purpose = "summary"
	PurposeVisual    Purpose = "visual"
	PurposeRegional  Purpose = "regional"
)

// DefaultRegion is used by the regional purpose when no region is given.
const DefaultRegion = "India"

var purposeTemplates = map[Purpose]string{
	PurposeExplain:  "basic-concept",
	PurposeQuiz:     "generate-mcqs",
	PurposeSummary:  "quick-summary",
	PurposeVisual:   "visual-suggestion",
	PurposeRegional: "regional-context",
}

// Purposes lists the known purposes in display order.
func Purposes() []Purpose {
	return []Purpose{
		PurposeExplain,
		PurposeQuiz,
		PurposeRemediate,
		PurposeSummary,
		PurposeVisual,
		PurposeRegional,
	}
}

// ErrUnknownPurpose is returned by ParsePurpose for unrecognised names.
var ErrUnknownPurpose = errors.New("unknown purpose")

// ParsePurpose validates a purpose name.
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Purposes() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w %q (expected one of %s)", ErrUnknownPurpose, s, joinPurposes())
}

func joinPurposes() string {
	names := make([]string, 0, len(Purposes()))
	for _, p := range Purposes() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

// Extra carries optional inputs for purposes that need more than a topic.
type Extra struct {
	StrongTopic string `json:"strong_topic,omitempty"`
	Region      string `json:"region,omitempty"`
}

// ForPurpose builds the prompt for a lesson purpose from the catalog.
// Unknown purposes fall back to a generic information request. The topic and
// extras are inserted as given, even when they contain {NAME} text.
func (c *Catalog) ForPurpose(topic string, purpose Purpose, extra Extra) string {
	id, values := purposeRequest(topic, purpose, extra)
	if id != "" {
		if t, err := c.Get(id); err == nil {
			return substitute(t.Body, values)
		}
	}
	return fmt.Sprintf("As AgriTutor AI, provide information about %s for agriculture students.", topic)
}

// ForPurpose builds a purpose prompt from the embedded catalog.
func ForPurpose(topic string, purpose Purpose, extra Extra) string {
	c, _ := Default()
	return c.ForPurpose(topic, purpose, extra)
}

// substitute replaces every placeholder in a single pass, so inserted text is
// never rescanned.
func substitute(body string, values Values) string {
	pairs := make([]string, 0, 2*values.Len())
	for _, key := range values.Keys() {
		value, _ := values.Get(key)
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

func purposeRequest(topic string, purpose Purpose, extra Extra) (string, Values) {
	switch purpose {
	case PurposeRemediate:
		if extra.StrongTopic != "" {
			return "weak-area-comparison", NewValues("WEAK_TOPIC", topic, "STRONG_TOPIC", extra.StrongTopic)
		}
		return "diagnostic-remediation", NewValues("TOPIC", topic)
	case PurposeRegional:
		region := extra.Region
		if region == "" {
			region = DefaultRegion
		}
		return purposeTemplates[purpose], NewValues("TOPIC", topic, "REGION", region)
	default:
		id, ok := purposeTemplates[purpose]
		if !ok {
			return "", Values{}
		}
		return id, NewValues("TOPIC", topic)
	}
}
