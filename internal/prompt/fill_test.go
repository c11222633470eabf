package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillRegionalContext(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	tmpl, err := c.Get("regional-context")
	require.NoError(t, err)

	got := tmpl.Fill(NewValues("TOPIC", "Soil Fertility", "REGION", "Punjab"))
	assert.Equal(t,
		"As AgriTutor AI, explain Soil Fertility specifically for Punjab agriculture. Include local crops, climate conditions, soil types, common challenges, and region-specific practices or solutions.",
		got)
}

func TestFillReplacesEveryOccurrence(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	tmpl, err := c.Get("weak-area-comparison")
	require.NoError(t, err)

	got := tmpl.Fill(NewValues("WEAK_TOPIC", "Genetics", "STRONG_TOPIC", "Agronomy"))
	assert.Equal(t,
		"As AgriTutor AI, the student is weak in Genetics but strong in Agronomy. Explain Genetics by comparing and connecting it with Agronomy using practical agriculture examples.",
		got)
	assert.NotContains(t, got, "{")
}

func TestFillTable(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		values Values
		want   string
	}{
		{
			name:   "empty values leave body unchanged",
			body:   "Explain {TOPIC} in {REGION}.",
			values: Values{},
			want:   "Explain {TOPIC} in {REGION}.",
		},
		{
			name:   "missing key leaves placeholder",
			body:   "Explain {TOPIC} in {REGION}.",
			values: NewValues("TOPIC", "Irrigation"),
			want:   "Explain Irrigation in {REGION}.",
		},
		{
			name:   "extra keys are inert",
			body:   "Explain {TOPIC}.",
			values: NewValues("TOPIC", "Irrigation", "UNUSED", "ignored"),
			want:   "Explain Irrigation.",
		},
		{
			name:   "values are not trimmed",
			body:   "[{TOPIC}]",
			values: NewValues("TOPIC", "  padded  "),
			want:   "[  padded  ]",
		},
		{
			name:   "sequential substitution chains into later keys",
			body:   "{A}-{B}",
			values: NewValues("A", "{B}", "B", "X"),
			want:   "X-X",
		},
		{
			name:   "earlier key is not revisited",
			body:   "{A}-{B}",
			values: NewValues("A", "X", "B", "{A}"),
			want:   "X-{A}",
		},
		{
			name:   "undeclared placeholder filled when supplied",
			body:   "Topic {TOPIC} for {LEVEL}",
			values: NewValues("LEVEL", "beginners"),
			want:   "Topic {TOPIC} for beginners",
		},
		{
			name:   "value with regex metacharacters is literal",
			body:   "Cost {PRICE}",
			values: NewValues("PRICE", "$1.50 (approx.)"),
			want:   "Cost $1.50 (approx.)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fill(tt.body, tt.values))
		})
	}
}

func TestFillDoesNotMutateValues(t *testing.T) {
	values := NewValues("TOPIC", "Mulching")
	_ = Fill("{TOPIC}", values)
	got, ok := values.Get("TOPIC")
	require.True(t, ok)
	assert.Equal(t, "Mulching", got)
	assert.Equal(t, []string{"TOPIC"}, values.Keys())
}

func TestComplete(t *testing.T) {
	vars := []string{"TOPIC", "REGION"}

	assert.True(t, Complete(vars, NewValues("TOPIC", "Soil", "REGION", "Kerala")))
	assert.False(t, Complete(vars, NewValues("TOPIC", "Soil", "REGION", "   ")))
	assert.False(t, Complete(vars, NewValues("TOPIC", "Soil")))
	assert.False(t, Complete(vars, ValuesFor(vars)))
	assert.True(t, Complete(nil, Values{}))
	assert.True(t, Complete(vars, NewValues("TOPIC", " Soil ", "REGION", "\tKerala\n")))
}

func TestMissingKeepsDeclaredOrder(t *testing.T) {
	vars := []string{"COMPLETED_TOPICS", "WEAK_TOPICS"}
	assert.Equal(t, []string{"COMPLETED_TOPICS", "WEAK_TOPICS"}, Missing(vars, NewValues("WEAK_TOPICS", " ")))
	assert.Equal(t, []string{"WEAK_TOPICS"}, Missing(vars, NewValues("COMPLETED_TOPICS", "Botany")))
	assert.Empty(t, Missing(vars, NewValues("COMPLETED_TOPICS", "Botany", "WEAK_TOPICS", "Soil")))
}

func TestPlaceholders(t *testing.T) {
	tmpl := Template{Body: "{WEAK_TOPIC} vs {STRONG_TOPIC}, again {WEAK_TOPIC} {lower}"}
	assert.Equal(t, []string{"WEAK_TOPIC", "STRONG_TOPIC"}, tmpl.Placeholders())
	assert.Nil(t, Template{Body: "no placeholders"}.Placeholders())
}
