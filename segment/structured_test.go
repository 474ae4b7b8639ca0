package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestExtractStructured(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		news    string
		details *string
		why     *string
	}{
		{
			name:    "all three sections",
			html:    "<p>News: Model released to everyone today.</p><p>Details: Benchmarks improved.</p><p>Why It Matters: Raises the bar.</p>",
			news:    "Model released to everyone today.",
			details: strPtr("Benchmarks improved."),
			why:     strPtr("Raises the bar."),
		},
		{
			name:    "sections out of order",
			html:    "Why it matters: Big deal for devs. Details: More info here. News: Model shipped to everyone.",
			news:    "Model shipped to everyone.",
			details: strPtr("More info here."),
			why:     strPtr("Big deal for devs."),
		},
		{
			name:    "line start labels",
			html:    "<p>News</p><p>OpenAI shipped a new model today.</p><p>Details</p><p>Benchmarks improved across the board.</p>",
			news:    "OpenAI shipped a new model today.",
			details: strPtr("Benchmarks improved across the board."),
		},
		{
			name: "the news prefix",
			html: "The News: Chips are getting faster every year. Why matters: Cost.",
			news: "Chips are getting faster every year.",
			why:  strPtr("Cost."),
		},
		{
			name: "empty details section",
			html: "News: Something big happened today. Details: Why it matters: Reason.",
			news: "Something big happened today.",
			why:  strPtr("Reason."),
		},
		{
			name: "labels wrapped in markup keep links",
			html: `<p><strong>News:</strong> Google released <a href="https://gemini.test">Gemini 3</a> today.</p><p><strong>Why it matters:</strong> Competition heats up.</p>`,
			news: `Google released <a href="https://gemini.test">Gemini 3</a> today.`,
			why:  strPtr("Competition heats up."),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractStructured(tt.html)
			require.NotNil(t, got)
			assert.Equal(t, tt.news, got.News)
			assert.Equal(t, tt.details, got.Details)
			assert.Equal(t, tt.why, got.WhyItMatters)
		})
	}
}

func TestExtractStructured_NoResult(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"no labels", "<p>Just a regular story about a model release.</p>"},
		{"missing news", "Details: foo bar baz qux. Why it matters: stuff."},
		{"news only", "News: Something happened today in AI."},
		{"short news", "News: Hi. Details: long text here for sure."},
		{"incidental news word", "Breaking news: big. Details: more to come later."},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ExtractStructured(tt.html))
		})
	}
}

func TestExtractStructured_LeadingProse(t *testing.T) {
	filler := strings.Repeat("The launch drew wide attention across the industry. ", 4)
	got := ExtractStructured("<p>" + filler + "News: Model released today. Details: More below. Why It Matters: Raises the bar for competitors.</p>")

	require.NotNil(t, got)
	assert.Equal(t, "Model released today.", got.News)
	assert.Equal(t, "More below.", *got.Details)
	assert.Equal(t, "Raises the bar for competitors.", *got.WhyItMatters)
}
