package parsers

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
)

func TestParseClassificationShapes(t *testing.T) {
	want := model.Classification{
		Category:     model.CategoryReviewDelay,
		Urgency:      model.UrgencyHigh,
		ManuscriptID: "MS-2024-1234",
		IssueSummary: "Review exceeding normal timeline",
	}
	obj := `{"category": "review_delay", "urgency": "HIGH", "manuscript_id": "ms-2024-1234", "issue_summary": "Review exceeding normal timeline"}`

	tests := []struct {
		name    string
		content string
	}{
		{"bare object", obj},
		{"json fence", "```json\n" + obj + "\n```"},
		{"plain fence", "```\n" + obj + "\n```"},
		{"leading prose", "Here is the classification:\n" + obj + "\nLet me know if you need more."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseClassification(tt.content)
			require.NoError(t, err)
			assert.Equal(t, want, res.Classification)
		})
	}
}

func TestParseClassificationNormalises(t *testing.T) {
	res, err := ParseClassification(`{"category": "weather_question", "urgency": "urgent", "manuscript_id": null, "issue_summary": "Asks about rain"}`)
	require.NoError(t, err)

	assert.Equal(t, model.Category("weather_question"), res.Classification.Category)
	assert.Equal(t, model.UrgencyMedium, res.Classification.Urgency)
	assert.Empty(t, res.Classification.ManuscriptID)
	assert.Contains(t, res.ParsingMetadata["parsing_hints"], "invalid urgency defaulted")
}

func TestParseClassificationMissingCategory(t *testing.T) {
	res, err := ParseClassification(`{"urgency": "low"}`)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryStatusInquiry, res.Classification.Category)
	assert.Equal(t, model.UrgencyLow, res.Classification.Urgency)
}

func TestParseClassificationFailures(t *testing.T) {
	for _, content := range []string{
		"",
		"I cannot help with that.",
		"{category: review_delay}",
		"```json\n{\"category\": \n```",
	} {
		_, err := ParseClassification(content)
		require.Error(t, err, content)
		assert.ErrorIs(t, err, errx.ErrClassificationParse)
	}
}

func TestParseClassificationTruncatesHugeInput(t *testing.T) {
	content := `{"category": "status_inquiry", "urgency": "low"}` + strings.Repeat(" ", maxContentLen)
	res, err := ParseClassification(content)
	require.NoError(t, err)
	assert.Equal(t, true, res.ParsingMetadata["truncated"])
}

func TestParseClassificationTruncatesOnRuneBoundaries(t *testing.T) {
	summary := "a" + strings.Repeat("é", 300)
	res, err := ParseClassification(`{"category": "status_inquiry", "urgency": "low", "issue_summary": "` + summary + `"}`)
	require.NoError(t, err)
	got := res.Classification.IssueSummary
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxSummaryLen)
	assert.Equal(t, maxSummaryLen-1, len(got))
	assert.Contains(t, res.ParsingMetadata["parsing_hints"], "issue_summary truncated")

	_, err = ParseClassification("{category: x" + strings.Repeat("日本", 100) + "}")
	require.Error(t, err)
	assert.True(t, utf8.ValidString(err.Error()))
	assert.NotContains(t, err.Error(), `\x`)
}
