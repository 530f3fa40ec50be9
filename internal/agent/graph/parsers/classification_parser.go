package parsers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxSummaryLen = 512
	maxErrSnippet = 200 // limit error snippet size
)

var manuscriptIDPattern = regexp.MustCompile(`(?i)^MS-\d{4}-\d{4}$`)

// ClassificationResult is a parsed classifier reply plus parser hints.
type ClassificationResult struct {
	Classification  model.Classification
	ParsingMetadata map[string]any
}

type rawClassification struct {
	Category     *string `json:"category"`
	Urgency      *string `json:"urgency"`
	ManuscriptID *string `json:"manuscript_id"`
	IssueSummary *string `json:"issue_summary"`
}

// ParseClassification extracts the classification JSON object from a model
// reply. The object may be wrapped in ```json fences or surrounded by prose.
// Errors are ClassificationParse AppErrors.
func ParseClassification(content string) (res *ClassificationResult, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "classification_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("classification parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			res = nil
		}
	}()

	res = &ClassificationResult{ParsingMetadata: map[string]any{}}
	addHint := func(msg string) {
		v, _ := res.ParsingMetadata["parsing_hints"].([]string)
		res.ParsingMetadata["parsing_hints"] = append(v, msg)
	}

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "classification_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = truncate(content, maxContentLen)
		res.ParsingMetadata["truncated"] = true
	}
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
		addHint("invalid utf8 stripped")
	}

	body, how := extractJSONObject(content)
	if body == "" {
		return nil, errx.ClassificationParse(fmt.Errorf("no json object in reply: %q", safeSnippet(content)))
	}
	if how != "" {
		addHint(how)
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, errx.ClassificationParse(fmt.Errorf("%w (reply: %q)", err, safeSnippet(body)))
	}

	def := model.DefaultClassification()
	c := model.Classification{}

	if raw.Category != nil && strings.TrimSpace(*raw.Category) != "" {
		c.Category = model.Category(strings.ToLower(strings.TrimSpace(*raw.Category)))
		if !c.Category.Valid() {
			addHint("unrecognised category kept")
		}
	} else {
		c.Category = def.Category
		addHint("category missing")
	}

	c.Urgency = def.Urgency
	if raw.Urgency != nil {
		u := model.Urgency(strings.ToLower(strings.TrimSpace(*raw.Urgency)))
		if u.Valid() {
			c.Urgency = u
		} else {
			addHint("invalid urgency defaulted")
		}
	} else {
		addHint("urgency missing")
	}

	if raw.ManuscriptID != nil {
		id := strings.TrimSpace(*raw.ManuscriptID)
		switch {
		case id == "" || strings.EqualFold(id, "null") || strings.EqualFold(id, "none"):
		case manuscriptIDPattern.MatchString(id):
			c.ManuscriptID = strings.ToUpper(id)
		default:
			addHint("malformed manuscript_id dropped")
		}
	}

	if raw.IssueSummary != nil {
		c.IssueSummary = strings.TrimSpace(*raw.IssueSummary)
		if len(c.IssueSummary) > maxSummaryLen {
			c.IssueSummary = truncate(c.IssueSummary, maxSummaryLen)
			addHint("issue_summary truncated")
		}
	}

	res.Classification = c
	return res, nil
}

// extractJSONObject returns the candidate object and a hint describing how it
// was located.
func extractJSONObject(content string) (string, string) {
	s := strings.TrimSpace(content)
	how := ""

	if i := strings.Index(s, "```json"); i >= 0 {
		rest := s[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s, how = strings.TrimSpace(rest), "json fence"
	} else if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s, how = strings.TrimSpace(rest), "bare fence"
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", how
	}
	if start > 0 || end < len(s)-1 {
		if how == "" {
			how = "surrounding prose"
		} else {
			how += ", surrounding prose"
		}
	}
	return s[start : end+1], how
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	return truncate(s, maxErrSnippet)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
