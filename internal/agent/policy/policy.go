package policy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// Escalation reasons recorded on the conversation context.
const (
	ReasonLowConfidence      = "Low confidence response"
	ReasonUrgentNoCases      = "High urgency with no similar cases"
	ReasonUrgentGrounded     = "High urgency manuscript inquiry"
	ReasonUrgentFollowUps    = "High urgency with multiple messages"
	ReasonFrustration        = "Customer frustration detected"
	ReasonOffTopic           = "Off-topic query"
	ReasonModelFailure       = "Language model call failed"
	reasonManuscriptNotFound = "Manuscript %s not found in database"
)

// ManuscriptNotFoundReason names the id that failed lookup.
func ManuscriptNotFoundReason(manuscriptID string) string {
	return fmt.Sprintf(reasonManuscriptNotFound, manuscriptID)
}

type Replies struct {
	AskManuscriptID    string `yaml:"ask_manuscript_id"`
	ManuscriptNotFound string `yaml:"manuscript_not_found"`
	OffTopic           string `yaml:"off_topic"`
	Closing            string `yaml:"closing"`
}

// Policy holds the keyword lists and thresholds of the conversation state
// machine. It is immutable after construction.
type Policy struct {
	FrustrationLookback int      `yaml:"frustration_lookback"`
	UrgentMessageCount  int      `yaml:"urgent_message_count"`
	Frustration         []string `yaml:"frustration"`
	Satisfaction        []string `yaml:"satisfaction"`
	OffTopic            []string `yaml:"off_topic"`
	Greetings           []string `yaml:"greetings"`
	Replies             Replies  `yaml:"replies"`
}

// Default returns the embedded policy.
func Default() *Policy {
	var p Policy
	if err := yaml.Unmarshal(defaultPolicyYAML, &p); err != nil {
		panic(fmt.Sprintf("load policy.yaml: %v", err))
	}
	p.normalize()
	return &p
}

// Load applies the YAML file at path over the embedded defaults. An empty
// path returns the defaults.
func Load(path string) (*Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	p.normalize()
	return p, nil
}

// WithThresholds returns a copy using the configured escalation thresholds
// where they are set.
func (p *Policy) WithThresholds(cfg model.EscalationConfig) *Policy {
	cp := *p
	if cfg.FrustrationLookback > 0 {
		cp.FrustrationLookback = cfg.FrustrationLookback
	}
	if cfg.UrgentMessageCount > 0 {
		cp.UrgentMessageCount = cfg.UrgentMessageCount
	}
	return &cp
}

func (p *Policy) normalize() {
	for _, list := range []*[]string{&p.Frustration, &p.Satisfaction, &p.OffTopic, &p.Greetings} {
		out := (*list)[:0]
		for _, kw := range *list {
			if kw = normalizeText(kw); kw != "" {
				out = append(out, kw)
			}
		}
		*list = out
	}
	if p.FrustrationLookback <= 0 {
		p.FrustrationLookback = 3
	}
	if p.UrgentMessageCount <= 0 {
		p.UrgentMessageCount = 2
	}
}

// DetectFrustration reports a frustration keyword in the recent customer messages.
func (p *Policy) DetectFrustration(conv *model.Conversation) bool {
	for _, m := range conv.CustomerMessages(p.FrustrationLookback) {
		if containsAny(normalizeText(m.Content), p.Frustration) {
			return true
		}
	}
	return false
}

// DetectSatisfaction reports a satisfaction phrase in text.
func (p *Policy) DetectSatisfaction(text string) bool {
	return containsAny(normalizeText(text), p.Satisfaction)
}

// IsGreeting reports whether text opens with a greeting.
func (p *Policy) IsGreeting(text string) bool {
	norm := normalizeText(text)
	for _, g := range p.Greetings {
		if norm == g || strings.HasPrefix(norm, g+" ") {
			return true
		}
	}
	return false
}

// IsOffTopic: greetings are never off-topic; otherwise a denylisted word or an
// unrecognised category makes the query off-topic.
func (p *Policy) IsOffTopic(text string, c model.Classification) bool {
	if p.IsGreeting(text) {
		return false
	}
	padded := " " + normalizeText(text) + " "
	for _, kw := range p.OffTopic {
		if strings.Contains(padded, " "+kw+" ") {
			return true
		}
	}
	return !c.Category.Valid()
}

// ConversationEscalation evaluates the conversation-level criteria and
// returns the first that fires.
func (p *Policy) ConversationEscalation(conv *model.Conversation) (bool, string) {
	if u := conv.Context.Urgency; u != nil && *u == model.UrgencyHigh && len(conv.Messages) > p.UrgentMessageCount {
		return true, ReasonUrgentFollowUps
	}
	if p.DetectFrustration(conv) {
		return true, ReasonFrustration
	}
	return false, ""
}

// NotFoundReply renders the lookup-miss reply for manuscriptID.
func (p *Policy) NotFoundReply(manuscriptID string) string {
	return strings.ReplaceAll(p.Replies.ManuscriptNotFound, "{manuscript_id}", manuscriptID)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// normalizeText lower-cases, turns punctuation into spaces and collapses runs
// of whitespace.
func normalizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
