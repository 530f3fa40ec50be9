package responder

import (
	"context"
	"fmt"

	"github.com/manuscript-desk-poc/server/internal/agent/graph/prompts"
	"github.com/manuscript-desk-poc/server/internal/agent/llm"
	"github.com/manuscript-desk-poc/server/internal/agent/model"
	"github.com/manuscript-desk-poc/server/internal/agent/policy"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

const (
	DefaultThreshold           = 0.5
	DefaultTemperature float32 = 0.5
	// Grounded replies run cooler so the model sticks to the record.
	DefaultGroundedTemperature float32 = 0.3

	modelErrorPrefix = "Error calling language model: "
)

type Config struct {
	Threshold           float64
	Temperature         float32
	GroundedTemperature float32
	Prompt              model.ResponsePromptConfig
}

type Request struct {
	Query               string
	Classification      model.Classification
	Retrieved           []model.RetrievedCase
	ConversationContext string
	Manuscript          *model.ManuscriptRecord
	Lexical             bool
}

type Reply struct {
	Text             string
	Confidence       float64
	Escalate         bool
	EscalationReason string
	Grounded         bool
	ScoringVersion   string
	// Err is the absorbed model failure, if any.
	Err error
}

// Responder drafts the customer reply and scores it.
type Responder struct {
	gen llm.Generator
	cfg Config
}

func New(gen llm.Generator, cfg Config) *Responder {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.GroundedTemperature <= 0 {
		cfg.GroundedTemperature = DefaultGroundedTemperature
	}
	return &Responder{gen: gen, cfg: cfg}
}

// Respond never returns an error: a failed model call becomes an escalated
// reply carrying the error text with confidence 0.
func (r *Responder) Respond(ctx context.Context, req Request) Reply {
	grounded := req.Manuscript != nil

	rendered, err := prompts.RenderResponse(ctx, r.cfg.Prompt, prompts.ResponseInput{
		Query:               req.Query,
		Classification:      req.Classification,
		Cases:               req.Retrieved,
		ConversationContext: req.ConversationContext,
		Manuscript:          req.Manuscript,
	})
	if err != nil {
		logx.Error().Err(err).Str("component", "responder").Msg("Error rendering response prompt")
		return failed(err, grounded)
	}

	temperature := r.cfg.Temperature
	if grounded {
		temperature = r.cfg.GroundedTemperature
	}
	text, err := r.gen.Generate(ctx, rendered.User, rendered.System, temperature)
	if err != nil {
		logx.Warn().Err(err).Str("component", "responder").Bool("grounded", grounded).Msg("Response model call failed")
		return failed(err, grounded)
	}

	conf := ScoreConfidence(ConfidenceInput{
		Classification: req.Classification,
		Retrieved:      req.Retrieved,
		Grounded:       grounded,
		Lexical:        req.Lexical,
	})
	escalate, reason := r.shouldEscalate(conf, req.Classification.Urgency, len(req.Retrieved), grounded)

	return Reply{
		Text:             text,
		Confidence:       conf,
		Escalate:         escalate,
		EscalationReason: reason,
		Grounded:         grounded,
		ScoringVersion:   ScoringVersion,
	}
}

func (r *Responder) shouldEscalate(conf float64, urgency model.Urgency, cases int, grounded bool) (bool, string) {
	switch {
	case conf < r.cfg.Threshold:
		return true, policy.ReasonLowConfidence
	case urgency == model.UrgencyHigh && cases == 0:
		return true, policy.ReasonUrgentNoCases
	case grounded && urgency == model.UrgencyHigh:
		return true, policy.ReasonUrgentGrounded
	}
	return false, ""
}

func failed(err error, grounded bool) Reply {
	return Reply{
		Text:             fmt.Sprintf("%s%v", modelErrorPrefix, err),
		Confidence:       0,
		Escalate:         true,
		EscalationReason: policy.ReasonModelFailure,
		Grounded:         grounded,
		ScoringVersion:   ScoringVersion,
		Err:              err,
	}
}
