package triage

import (
	"context"
	"regexp"
	"strings"

	"github.com/manuscript-desk-poc/server/internal/agent/graph/parsers"
	"github.com/manuscript-desk-poc/server/internal/agent/graph/prompts"
	"github.com/manuscript-desk-poc/server/internal/agent/llm"
	"github.com/manuscript-desk-poc/server/internal/agent/model"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

const DefaultTemperature float32 = 0.3

var manuscriptIDRe = regexp.MustCompile(`(?i)MS-\d{4}-\d{4}`)

// ExtractManuscriptID returns the first MS-YYYY-NNNN id in text, upper-cased.
func ExtractManuscriptID(text string) string {
	return strings.ToUpper(manuscriptIDRe.FindString(text))
}

// Classifier maps a customer message to a Classification with one model call.
type Classifier struct {
	gen         llm.Generator
	promptCfg   model.ResponsePromptConfig
	temperature float32
}

func NewClassifier(gen llm.Generator, promptCfg model.ResponsePromptConfig, temperature float32) *Classifier {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Classifier{gen: gen, promptCfg: promptCfg, temperature: temperature}
}

// Classify never fails: any model or parse problem yields DefaultClassification.
func (c *Classifier) Classify(ctx context.Context, text string) model.Classification {
	rendered, err := prompts.RenderClassifier(ctx, c.promptCfg, text)
	if err != nil {
		logx.Error().Err(err).Str("component", "classifier").Msg("Error rendering classifier prompt")
		return model.DefaultClassification()
	}

	reply, err := c.gen.Generate(ctx, rendered.User, rendered.System, c.temperature)
	if err != nil {
		logx.Warn().Err(err).Str("component", "classifier").Msg("Classifier model call failed, using default classification")
		return model.DefaultClassification()
	}

	res, err := parsers.ParseClassification(reply)
	if err != nil {
		logx.Warn().Err(err).Str("component", "classifier").Msg("Classifier reply unparseable, using default classification")
		return model.DefaultClassification()
	}
	if hints, ok := res.ParsingMetadata["parsing_hints"]; ok {
		logx.Debug().Str("component", "classifier").Interface("hints", hints).Msg("Classification parsed with hints")
	}
	return res.Classification
}
