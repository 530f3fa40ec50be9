package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	"github.com/manuscript-desk-poc/server/internal/observability/metrics"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

const DefaultTimeout = 30 * time.Second

var llmTracer = otel.Tracer("manuscript-desk.internal.agent.llm")

// Generator is the single model-call boundary used by the classifier and the
// responder. Errors are errx ModelCall or ModelTimeout AppErrors.
type Generator interface {
	Generate(ctx context.Context, userPrompt, systemPrompt string, temperature float32) (string, error)
}

// ChatGenerator adapts an Eino chat model to Generator.
type ChatGenerator struct {
	chat    einomodel.BaseChatModel
	name    string
	timeout time.Duration
	metrics *metrics.DeskMetrics
}

func NewChatGenerator(chat einomodel.BaseChatModel, name string, timeout time.Duration, m *metrics.DeskMetrics) *ChatGenerator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ChatGenerator{chat: chat, name: name, timeout: timeout, metrics: m}
}

// Name returns the model name used for logs, metrics and pricing.
func (g *ChatGenerator) Name() string {
	return g.name
}

func (g *ChatGenerator) Generate(ctx context.Context, userPrompt, systemPrompt string, temperature float32) (string, error) {
	ctx, span := llmTracer.Start(ctx, "llm.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", g.name),
			attribute.Float64("llm.temperature", float64(temperature)),
		))
	defer span.End()

	msgs := make([]*schema.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, schema.SystemMessage(systemPrompt))
	}
	msgs = append(msgs, schema.UserMessage(userPrompt))

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	// attach run info so model callbacks fire inside lambda nodes
	callCtx = callbacks.ReuseHandlers(callCtx, &callbacks.RunInfo{
		Name:      g.name,
		Type:      "ChatGenerator",
		Component: components.ComponentOfChatModel,
	})

	start := time.Now()
	out, err := g.chat.Generate(callCtx, msgs, einomodel.WithTemperature(temperature))
	g.metrics.ObserveModelCall(g.name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", errx.ModelTimeout(fmt.Errorf("%s after %s: %w", g.name, g.timeout, err))
		}
		return "", errx.ModelCall(fmt.Errorf("%s: %w", g.name, err))
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		err := errx.ModelCall(fmt.Errorf("%s: empty response", g.name))
		span.RecordError(err)
		return "", err
	}

	g.logUsage(ctx, out)
	return out.Content, nil
}

func (g *ChatGenerator) logUsage(ctx context.Context, out *schema.Message) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(g.name))
	g.metrics.ObserveTokens(g.name, usage.PromptTokens, usage.CompletionTokens)
	logx.Debug().
		Str("model", g.name).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
