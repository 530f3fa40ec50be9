package nodes

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
)

// Node names of the turn graph.
const (
	NodeIntake             = "Intake"
	NodeAskManuscriptID    = "AskManuscriptID"
	NodeManuscriptNotFound = "ManuscriptNotFound"
	NodeClassifier         = "Classifier"
	NodeOffTopicRedirect   = "OffTopicRedirect"
	NodeRetriever          = "Retriever"
	NodeResponder          = "Responder"
	NodeFinalize           = "Finalize"
)

const (
	AskManuscriptIDConfidence    = 0.3
	ManuscriptNotFoundConfidence = 0.2
)

var nodeTracer = otel.Tracer("manuscript-desk.internal.agent.graph.nodes")

// traced wraps a node function in a span named after the node.
func traced[I, O any](name string, fn func(context.Context, I) (O, error)) func(context.Context, I) (O, error) {
	return func(ctx context.Context, in I) (O, error) {
		ctx, span := nodeTracer.Start(ctx, "node."+name,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.String("graph.node", name)))
		defer span.End()
		out, err := fn(ctx, in)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}

// withClosing appends the closing remark to a reply.
func withClosing(reply, closing string) string {
	reply = strings.TrimSpace(reply)
	if closing == "" {
		return reply
	}
	if reply == "" {
		return closing
	}
	return reply + "\n\n" + closing
}

func botMetadata(t *model.Turn) *model.MessageMetadata {
	meta := &model.MessageMetadata{
		Confidence:     t.Confidence,
		RetrievedCount: len(t.Retrieved),
		ScoringVersion: t.ScoringVersion,
		Outcome:        t.Outcome,
	}
	if t.Classification != nil {
		c := *t.Classification
		meta.Classification = &c
	}
	return meta
}
