package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	"github.com/manuscript-desk-poc/server/internal/agent/policy"
	"github.com/manuscript-desk-poc/server/internal/agent/responder"
	"github.com/manuscript-desk-poc/server/internal/agent/retrieval"
	"github.com/manuscript-desk-poc/server/internal/agent/triage"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	"github.com/manuscript-desk-poc/server/internal/observability/metrics"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

// ManuscriptLookup is the read side of the manuscript status database.
type ManuscriptLookup interface {
	Lookup(manuscriptID string) (model.ManuscriptRecord, bool)
}

type Classifier interface {
	Classify(ctx context.Context, text string) model.Classification
}

type Responder interface {
	Respond(ctx context.Context, req responder.Request) responder.Reply
}

// NewIntakeNode appends the customer message, resolves the manuscript id from
// the message or prior context and, when the pipeline asks for it, checks the
// id against the status database.
func NewIntakeNode(manuscripts ManuscriptLookup, now func() time.Time) *compose.Lambda {
	return compose.InvokableLambda(traced(NodeIntake, func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		conv := t.Conversation
		if conv == nil {
			return nil, fmt.Errorf("turn has no conversation")
		}
		conv.AddMessage(model.RoleCustomer, t.Query, nil, now())

		if id := triage.ExtractManuscriptID(t.Query); id != "" {
			conv.UpdateContext(model.ContextUpdate{ManuscriptID: &id}, now())
		}
		if conv.Context.ManuscriptID != nil {
			t.ManuscriptID = *conv.Context.ManuscriptID
		}

		if t.Policy.RequireManuscriptID && t.ManuscriptID == "" {
			t.Outcome = model.OutcomeNeedManuscriptID
			return t, nil
		}
		if t.Policy.ManuscriptLookup && t.ManuscriptID != "" && manuscripts != nil {
			rec, ok := manuscripts.Lookup(t.ManuscriptID)
			if !ok {
				logx.Info().
					Err(errx.ManuscriptNotFound(t.ManuscriptID)).
					Str("conversation_id", conv.ID).
					Msg("Manuscript not found in status database")
				t.Outcome = model.OutcomeManuscriptNotFound
				return t, nil
			}
			t.Manuscript = &rec
		}
		return t, nil
	}))
}

// NewIntakeCondition routes after intake.
func NewIntakeCondition() func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, t *model.Turn) (string, error) {
		switch t.Outcome {
		case model.OutcomeNeedManuscriptID:
			logx.Debug().Str("conversation_id", t.Conversation.ID).Msg("Routing to AskManuscriptID - no manuscript id known")
			return NodeAskManuscriptID, nil
		case model.OutcomeManuscriptNotFound:
			logx.Debug().Str("conversation_id", t.Conversation.ID).Msg("Routing to ManuscriptNotFound - lookup miss")
			return NodeManuscriptNotFound, nil
		}
		return NodeClassifier, nil
	}
}

func NewAskManuscriptIDNode(rules *policy.Policy) *compose.Lambda {
	return compose.InvokableLambda(traced(NodeAskManuscriptID, func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		t.Response = rules.Replies.AskManuscriptID
		t.Confidence = AskManuscriptIDConfidence
		t.Outcome = model.OutcomeNeedManuscriptID
		return t, nil
	}))
}

func NewManuscriptNotFoundNode(rules *policy.Policy) *compose.Lambda {
	return compose.InvokableLambda(traced(NodeManuscriptNotFound, func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		t.Response = rules.NotFoundReply(t.ManuscriptID)
		t.Confidence = ManuscriptNotFoundConfidence
		t.Escalate = true
		t.EscalationReason = policy.ManuscriptNotFoundReason(t.ManuscriptID)
		t.Outcome = model.OutcomeManuscriptNotFound
		return t, nil
	}))
}

// NewClassifierNode classifies the message and merges category and urgency
// into the conversation context.
func NewClassifierNode(classifier Classifier, now func() time.Time) *compose.Lambda {
	return compose.InvokableLambda(traced(NodeClassifier, func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		c := classifier.Classify(ctx, t.Query)
		if c.ManuscriptID == "" {
			c.ManuscriptID = t.ManuscriptID
		}
		t.Classification = &c

		upd := model.ContextUpdate{}
		if c.Category.Valid() {
			upd.Category = &c.Category
		}
		if c.Urgency.Valid() {
			upd.Urgency = &c.Urgency
		}
		if c.ManuscriptID != "" && t.ManuscriptID == "" {
			upd.ManuscriptID = &c.ManuscriptID
			t.ManuscriptID = c.ManuscriptID
		}
		t.Conversation.UpdateContext(upd, now())

		logx.Debug().
			Str("conversation_id", t.Conversation.ID).
			Str("category", string(c.Category)).
			Str("urgency", string(c.Urgency)).
			Str("manuscript_id", c.ManuscriptID).
			Msg("Query classified")
		return t, nil
	}))
}

// NewClassifierCondition sends off-topic queries to the redirect. A message
// that reads as satisfaction is never treated as off-topic so the closing
// rule can apply.
func NewClassifierCondition(rules *policy.Policy) func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, t *model.Turn) (string, error) {
		c := model.DefaultClassification()
		if t.Classification != nil {
			c = *t.Classification
		}
		if !rules.DetectSatisfaction(t.Query) && rules.IsOffTopic(t.Query, c) {
			logx.Debug().Str("conversation_id", t.Conversation.ID).Str("category", string(c.Category)).
				Msg("Routing to OffTopicRedirect")
			return NodeOffTopicRedirect, nil
		}
		return NodeRetriever, nil
	}
}

func NewOffTopicRedirectNode(rules *policy.Policy) *compose.Lambda {
	return compose.InvokableLambda(traced(NodeOffTopicRedirect, func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		c := model.DefaultClassification()
		if t.Classification != nil {
			c = *t.Classification
		}
		logx.Info().
			Err(errx.OffTopic(fmt.Sprintf("classified as %s", c.Category))).
			Str("conversation_id", t.Conversation.ID).
			Msg("Redirecting off-topic query")

		t.Response = rules.Replies.OffTopic
		t.Confidence = 0
		t.Escalate = true
		t.EscalationReason = policy.ReasonOffTopic
		t.Close = true
		t.Outcome = model.OutcomeOffTopic
		return t, nil
	}))
}

func NewRetrieverNode(r retrieval.Retriever, topK int, m *metrics.DeskMetrics) *compose.Lambda {
	return compose.InvokableLambda(traced(NodeRetriever, func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		var category model.Category
		if t.Classification != nil {
			category = t.Classification.Category
		}
		cases, err := r.Search(ctx, t.Query, category, topK)
		if err != nil {
			logx.Error().Err(err).Str("conversation_id", t.Conversation.ID).Msg("Error searching similar cases")
			return nil, fmt.Errorf("search similar cases: %w", err)
		}
		m.ObserveRetrieval(string(r.Mode()), len(cases))
		t.Retrieved = cases
		logx.Debug().
			Str("conversation_id", t.Conversation.ID).
			Str("mode", string(r.Mode())).
			Int("hits", len(cases)).
			Msg("Similar cases retrieved")
		return t, nil
	}))
}

func NewResponderNode(resp Responder, lexical bool, historyWindow int) *compose.Lambda {
	return compose.InvokableLambda(traced(NodeResponder, func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		c := model.DefaultClassification()
		if t.Classification != nil {
			c = *t.Classification
		}
		reply := resp.Respond(ctx, responder.Request{
			Query:               t.Query,
			Classification:      c,
			Retrieved:           t.Retrieved,
			ConversationContext: t.Conversation.ContextString(historyWindow),
			Manuscript:          t.Manuscript,
			Lexical:             lexical,
		})

		t.Response = reply.Text
		t.Confidence = reply.Confidence
		t.Grounded = reply.Grounded
		t.ScoringVersion = reply.ScoringVersion
		t.Escalate = reply.Escalate
		t.EscalationReason = reply.EscalationReason
		t.Outcome = model.OutcomeAnswered
		if reply.Err != nil {
			t.Outcome = model.OutcomeModelFailure
		}
		return t, nil
	}))
}

// NewFinalizeNode applies the closing rule and the escalation policy, appends
// the bot message and builds the turn result.
func NewFinalizeNode(rules *policy.Policy, m *metrics.DeskMetrics, now func() time.Time) *compose.Lambda {
	return compose.InvokableLambda(traced(NodeFinalize, func(ctx context.Context, t *model.Turn) (*model.TurnResult, error) {
		conv := t.Conversation
		ts := now()

		// Satisfaction closes from any state, escalated included.
		if rules.DetectSatisfaction(t.Query) {
			switch t.Outcome {
			case model.OutcomeAnswered, model.OutcomeModelFailure:
				t.Response = withClosing(t.Response, rules.Replies.Closing)
			case model.OutcomeNeedManuscriptID, model.OutcomeManuscriptNotFound:
				// nothing to ask for once the customer is done
				t.Response = rules.Replies.Closing
			}
			t.Close = true
		}

		if !t.Escalate {
			if esc, reason := rules.ConversationEscalation(conv); esc {
				t.Escalate = true
				t.EscalationReason = reason
			}
		}
		if t.Escalate {
			if conv.MarkEscalated(t.EscalationReason, ts) {
				m.ObserveEscalation(string(t.Outcome))
				logx.Warn().
					Str("conversation_id", conv.ID).
					Str("reason", t.EscalationReason).
					Str("outcome", string(t.Outcome)).
					Msg("Conversation escalated to a human agent")
			}
		}

		conv.AddMessage(model.RoleBot, t.Response, botMetadata(t), ts)

		if t.Close && !conv.Context.Closed {
			conv.MarkClosed(ts)
			m.ObserveClosed()
		}

		similar := t.Retrieved
		if similar == nil {
			similar = []model.RetrievedCase{}
		}
		elapsed := ts.Sub(t.StartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		m.ObserveTurn(t.Policy.Name, string(t.Outcome), elapsed, t.Confidence)

		snapshot := conv.Clone()
		return &model.TurnResult{
			ConversationID:   conv.ID,
			Query:            t.Query,
			Response:         t.Response,
			Confidence:       t.Confidence,
			ShouldEscalate:   conv.Context.Escalated,
			EscalationReason: conv.Context.EscalationReason,
			Closed:           conv.Context.Closed,
			State:            conv.Context.State(),
			Outcome:          t.Outcome,
			Classification:   t.Classification,
			SimilarCases:     similar,
			Context:          snapshot.Context,
			ProcessingTime:   elapsed,
		}, nil
	}))
}
