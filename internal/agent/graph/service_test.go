package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manuscript-desk-poc/server/internal/agent/graph/conversations"
	"github.com/manuscript-desk-poc/server/internal/agent/knowledge"
	"github.com/manuscript-desk-poc/server/internal/agent/llm/llmtest"
	"github.com/manuscript-desk-poc/server/internal/agent/model"
	"github.com/manuscript-desk-poc/server/internal/agent/policy"
	"github.com/manuscript-desk-poc/server/internal/agent/repo"
	"github.com/manuscript-desk-poc/server/internal/agent/responder"
	"github.com/manuscript-desk-poc/server/internal/agent/retrieval"
	"github.com/manuscript-desk-poc/server/internal/agent/triage"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	"github.com/manuscript-desk-poc/server/internal/observability/metrics"
)

const classifierMarker = "triage specialist"

var corpus = []model.Case{
	{ID: "CASE_0001", Category: model.CategoryStatusInquiry, Urgency: model.UrgencyLow, Query: "What is the status of my manuscript submission?", Resolution: "Shared the current review stage."},
	{ID: "CASE_0002", Category: model.CategoryStatusInquiry, Urgency: model.UrgencyMedium, Query: "Can you check where my paper is in review?", Resolution: "Confirmed reviewers were assigned."},
	{ID: "CASE_0003", Category: model.CategoryReviewDelay, Urgency: model.UrgencyHigh, Query: "My review is taking far too long", Resolution: "Chased the handling editor."},
}

// scripted answers classifier calls with classify(query) and responder calls
// with respond(query).
type scripted struct {
	classify func(query string) string
	respond  func(query string) (string, error)
}

func classification(category model.Category, urgency model.Urgency) string {
	return fmt.Sprintf(`{"category": %q, "urgency": %q, "manuscript_id": null, "issue_summary": "test"}`, category, urgency)
}

func queryOf(user string) string {
	line, _, _ := strings.Cut(strings.TrimPrefix(user, "Customer Query: "), "\n")
	return strings.TrimSpace(line)
}

func newDesk(t *testing.T, cases []model.Case, s scripted) (*Service, *llmtest.Generator) {
	t.Helper()
	if s.classify == nil {
		s.classify = func(string) string { return classification(model.CategoryStatusInquiry, model.UrgencyMedium) }
	}
	if s.respond == nil {
		s.respond = func(string) (string, error) { return "Your manuscript is progressing.", nil }
	}
	gen := &llmtest.Generator{Func: func(user, system string) (string, error) {
		if strings.Contains(system, classifierMarker) {
			return s.classify(queryOf(user)), nil
		}
		return s.respond(queryOf(user))
	}}

	store := knowledge.NewCaseStore(cases)
	manuscripts := knowledge.NewManuscriptDB([]model.ManuscriptRecord{
		{ManuscriptID: "MS-2024-1234", AuthorName: "Dr. Rivera", CurrentStatus: "Under Review", ReviewerCount: 2},
	})
	manager := conversations.NewManager(repo.NewMemoryConversationRepository(), model.ConversationConfig{})
	fixed := time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)
	manager.SetClock(func() time.Time { return fixed })

	prompt := model.ResponsePromptConfig{JournalName: "Journal of Tests", SupportDesk: "desk@example.org"}
	svc, err := NewService(context.Background(), Config{
		Manager:         manager,
		Rules:           policy.Default(),
		Manuscripts:     manuscripts,
		ManuscriptCount: manuscripts.Len,
		Cases:           store,
		Classifier:      triage.NewClassifier(gen, prompt, 0),
		Retriever:       retrieval.NewLexicalRetriever(store),
		Responder:       responder.New(gen, responder.Config{Prompt: prompt}),
		Pipeline:        model.PipelineConfig{RequireManuscriptID: true, ManuscriptLookup: true},
		Metrics:         metrics.NewDeskMetrics(prometheus.NewRegistry()),
		ClassifierModel: "classifier-test",
		ResponseModel:   "response-test",
	})
	require.NoError(t, err)
	return svc, gen
}

func startConversation(t *testing.T, svc *Service) string {
	t.Helper()
	conv, err := svc.StartConversation(context.Background())
	require.NoError(t, err)
	return conv.ID
}

func TestAsksForManuscriptID(t *testing.T) {
	svc, gen := newDesk(t, corpus, scripted{})
	id := startConversation(t, svc)

	res, err := svc.HandleMessage(context.Background(), id, "Where is my paper?")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNeedManuscriptID, res.Outcome)
	assert.Equal(t, 0.3, res.Confidence)
	assert.False(t, res.ShouldEscalate)
	assert.Equal(t, model.StateOpen, res.State)
	assert.Contains(t, res.Response, "MS-YYYY-NNNN")
	assert.Empty(t, gen.Calls(), "no model call before the id is known")

	conv, err := svc.Conversation(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.RoleCustomer, conv.Messages[0].Role)
	assert.Equal(t, model.RoleBot, conv.Messages[1].Role)
	require.NotNil(t, conv.Messages[1].Metadata)
	assert.Equal(t, model.OutcomeNeedManuscriptID, conv.Messages[1].Metadata.Outcome)
}

func TestManuscriptNotFoundEscalatesWithID(t *testing.T) {
	svc, gen := newDesk(t, corpus, scripted{})
	id := startConversation(t, svc)

	res, err := svc.HandleMessage(context.Background(), id, "Any news on ms-2024-9999?")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeManuscriptNotFound, res.Outcome)
	assert.True(t, res.ShouldEscalate)
	assert.Contains(t, res.EscalationReason, "MS-2024-9999")
	assert.Contains(t, res.Response, "MS-2024-9999")
	assert.Equal(t, 0.2, res.Confidence)
	assert.Equal(t, model.StateEscalated, res.State)
	require.NotNil(t, res.Context.ManuscriptID)
	assert.Equal(t, "MS-2024-9999", *res.Context.ManuscriptID)
	assert.Empty(t, gen.Calls())
}

func TestEscalationStaysReportedAfterValidID(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{})
	ctx := context.Background()
	id := startConversation(t, svc)

	first, err := svc.HandleMessage(ctx, id, "Any news on MS-2024-9999?")
	require.NoError(t, err)
	require.True(t, first.ShouldEscalate)

	res, err := svc.HandleMessage(ctx, id, "Sorry, the id is MS-2024-1234")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAnswered, res.Outcome)
	assert.True(t, res.ShouldEscalate)
	assert.Equal(t, first.EscalationReason, res.EscalationReason)
	assert.Contains(t, res.EscalationReason, "MS-2024-9999")
	assert.Equal(t, model.StateEscalated, res.State)
	assert.Equal(t, res.ShouldEscalate, res.Context.Escalated)
}

func TestSatisfactionClosesEscalatedConversation(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{})
	ctx := context.Background()
	id := startConversation(t, svc)

	_, err := svc.HandleMessage(ctx, id, "Any news on MS-2024-9999?")
	require.NoError(t, err)

	res, err := svc.HandleMessage(ctx, id, "Thank you, that helps, all set")
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, model.StateClosed, res.State)
	assert.True(t, res.ShouldEscalate)
	assert.Equal(t, policy.Default().Replies.Closing, res.Response)

	_, err = svc.HandleMessage(ctx, id, "Also, MS-2024-1234?")
	assert.ErrorIs(t, err, errx.ErrConversationClosed)
}

func TestGroundedAnswer(t *testing.T) {
	svc, gen := newDesk(t, corpus, scripted{})
	id := startConversation(t, svc)

	res, err := svc.HandleMessage(context.Background(), id, "What is the status of MS-2024-1234?")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAnswered, res.Outcome)
	assert.Equal(t, "Your manuscript is progressing.", res.Response)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.False(t, res.ShouldEscalate)
	require.NotNil(t, res.Classification)
	assert.Equal(t, model.CategoryStatusInquiry, res.Classification.Category)
	assert.Equal(t, "MS-2024-1234", res.Classification.ManuscriptID)
	assert.NotEmpty(t, res.SimilarCases)
	for _, c := range res.SimilarCases {
		assert.Equal(t, model.CategoryStatusInquiry, c.Category)
	}

	calls := gen.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].User, "Under Review")
	assert.Contains(t, calls[1].System, "REAL manuscript data")
	assert.Equal(t, responder.DefaultGroundedTemperature, calls[1].Temperature)

	// the id is remembered for the next turn
	res, err = svc.HandleMessage(context.Background(), id, "And how many reviewers are assigned?")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAnswered, res.Outcome)
}

func TestSatisfactionClosesConversation(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{
		classify: func(q string) string {
			if strings.HasPrefix(q, "Thanks") {
				return `{"category": "off_topic", "urgency": "low", "manuscript_id": null, "issue_summary": "gratitude"}`
			}
			return classification(model.CategoryStatusInquiry, model.UrgencyMedium)
		},
	})
	ctx := context.Background()
	id := startConversation(t, svc)

	_, err := svc.HandleMessage(ctx, id, "Status of MS-2024-1234 please")
	require.NoError(t, err)

	res, err := svc.HandleMessage(ctx, id, "Thanks, that helps!")
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, model.StateClosed, res.State)
	assert.False(t, res.ShouldEscalate)
	assert.Contains(t, res.Response, policy.Default().Replies.Closing)

	_, err = svc.HandleMessage(ctx, id, "One more thing about MS-2024-1234")
	assert.ErrorIs(t, err, errx.ErrConversationClosed)

	conv, err := svc.Conversation(ctx, id)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4, "rejected turn is not recorded")
}

func TestFrustrationEscalatesAndStaysEscalated(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{})
	ctx := context.Background()
	id := startConversation(t, svc)

	_, err := svc.HandleMessage(ctx, id, "Status of MS-2024-1234?")
	require.NoError(t, err)

	res, err := svc.HandleMessage(ctx, id, "This is unacceptable, I want a manager")
	require.NoError(t, err)
	assert.True(t, res.ShouldEscalate)
	assert.Equal(t, policy.ReasonFrustration, res.EscalationReason)
	assert.Equal(t, model.StateEscalated, res.State)

	res, err = svc.HandleMessage(ctx, id, "Could you check MS-2024-1234 again?")
	require.NoError(t, err)
	assert.Equal(t, model.StateEscalated, res.State)
	assert.True(t, res.Context.Escalated)
	assert.Equal(t, policy.ReasonFrustration, res.Context.EscalationReason)

	summary, err := svc.EscalationSummary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, policy.ReasonFrustration, summary.EscalationReason)
	assert.Equal(t, 6, summary.MessageCount)

	conv, err := svc.ReturnToBot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StateOpen, conv.Context.State())
}

func TestHighUrgencyGroundedEscalates(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{
		classify: func(string) string { return classification(model.CategoryReviewDelay, model.UrgencyHigh) },
	})
	ctx := context.Background()
	id := startConversation(t, svc)

	res, err := svc.HandleMessage(ctx, id, "MS-2024-1234 has been stuck in review for ten weeks")
	require.NoError(t, err)
	assert.True(t, res.ShouldEscalate)
	assert.Equal(t, policy.ReasonUrgentGrounded, res.EscalationReason)
}

func TestOffTopicRedirectsEscalatesAndCloses(t *testing.T) {
	svc, gen := newDesk(t, corpus, scripted{})
	id := startConversation(t, svc)

	res, err := svc.HandleMessage(context.Background(), id, "MS-2024-1234 aside, what is the weather tomorrow?")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeOffTopic, res.Outcome)
	assert.Equal(t, 0.0, res.Confidence)
	assert.True(t, res.ShouldEscalate)
	assert.Equal(t, policy.ReasonOffTopic, res.EscalationReason)
	assert.True(t, res.Closed)
	assert.Equal(t, model.StateClosed, res.State)
	assert.Len(t, gen.Calls(), 1, "classifier only")
}

func TestModelFailureSurfacesError(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{
		respond: func(string) (string, error) { return "", errx.ModelCall(errors.New("503 service unavailable")) },
	})
	id := startConversation(t, svc)

	res, err := svc.HandleMessage(context.Background(), id, "Status of MS-2024-1234?")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeModelFailure, res.Outcome)
	assert.Equal(t, 0.0, res.Confidence)
	assert.True(t, res.ShouldEscalate)
	assert.Contains(t, res.Response, "Error calling language model")
	assert.Contains(t, res.Response, "503 service unavailable")
}

func TestAskWithEmptyCorpusAndUnparseableClassifier(t *testing.T) {
	svc, _ := newDesk(t, nil, scripted{
		classify: func(string) string { return "I think this is about status" },
	})

	res, err := svc.Ask(context.Background(), "MS-2024-1234 status?")
	require.NoError(t, err)
	require.NotNil(t, res.Classification)
	assert.Equal(t, model.CategoryStatusInquiry, res.Classification.Category)
	assert.Equal(t, model.UrgencyMedium, res.Classification.Urgency)
	assert.Empty(t, res.SimilarCases)
	assert.NotNil(t, res.SimilarCases)
	assert.LessOrEqual(t, res.Confidence, 0.6)
	assert.False(t, res.ShouldEscalate)
	assert.Equal(t, model.OutcomeAnswered, res.Outcome)
}

func TestAskDoesNotRequireManuscriptID(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{})
	res, err := svc.Ask(context.Background(), "How long does peer review usually take?")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAnswered, res.Outcome)
}

func TestAskBatchKeepsOrder(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{})
	queries := []string{
		"What is the status of MS-2024-1234?",
		"My review is taking too long",
		"What is the weather today?",
	}
	sum, err := svc.AskBatch(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, sum.Results, 3)
	for i, q := range queries {
		assert.Equal(t, q, sum.Results[i].Query)
	}
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Escalations)
	assert.InDelta(t, (sum.Results[0].Confidence+sum.Results[1].Confidence)/3, sum.AverageConfidence, 1e-9)

	_, err = svc.AskBatch(context.Background(), nil)
	assert.ErrorIs(t, err, errx.ErrInvalidInput)
}

func TestRejectsEmptyAndUnknown(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{})
	id := startConversation(t, svc)

	_, err := svc.HandleMessage(context.Background(), id, "   ")
	assert.ErrorIs(t, err, errx.ErrInvalidInput)

	_, err = svc.HandleMessage(context.Background(), "CONV_NOPE0000", "hello")
	assert.ErrorIs(t, err, errx.ErrConversationNotFound)
}

func TestConcurrentTurnsOnOneConversation(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{})
	ctx := context.Background()
	id := startConversation(t, svc)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HandleMessage(ctx, id, "Status of MS-2024-1234?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	conv, err := svc.Conversation(ctx, id)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2*n)
	for i, m := range conv.Messages {
		want := model.RoleCustomer
		if i%2 == 1 {
			want = model.RoleBot
		}
		assert.Equal(t, want, m.Role, "message %d", i)
	}
}

func TestStats(t *testing.T) {
	svc, _ := newDesk(t, corpus, scripted{})
	stats := svc.Stats()
	assert.Equal(t, 3, stats.KnowledgeBase.Total)
	assert.Equal(t, 1, stats.Manuscripts)
	assert.Equal(t, model.Categories(), stats.Categories)
	assert.Equal(t, "lexical", stats.RetrievalMode)
	assert.Equal(t, "classifier-test", stats.ClassifierModel)
}
