package prompts

import (
	"context"
	"sync"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
)

var promptCfg = model.ResponsePromptConfig{JournalName: "the Journal of Tests", SupportDesk: "editorial@journal.test"}

func TestRenderClassifier(t *testing.T) {
	out, err := RenderClassifier(context.Background(), promptCfg, "Where is MS-2024-1234?")
	require.NoError(t, err)

	assert.Contains(t, out.System, "status_inquiry, review_delay, decision_timeline, revision_submission, withdrawal_request")
	assert.Contains(t, out.System, "low, medium, high")
	assert.Contains(t, out.System, `"issue_summary"`)
	assert.Equal(t, "Customer Query: Where is MS-2024-1234?", out.User)
}

func TestRenderResponseGeneral(t *testing.T) {
	cases := make([]model.RetrievedCase, 5)
	for i := range cases {
		cases[i] = model.RetrievedCase{Case: model.Case{ID: "C", Query: "q", Resolution: "r", Tags: []string{"expedited"}}}
	}
	out, err := RenderResponse(context.Background(), promptCfg, ResponseInput{
		Query:          "Review is slow",
		Classification: model.Classification{Category: model.CategoryReviewDelay, Urgency: model.UrgencyHigh},
		Cases:          cases,
	})
	require.NoError(t, err)

	assert.NotContains(t, out.System, "CRITICAL RULE")
	assert.Contains(t, out.System, "editorial@journal.test")
	assert.Contains(t, out.User, "- Manuscript ID: Not specified")
	assert.Contains(t, out.User, "Case 3:")
	assert.NotContains(t, out.User, "Case 4:")
	assert.Contains(t, out.User, "Tags: expedited")
	assert.Contains(t, out.User, "not authoritative")
}

func TestRenderResponseGrounded(t *testing.T) {
	rec := &model.ManuscriptRecord{ManuscriptID: "MS-2024-1234", CurrentStatus: "Under Review"}
	out, err := RenderResponse(context.Background(), promptCfg, ResponseInput{
		Query:               "Any update?",
		Classification:      model.Classification{Category: model.CategoryStatusInquiry, Urgency: model.UrgencyMedium},
		ConversationContext: "Manuscript ID: MS-2024-1234",
		Manuscript:          rec,
	})
	require.NoError(t, err)

	assert.Contains(t, out.System, "CRITICAL RULE")
	assert.Contains(t, out.User, "REAL MANUSCRIPT DATA")
	assert.Contains(t, out.User, "Current Status: Under Review")
	assert.Contains(t, out.User, "Conversation Context:")
	assert.Contains(t, out.User, "Similar Cases: None found.")
	assert.Contains(t, out.User, "based ONLY on the real manuscript data")
}

func TestPromptCallbacksSeeRenderName(t *testing.T) {
	var (
		mu    sync.Mutex
		names []string
	)
	handler := callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackInput) context.Context {
			if info != nil && info.Component == components.ComponentOfPrompt {
				mu.Lock()
				names = append(names, info.Name)
				mu.Unlock()
			}
			return ctx
		}).
		Build()
	// a node-level run info, as a graph lambda would carry
	ctx := callbacks.InitCallbacks(context.Background(), &callbacks.RunInfo{Name: "Classifier"}, handler)

	_, err := RenderClassifier(ctx, promptCfg, "Where is MS-2024-1234?")
	require.NoError(t, err)
	_, err = RenderResponse(ctx, promptCfg, ResponseInput{
		Query:          "Any update?",
		Classification: model.Classification{Category: model.CategoryStatusInquiry, Urgency: model.UrgencyMedium},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{ClassifierPromptName, ResponsePromptName}, names)
}
