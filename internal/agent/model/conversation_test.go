package model

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)

func TestNewConversationID(t *testing.T) {
	id := NewConversationID()
	assert.Regexp(t, regexp.MustCompile(`^CONV_[0-9A-F]{8}$`), id)
	assert.NotEqual(t, id, NewConversationID())
}

func TestMergeNeverClears(t *testing.T) {
	conv := NewConversation("", t0)
	conv.UpdateContext(ContextUpdate{
		ManuscriptID: ptr("MS-2024-1234"),
		Category:     ptr(CategoryReviewDelay),
		Urgency:      ptr(UrgencyMedium),
	}, t0)

	conv.UpdateContext(ContextUpdate{Urgency: ptr(UrgencyHigh)}, t0.Add(time.Minute))

	require.NotNil(t, conv.Context.ManuscriptID)
	assert.Equal(t, "MS-2024-1234", *conv.Context.ManuscriptID)
	assert.Equal(t, CategoryReviewDelay, *conv.Context.Category)
	assert.Equal(t, UrgencyHigh, *conv.Context.Urgency)
	assert.Equal(t, t0.Add(time.Minute), conv.LastUpdated)
}

func TestEscalationIsStickyAndKeepsFirstReason(t *testing.T) {
	conv := NewConversation("CONV_TEST0001", t0)
	assert.Equal(t, StateOpen, conv.Context.State())

	assert.True(t, conv.MarkEscalated("Low confidence response", t0))
	assert.False(t, conv.MarkEscalated("Customer frustration detected", t0))
	assert.Equal(t, "Low confidence response", conv.Context.EscalationReason)
	assert.Equal(t, StateEscalated, conv.Context.State())

	conv.MarkClosed(t0)
	assert.Equal(t, StateClosed, conv.Context.State())
	assert.True(t, conv.Context.Escalated)
}

func TestReturnToBotClearsEscalation(t *testing.T) {
	conv := NewConversation("", t0)
	assert.False(t, conv.ReturnToBot(t0))

	conv.MarkEscalated("Manuscript not found", t0)
	assert.True(t, conv.ReturnToBot(t0.Add(time.Second)))
	assert.False(t, conv.Context.Escalated)
	assert.Empty(t, conv.Context.EscalationReason)
	assert.Equal(t, StateOpen, conv.Context.State())
}

func TestCustomerMessagesNewestWindow(t *testing.T) {
	conv := NewConversation("", t0)
	conv.AddMessage(RoleCustomer, "one", nil, t0)
	conv.AddMessage(RoleBot, "reply", nil, t0)
	conv.AddMessage(RoleCustomer, "two", nil, t0)
	conv.AddMessage(RoleCustomer, "three", nil, t0)
	conv.AddMessage(RoleBot, "reply", nil, t0)
	conv.AddMessage(RoleCustomer, "four", nil, t0)

	got := conv.CustomerMessages(3)
	require.Len(t, got, 3)
	assert.Equal(t, "two", got[0].Content)
	assert.Equal(t, "four", got[2].Content)
	assert.Len(t, conv.History(2), 2)
	assert.Len(t, conv.History(0), 6)
}

func TestContextString(t *testing.T) {
	conv := NewConversation("", t0)
	assert.Equal(t, "No prior context", conv.ContextString(5))

	conv.AddMessage(RoleCustomer, "Where is MS-2024-1234?", nil, t0)
	conv.UpdateContext(ContextUpdate{ManuscriptID: ptr("MS-2024-1234")}, t0)
	conv.AddMessage(RoleBot, "It is under review.", nil, t0)

	s := conv.ContextString(5)
	assert.Contains(t, s, "Manuscript ID: MS-2024-1234")
	assert.Contains(t, s, "Customer: Where is MS-2024-1234?")
	assert.Contains(t, s, "Bot: It is under review.")
}

func TestCloneIsDeep(t *testing.T) {
	conv := NewConversation("", t0)
	conv.UpdateContext(ContextUpdate{ManuscriptID: ptr("MS-2024-0001")}, t0)
	conv.AddMessage(RoleCustomer, "hi", nil, t0)

	cp := conv.Clone()
	*cp.Context.ManuscriptID = "MS-2024-9999"
	cp.Messages[0].Content = "changed"

	assert.Equal(t, "MS-2024-0001", *conv.Context.ManuscriptID)
	assert.Equal(t, "hi", conv.Messages[0].Content)
}

func TestEscalationSummary(t *testing.T) {
	conv := NewConversation("CONV_ABCDEF12", t0)
	for i := 0; i < 12; i++ {
		conv.AddMessage(RoleCustomer, "msg", nil, t0)
	}
	conv.MarkEscalated("Customer frustration detected", t0)

	s := conv.EscalationSummary(10)
	assert.Equal(t, "CONV_ABCDEF12", s.ConversationID)
	assert.Equal(t, 12, s.MessageCount)
	assert.Len(t, s.ConversationHistory, 10)
	assert.Equal(t, StateEscalated, s.State)
	assert.Equal(t, "Customer frustration detected", s.EscalationReason)
}

func TestCategoryAndUrgency(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("weather").Valid())
	assert.True(t, UrgencyHigh.Valid())
	assert.False(t, Urgency("urgent").Valid())
}

func TestManuscriptRecordFormatDisclosesGaps(t *testing.T) {
	rec := ManuscriptRecord{ManuscriptID: "MS-2024-1234", CurrentStatus: "Under Review", ReviewerCount: 2}
	out := rec.Format()
	assert.Contains(t, out, "Current Status: Under Review")
	assert.Contains(t, out, "Decision Date: Not available")
	assert.Contains(t, out, "Reviewers Assigned: 2")
}
