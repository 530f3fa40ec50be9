package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	// Create stores a new conversation. It fails if the id already exists.
	Create(ctx context.Context, conv *Conversation) error

	// Load returns the conversation or an errx ConversationNotFound error.
	Load(ctx context.Context, conversationID string) (*Conversation, error)

	// Save persists messages appended since the last save and the current context.
	Save(ctx context.Context, conv *Conversation) error

	// Delete removes the conversation and its history.
	Delete(ctx context.Context, conversationID string) error
}

// Role identifies who wrote a message.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleBot      Role = "bot"
)

// MessageMetadata is attached to bot messages.
type MessageMetadata struct {
	Confidence     float64         `json:"confidence"`
	Classification *Classification `json:"classification,omitempty"`
	RetrievedCount int             `json:"retrieved_count"`
	ScoringVersion string          `json:"scoring_version,omitempty"`
	Outcome        TurnOutcome     `json:"outcome,omitempty"`
}

// Message is an append-only entry of the conversation log.
type Message struct {
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// State is the externally visible conversation state.
type State string

const (
	StateOpen      State = "OPEN"
	StateEscalated State = "ESCALATED"
	StateClosed    State = "CLOSED"
)

// ConversationContext is the mutable record attached 1:1 to a conversation.
// Nil pointers mean "not known yet"; they are only ever overwritten by non-nil values.
// Escalated and Closed only move from false to true during normal message flow.
type ConversationContext struct {
	ManuscriptID     *string   `json:"manuscript_id"`
	Category         *Category `json:"category"`
	Urgency          *Urgency  `json:"urgency"`
	CustomerName     *string   `json:"customer_name"`
	Escalated        bool      `json:"escalated"`
	EscalationReason string    `json:"escalation_reason,omitempty"`
	Closed           bool      `json:"closed"`
}

// ContextUpdate carries optional overwrites for ConversationContext.
type ContextUpdate struct {
	ManuscriptID *string
	Category     *Category
	Urgency      *Urgency
	CustomerName *string
}

// Merge applies every non-nil field of u.
func (c *ConversationContext) Merge(u ContextUpdate) {
	if u.ManuscriptID != nil {
		c.ManuscriptID = ptr(*u.ManuscriptID)
	}
	if u.Category != nil {
		c.Category = ptr(*u.Category)
	}
	if u.Urgency != nil {
		c.Urgency = ptr(*u.Urgency)
	}
	if u.CustomerName != nil {
		c.CustomerName = ptr(*u.CustomerName)
	}
}

// State derives the conversation state from the orthogonal flags.
func (c ConversationContext) State() State {
	switch {
	case c.Closed:
		return StateClosed
	case c.Escalated:
		return StateEscalated
	default:
		return StateOpen
	}
}

func (c ConversationContext) clone() ConversationContext {
	out := c
	if c.ManuscriptID != nil {
		out.ManuscriptID = ptr(*c.ManuscriptID)
	}
	if c.Category != nil {
		out.Category = ptr(*c.Category)
	}
	if c.Urgency != nil {
		out.Urgency = ptr(*c.Urgency)
	}
	if c.CustomerName != nil {
		out.CustomerName = ptr(*c.CustomerName)
	}
	return out
}

// Conversation is the message log plus context for one customer.
type Conversation struct {
	ID          string              `json:"conversation_id"`
	Messages    []Message           `json:"messages"`
	Context     ConversationContext `json:"context"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUpdated time.Time           `json:"last_updated"`

	// persisted is the number of messages already written by the repository.
	persisted int
}

// NewConversationID returns an id of the form CONV_1A2B3C4D.
func NewConversationID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CONV_" + strings.ToUpper(raw[:8])
}

// NewConversation creates an empty open conversation. An empty id is generated.
func NewConversation(id string, now time.Time) *Conversation {
	if id == "" {
		id = NewConversationID()
	}
	return &Conversation{
		ID:          id,
		Messages:    []Message{},
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// AddMessage appends to the log and bumps LastUpdated.
func (c *Conversation) AddMessage(role Role, content string, meta *MessageMetadata, now time.Time) Message {
	msg := Message{Role: role, Content: content, Timestamp: now, Metadata: meta}
	c.Messages = append(c.Messages, msg)
	c.LastUpdated = now
	return msg
}

// UpdateContext merges u into the context and bumps LastUpdated.
func (c *Conversation) UpdateContext(u ContextUpdate, now time.Time) {
	c.Context.Merge(u)
	c.LastUpdated = now
}

// MarkEscalated flags the conversation for a human. The first reason is kept.
func (c *Conversation) MarkEscalated(reason string, now time.Time) bool {
	if c.Context.Escalated {
		return false
	}
	c.Context.Escalated = true
	c.Context.EscalationReason = reason
	c.LastUpdated = now
	return true
}

// MarkClosed stops the conversation from accepting customer turns.
func (c *Conversation) MarkClosed(now time.Time) {
	if c.Context.Closed {
		return
	}
	c.Context.Closed = true
	c.LastUpdated = now
}

// ReturnToBot hands an escalated conversation back to automated handling.
// It is the only path that clears the escalation flag.
func (c *Conversation) ReturnToBot(now time.Time) bool {
	if !c.Context.Escalated {
		return false
	}
	c.Context.Escalated = false
	c.Context.EscalationReason = ""
	c.LastUpdated = now
	return true
}

// History returns the last n messages (all when n <= 0).
func (c *Conversation) History(n int) []Message {
	msgs := c.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// CustomerMessages returns the last n customer messages, oldest first.
func (c *Conversation) CustomerMessages(n int) []Message {
	var out []Message
	for i := len(c.Messages) - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		if c.Messages[i].Role == RoleCustomer {
			out = append(out, c.Messages[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ContextString formats known context and recent history for prompts.
func (c *Conversation) ContextString(historyWindow int) string {
	var parts []string
	if c.Context.ManuscriptID != nil {
		parts = append(parts, "Manuscript ID: "+*c.Context.ManuscriptID)
	}
	if c.Context.Category != nil {
		parts = append(parts, "Issue Category: "+string(*c.Context.Category))
	}
	if c.Context.Urgency != nil {
		parts = append(parts, "Urgency Level: "+string(*c.Context.Urgency))
	}
	if c.Context.CustomerName != nil {
		parts = append(parts, "Customer Name: "+*c.Context.CustomerName)
	}
	if len(c.Messages) > 0 {
		parts = append(parts, "\nConversation History:")
		for _, m := range c.History(historyWindow) {
			label := "Bot"
			if m.Role == RoleCustomer {
				label = "Customer"
			}
			parts = append(parts, fmt.Sprintf("%s: %s", label, m.Content))
		}
	}
	if len(parts) == 0 {
		return "No prior context"
	}
	return strings.Join(parts, "\n")
}

// EscalationSummary is the handoff packet for a human agent.
type EscalationSummary struct {
	ConversationID      string              `json:"conversation_id"`
	State               State               `json:"state"`
	ManuscriptID        *string             `json:"manuscript_id"`
	Category            *Category           `json:"category"`
	Urgency             *Urgency            `json:"urgency"`
	EscalationReason    string              `json:"escalation_reason,omitempty"`
	MessageCount        int                 `json:"message_count"`
	ConversationHistory []Message           `json:"conversation_history"`
	Context             ConversationContext `json:"context"`
	CreatedAt           time.Time           `json:"created_at"`
	LastUpdated         time.Time           `json:"last_updated"`
}

// EscalationSummary returns the handoff packet with the last n messages.
func (c *Conversation) EscalationSummary(n int) EscalationSummary {
	ctx := c.Context.clone()
	return EscalationSummary{
		ConversationID:      c.ID,
		State:               ctx.State(),
		ManuscriptID:        ctx.ManuscriptID,
		Category:            ctx.Category,
		Urgency:             ctx.Urgency,
		EscalationReason:    ctx.EscalationReason,
		MessageCount:        len(c.Messages),
		ConversationHistory: c.History(n),
		Context:             ctx,
		CreatedAt:           c.CreatedAt,
		LastUpdated:         c.LastUpdated,
	}
}

// Clone returns a deep copy suitable for handing across goroutines.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = c.History(0)
	out.Context = c.Context.clone()
	return &out
}

// Persisted returns how many messages the repository already stored.
func (c *Conversation) Persisted() int {
	return c.persisted
}

// MarkPersisted records that the first n messages are stored.
func (c *Conversation) MarkPersisted(n int) {
	c.persisted = n
}

func ptr[T any](v T) *T {
	return &v
}
