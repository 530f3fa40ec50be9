package conversations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

const DefaultSummaryWindow = 10

// Manager serialises turns per conversation. Every mutation runs under the
// conversation's own mutex as load -> fn -> save, so turns of one
// conversation apply in arrival order while different conversations proceed
// in parallel.
type Manager struct {
	conversationRepo model.ConversationRepository
	summaryWindow    int
	locks            sync.Map // conversation id -> *sync.Mutex
	now              func() time.Time
}

func NewManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *Manager {
	m := &Manager{
		conversationRepo: conversationRepo,
		summaryWindow:    config.SummaryWindow,
		now:              time.Now,
	}
	if m.summaryWindow <= 0 {
		m.summaryWindow = DefaultSummaryWindow
	}
	return m
}

// Now is the clock used for message and context timestamps.
func (m *Manager) Now() time.Time {
	return m.now()
}

// SetClock replaces the clock. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Start creates and stores an empty open conversation.
func (m *Manager) Start(ctx context.Context) (*model.Conversation, error) {
	conv := model.NewConversation("", m.now())
	if err := m.conversationRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	logx.Debug().Str("conversation_id", conv.ID).Msg("Conversation started")
	return conv.Clone(), nil
}

// Get returns a snapshot of the conversation.
func (m *Manager) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	mu := m.lock(conversationID)
	mu.Lock()
	defer mu.Unlock()
	conv, err := m.conversationRepo.Load(ctx, conversationID)
	if err != nil {
		m.forget(conversationID, err)
		return nil, err
	}
	return conv, nil
}

// Update loads the conversation, applies fn and saves the result, all under
// the conversation lock. Nothing is saved when fn fails.
func (m *Manager) Update(ctx context.Context, conversationID string, fn func(conv *model.Conversation) error) (*model.Conversation, error) {
	mu := m.lock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := m.conversationRepo.Load(ctx, conversationID)
	if err != nil {
		m.forget(conversationID, err)
		return nil, err
	}
	if err := fn(conv); err != nil {
		return nil, err
	}
	if err := m.conversationRepo.Save(ctx, conv); err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Error saving conversation")
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return conv.Clone(), nil
}

// Delete drops the conversation and its lock.
func (m *Manager) Delete(ctx context.Context, conversationID string) error {
	mu := m.lock(conversationID)
	mu.Lock()
	defer mu.Unlock()
	if err := m.conversationRepo.Delete(ctx, conversationID); err != nil {
		return err
	}
	m.locks.Delete(conversationID)
	return nil
}

// EscalationSummary returns the handoff packet with the configured summary window.
func (m *Manager) EscalationSummary(ctx context.Context, conversationID string) (model.EscalationSummary, error) {
	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return model.EscalationSummary{}, err
	}
	return conv.EscalationSummary(m.summaryWindow), nil
}

func (m *Manager) lock(conversationID string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(conversationID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// forget drops the lock of an id the repository does not know, so lookups of
// unknown ids do not grow the lock table.
func (m *Manager) forget(conversationID string, err error) {
	if errors.Is(err, errx.ErrConversationNotFound) {
		m.locks.Delete(conversationID)
	}
}
