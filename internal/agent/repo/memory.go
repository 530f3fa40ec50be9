package repo

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
)

// MemoryConversationRepository is the default, process-local store.
type MemoryConversationRepository struct {
	mu    sync.RWMutex
	convs map[string]*model.Conversation
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{convs: make(map[string]*model.Conversation)}
}

func (r *MemoryConversationRepository) Create(_ context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[conv.ID]; ok {
		return errx.New(fmt.Errorf("conversation %s already exists", conv.ID), http.StatusConflict, ConversationExistsMessage)
	}
	conv.MarkPersisted(len(conv.Messages))
	r.convs[conv.ID] = conv.Clone()
	return nil
}

func (r *MemoryConversationRepository) Load(_ context.Context, conversationID string) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.convs[conversationID]
	if !ok {
		return nil, errx.ConversationNotFound(conversationID)
	}
	return conv.Clone(), nil
}

func (r *MemoryConversationRepository) Save(_ context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv.MarkPersisted(len(conv.Messages))
	r.convs[conv.ID] = conv.Clone()
	return nil
}

func (r *MemoryConversationRepository) Delete(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.convs, conversationID)
	return nil
}

// Len returns the number of stored conversations.
func (r *MemoryConversationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.convs)
}

var _ model.ConversationRepository = (*MemoryConversationRepository)(nil)
