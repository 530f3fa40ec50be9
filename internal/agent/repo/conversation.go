package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

// ConversationExistsMessage is returned when Create hits an existing id.
const ConversationExistsMessage = "conversation already exists"

// RedisConversationRepository keeps the append-only message log in a Redis
// list and the context record in a JSON string next to it.
type RedisConversationRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

type conversationMeta struct {
	ID          string                    `json:"conversation_id"`
	Context     model.ConversationContext `json:"context"`
	CreatedAt   time.Time                 `json:"created_at"`
	LastUpdated time.Time                 `json:"last_updated"`
}

func NewRedisConversationRepository(rdb redis.Cmdable, ttl time.Duration) *RedisConversationRepository {
	return &RedisConversationRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisConversationRepository) messagesKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:messages", conversationID)
}

func (r *RedisConversationRepository) metaKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:meta", conversationID)
}

func (r *RedisConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	b, err := r.marshalMeta(conv)
	if err != nil {
		return err
	}
	key := r.metaKey(conv.ID)
	ok, err := r.rdb.SetNX(ctx, key, b, r.ttl).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to create conversation in redis")
		return errx.WrapRedis(err)
	}
	if !ok {
		return errx.New(fmt.Errorf("conversation %s already exists", conv.ID), http.StatusConflict, ConversationExistsMessage)
	}
	if len(conv.Messages) > 0 {
		return r.Save(ctx, conv)
	}
	conv.MarkPersisted(0)
	return nil
}

func (r *RedisConversationRepository) Load(ctx context.Context, conversationID string) (*model.Conversation, error) {
	key := r.metaKey(conversationID)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errx.ConversationNotFound(conversationID)
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation from redis")
		return nil, errx.WrapRedis(err)
	}
	var meta conversationMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to unmarshal conversation meta")
		return nil, fmt.Errorf("unmarshal conversation meta: %w", err)
	}

	listKey := r.messagesKey(conversationID)
	rows, err := r.rdb.LRange(ctx, listKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("key", listKey).Msg("failed to load conversation history from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]model.Message, 0, len(rows))
	for i, s := range rows {
		var m model.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("conversationID", conversationID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}

	conv := &model.Conversation{
		ID:          meta.ID,
		Messages:    msgs,
		Context:     meta.Context,
		CreatedAt:   meta.CreatedAt,
		LastUpdated: meta.LastUpdated,
	}
	conv.MarkPersisted(len(msgs))
	return conv, nil
}

// Save appends only the messages added since the last Load/Save and rewrites
// the context record, in one MULTI/EXEC.
func (r *RedisConversationRepository) Save(ctx context.Context, conv *model.Conversation) error {
	meta, err := r.marshalMeta(conv)
	if err != nil {
		return err
	}
	from := conv.Persisted()
	if from > len(conv.Messages) {
		from = 0
	}
	pending := make([]any, 0, len(conv.Messages)-from)
	for _, m := range conv.Messages[from:] {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("conversationID", conv.ID).Msg("failed to marshal message")
			return fmt.Errorf("marshal message: %w", err)
		}
		pending = append(pending, b)
	}

	listKey := r.messagesKey(conv.ID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(pending) > 0 {
			pipe.RPush(ctx, listKey, pending...)
		}
		pipe.Set(ctx, r.metaKey(conv.ID), meta, r.ttl)
		// extend TTL on touch
		if r.ttl > 0 {
			pipe.Expire(ctx, listKey, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("conversationID", conv.ID).Msg("failed to save conversation to redis")
		return errx.WrapRedis(err)
	}
	conv.MarkPersisted(len(conv.Messages))
	return nil
}

func (r *RedisConversationRepository) Delete(ctx context.Context, conversationID string) error {
	if err := r.rdb.Del(ctx, r.messagesKey(conversationID), r.metaKey(conversationID)).Err(); err != nil {
		logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to delete conversation from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisConversationRepository) marshalMeta(conv *model.Conversation) ([]byte, error) {
	b, err := json.Marshal(conversationMeta{
		ID:          conv.ID,
		Context:     conv.Context,
		CreatedAt:   conv.CreatedAt,
		LastUpdated: conv.LastUpdated,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal conversation meta: %w", err)
	}
	return b, nil
}

var _ model.ConversationRepository = (*RedisConversationRepository)(nil)
