package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/manuscript-desk-poc/server/internal/core/error"
)

type fakeChat struct {
	reply   *schema.Message
	err     error
	delay   time.Duration
	gotMsgs []*schema.Message
	gotTemp *float32
}

func (f *fakeChat) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.gotMsgs = input
	f.gotTemp = einomodel.GetCommonOptions(nil, opts...).Temperature
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeChat) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestChatGeneratorBuildsMessages(t *testing.T) {
	chat := &fakeChat{reply: &schema.Message{
		Role:    schema.Assistant,
		Content: "hello",
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
		},
	}}
	g := NewChatGenerator(chat, "gemini-2.5-flash", time.Second, nil)

	out, err := g.Generate(context.Background(), "user text", "system text", 0.3)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	require.Len(t, chat.gotMsgs, 2)
	assert.Equal(t, schema.System, chat.gotMsgs[0].Role)
	assert.Equal(t, "user text", chat.gotMsgs[1].Content)
	require.NotNil(t, chat.gotTemp)
	assert.InDelta(t, 0.3, *chat.gotTemp, 1e-6)
}

func TestChatGeneratorOmitsEmptySystemPrompt(t *testing.T) {
	chat := &fakeChat{reply: schema.AssistantMessage("ok", nil)}
	g := NewChatGenerator(chat, "m", time.Second, nil)

	_, err := g.Generate(context.Background(), "user", "  ", 0.5)
	require.NoError(t, err)
	require.Len(t, chat.gotMsgs, 1)
	assert.Equal(t, schema.User, chat.gotMsgs[0].Role)
}

func TestChatGeneratorErrors(t *testing.T) {
	t.Run("call failure", func(t *testing.T) {
		g := NewChatGenerator(&fakeChat{err: errors.New("401 unauthorized")}, "m", time.Second, nil)
		_, err := g.Generate(context.Background(), "u", "s", 0.5)
		require.Error(t, err)
		assert.ErrorIs(t, err, errx.ErrModelCall)
		assert.NotErrorIs(t, err, errx.ErrModelTimeout)
		assert.Contains(t, err.Error(), "401 unauthorized")
	})

	t.Run("timeout", func(t *testing.T) {
		g := NewChatGenerator(&fakeChat{reply: schema.AssistantMessage("late", nil), delay: time.Second}, "m", 20*time.Millisecond, nil)
		_, err := g.Generate(context.Background(), "u", "s", 0.5)
		require.Error(t, err)
		assert.ErrorIs(t, err, errx.ErrModelTimeout)
		assert.ErrorIs(t, err, errx.ErrModelCall)
	})

	t.Run("empty reply", func(t *testing.T) {
		g := NewChatGenerator(&fakeChat{reply: schema.AssistantMessage("  ", nil)}, "m", time.Second, nil)
		_, err := g.Generate(context.Background(), "u", "s", 0.5)
		assert.ErrorIs(t, err, errx.ErrModelCall)
	})
}
