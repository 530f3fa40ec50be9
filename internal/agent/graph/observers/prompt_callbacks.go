package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

// newPromptHandler logs prompt variables and the rendered messages.
func newPromptHandler() *callbackHelper.PromptCallbackHandler {
	return &callbackHelper.PromptCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *prompt.CallbackInput) context.Context {
			ev := logx.Debug().Str("prompt", info.Name)
			if input != nil {
				keys := make([]string, 0, len(input.Variables))
				for k := range input.Variables {
					keys = append(keys, k)
				}
				ev = ev.Strs("variables", keys)
			}
			ev.Msg("Prompt render started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			ev := logx.Debug().Str("prompt", info.Name)
			if output != nil {
				ev = ev.Int("messages", len(output.Result))
				if len(output.Result) > 0 && output.Result[0] != nil {
					ev = ev.Str("rendered", truncate(output.Result[0].Content))
				}
			}
			ev.Msg("Prompt rendered")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("prompt", info.Name).Msg("Prompt render failed")
			return ctx
		},
	}
}
