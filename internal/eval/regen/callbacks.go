package regen

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/ensemble-chat/server/pkg/logger"
)

// newModelUsageCallbacks builds a typed handler that logs model call
// boundaries and token usage around each regeneration.
func newModelUsageCallbacks() einocb.Handler {
	handler := &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *einomodel.CallbackInput) context.Context {
			messages := 0
			if input != nil {
				messages = len(input.Messages)
			}
			logx.Debug().
				Str("component", info.Name).
				Int("messages", messages).
				Msg("character model call start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *einomodel.CallbackOutput) context.Context {
			ev := logx.Debug().Str("component", info.Name)
			if output != nil && output.TokenUsage != nil {
				ev = ev.
					Int("promptTokens", output.TokenUsage.PromptTokens).
					Int("completionTokens", output.TokenUsage.CompletionTokens)
			}
			ev.Msg("character model call end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("component", info.Name).Msg("character model call error")
			return ctx
		},
	}

	return callbackHelper.NewHandlerHelper().ChatModel(handler).Handler()
}
