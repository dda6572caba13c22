package engine

import (
	"context"
	"log/slog"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	ub "github.com/cloudwego/eino/utils/callbacks"
)

// NewTraceHandler returns an eino callback handler that logs every model
// call and tool invocation at debug level.
func NewTraceHandler() callbacks.Handler {
	modelHandler := &ub.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *model.CallbackInput) context.Context {
			slog.DebugContext(ctx, "llm request", "model", info.Name, "messages", len(input.Messages))
			return ctx
		},
		OnEnd: func(ctx context.Context, info *callbacks.RunInfo, output *model.CallbackOutput) context.Context {
			attrs := []any{"model", info.Name}
			if output.Message != nil && output.Message.ResponseMeta != nil && output.Message.ResponseMeta.Usage != nil {
				usage := output.Message.ResponseMeta.Usage
				attrs = append(attrs, "tokens_in", usage.PromptTokens, "tokens_out", usage.CompletionTokens)
			}
			slog.DebugContext(ctx, "llm response", attrs...)
			return ctx
		},
		OnError: func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			slog.DebugContext(ctx, "llm error", "model", info.Name, "error", err)
			return ctx
		},
	}

	toolHandler := &ub.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *tool.CallbackInput) context.Context {
			slog.DebugContext(ctx, "tool call", "tool", info.Name, "arguments", truncate(input.ArgumentsInJSON, 1000))
			return ctx
		},
		OnEnd: func(ctx context.Context, info *callbacks.RunInfo, output *tool.CallbackOutput) context.Context {
			slog.DebugContext(ctx, "tool result", "tool", info.Name, "result", truncate(output.Response, 1000))
			return ctx
		},
		OnError: func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			slog.DebugContext(ctx, "tool error", "tool", info.Name, "error", err)
			return ctx
		},
	}

	return ub.NewHandlerHelper().
		ChatModel(modelHandler).
		Tool(toolHandler).
		Handler()
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
