package models

import (
	"context"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"
)

// NewOllama creates a ChatModel for a local or remote Ollama server. Ollama
// needs no credential.
func NewOllama(ctx context.Context, p Provider) (model.ToolCallingChatModel, error) {
	cfg := &einoollama.ChatModelConfig{
		BaseURL: p.BaseURL,
		Model:   p.Model,
		Timeout: p.Timeout,
	}
	if p.MaxTokens > 0 {
		cfg.Options = &einoollama.Options{NumPredict: p.MaxTokens}
	}
	return einoollama.NewChatModel(ctx, cfg)
}
