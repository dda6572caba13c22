package models

import (
	"context"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// NewOpenAICompatible creates a ChatModel for any provider speaking the
// OpenAI chat completions API (openai, mistral). An empty BaseURL targets
// api.openai.com.
func NewOpenAICompatible(ctx context.Context, p Provider, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	cfg := &einoopenai.ChatModelConfig{
		APIKey:  auth.Value,
		Model:   p.Model,
		BaseURL: p.BaseURL,
		Timeout: p.Timeout,
	}
	if p.MaxTokens > 0 {
		n := p.MaxTokens
		cfg.MaxCompletionTokens = &n
	}
	return einoopenai.NewChatModel(ctx, cfg)
}
