package models

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cloudwego/eino/schema"
)

func TestResolveAuth_DirectAPIKey(t *testing.T) {
	auth, err := ResolveAuth(Provider{Driver: "anthropic", APIKey: "  sk-ant-test-123 "})
	if err != nil {
		t.Fatalf("ResolveAuth: %v", err)
	}
	if auth.Value != "sk-ant-test-123" {
		t.Fatalf("expected value %q, got %q", "sk-ant-test-123", auth.Value)
	}
}

func TestResolveAuth_EnvVarSyntax(t *testing.T) {
	t.Setenv("MY_CUSTOM_KEY", "custom-api-key-value")

	auth, err := ResolveAuth(Provider{Driver: "openai", APIKey: "${MY_CUSTOM_KEY}"})
	if err != nil {
		t.Fatalf("ResolveAuth: %v", err)
	}
	if auth.Value != "custom-api-key-value" {
		t.Fatalf("expected env value, got %q", auth.Value)
	}
}

func TestResolveAuth_FallbackEnv(t *testing.T) {
	cases := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"mistral":   "MISTRAL_API_KEY",
	}
	for driver, env := range cases {
		t.Run(driver, func(t *testing.T) {
			t.Setenv(env, "from-env")
			auth, err := ResolveAuth(Provider{Driver: driver})
			if err != nil {
				t.Fatalf("ResolveAuth: %v", err)
			}
			if auth.Value != "from-env" {
				t.Fatalf("expected env fallback, got %q", auth.Value)
			}
		})
	}
}

func TestResolveAuth_NothingSet(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := ResolveAuth(Provider{Driver: "openai"})
	if err == nil {
		t.Fatal("expected error when no credential is available")
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("error should name the env var, got %v", err)
	}
}

func TestResolveAuth_UnknownDriver(t *testing.T) {
	if _, err := ResolveAuth(Provider{Driver: "nope"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestCreateModel_UnknownDriver(t *testing.T) {
	_, err := CreateModel(context.Background(), Provider{Driver: "unknown-driver", APIKey: "k"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestCreateModel_KnownDrivers(t *testing.T) {
	for _, driver := range Drivers() {
		t.Run(driver, func(t *testing.T) {
			m, err := CreateModel(context.Background(), Provider{Driver: driver, Model: "test-model", APIKey: "sk-test-key-123456"})
			if err != nil {
				t.Fatalf("CreateModel: %v", err)
			}
			if m == nil {
				t.Fatal("expected a model")
			}
		})
	}
}

func TestCreateModel_OllamaNeedsNoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := CreateModel(context.Background(), Provider{Driver: "ollama", Model: "llama3"}); err != nil {
		t.Fatalf("CreateModel: %v", err)
	}
	if _, err := CreateModel(context.Background(), Provider{Driver: "openai", Model: "gpt-4o"}); err == nil {
		t.Fatal("expected openai without a key to fail")
	}
}

func TestDriverDefaults(t *testing.T) {
	p := drivers["mistral"].withDefaults(Provider{Driver: "mistral"})
	if p.BaseURL != "https://api.mistral.ai/v1" || p.Model != "mistral-small-latest" || p.Timeout != 5*time.Minute {
		t.Errorf("mistral defaults = %+v", p)
	}

	custom := Provider{Driver: "ollama", BaseURL: "http://gpu:11434", Model: "qwen", Timeout: time.Second}
	if got := drivers["ollama"].withDefaults(custom); got != custom {
		t.Errorf("explicit settings overridden: %+v", got)
	}

	if got := Drivers(); strings.Join(got, ",") != "anthropic,mistral,ollama,openai" {
		t.Errorf("Drivers() = %v", got)
	}
}

func TestSupported(t *testing.T) {
	if !Supported("OpenAI") || !Supported("ollama") {
		t.Error("expected known drivers to be supported")
	}
	if Supported("x") || Supported("") {
		t.Error("expected unknown drivers to be rejected")
	}
}

func TestHandleError(t *testing.T) {
	cases := map[string]string{
		"401 unauthorized":      "authentication failed",
		"429 too many requests": "rate limited",
		"dial tcp: refused":     "connection error",
	}
	for in, want := range cases {
		got := HandleError(errors.New(in))
		if !strings.HasPrefix(got.Error(), want) {
			t.Errorf("HandleError(%q) = %q, want prefix %q", in, got, want)
		}
	}
	if HandleError(nil) != nil {
		t.Error("HandleError(nil) should be nil")
	}
}

func TestAnthropicBuildParams(t *testing.T) {
	m, err := NewAnthropic(Provider{Model: "claude-test", MaxTokens: 1000}, ResolvedAuth{Value: "k"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	tool := &schema.ToolInfo{
		Name: "write_file",
		Desc: "Write a file",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"path": {Type: schema.String, Desc: "relative path", Required: true},
		}),
	}
	withTools, err := m.WithTools([]*schema.ToolInfo{tool})
	if err != nil {
		t.Fatalf("WithTools: %v", err)
	}

	params := withTools.(*AnthropicChatModel).buildParams([]*schema.Message{
		schema.SystemMessage("be brief"),
		schema.UserMessage("hi"),
	}, nil)

	if params.MaxTokens != 1000 || string(params.Model) != "claude-test" {
		t.Errorf("unexpected params: model %s, max tokens %d", params.Model, params.MaxTokens)
	}
	if len(params.System) != 1 || params.System[0].Text != "be brief" {
		t.Errorf("system prompt not extracted: %+v", params.System)
	}
	if len(params.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(params.Messages))
	}
	if len(params.Tools) != 1 || params.Tools[0].OfTool == nil || params.Tools[0].OfTool.Name != "write_file" {
		t.Fatalf("tool not converted: %+v", params.Tools)
	}
	if req := params.Tools[0].OfTool.InputSchema.Required; len(req) != 1 || req[0] != "path" {
		t.Errorf("required = %v", req)
	}
}

func TestConvertAnthropicResponse(t *testing.T) {
	var resp anthropic.Message
	raw := `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
		"stop_reason": "tool_use",
		"content": [
			{"type": "text", "text": "writing"},
			{"type": "tool_use", "id": "tu_1", "name": "write_file", "input": {"path": "a.txt"}}
		],
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`
	if err := resp.UnmarshalJSON([]byte(raw)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	msg := convertAnthropicResponse(&resp)
	if msg.Content != "writing" {
		t.Errorf("content = %q", msg.Content)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Name != "write_file" {
		t.Fatalf("tool calls = %+v", msg.ToolCalls)
	}
	if !strings.Contains(msg.ToolCalls[0].Function.Arguments, `"a.txt"`) {
		t.Errorf("arguments = %s", msg.ToolCalls[0].Function.Arguments)
	}
	if msg.ResponseMeta.FinishReason != "tool_calls" || msg.ResponseMeta.Usage.TotalTokens != 15 {
		t.Errorf("meta = %+v", msg.ResponseMeta)
	}
}
