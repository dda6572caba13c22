package models

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicChatModel implements model.ToolCallingChatModel on the Messages
// API. Task runs do not stream, so Stream replays the Generate result.
type AnthropicChatModel struct {
	client    anthropic.Client
	modelName string
	maxTokens int
	tools     []*schema.ToolInfo
}

// NewAnthropic creates a new Anthropic ToolCallingChatModel. p is expected to
// carry the driver defaults already (see CreateModel).
func NewAnthropic(p Provider, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	maxTokens := p.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(auth.Value)}
	if p.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.BaseURL))
	}
	if p.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(p.Timeout))
	}

	return &AnthropicChatModel{
		client:    anthropic.NewClient(opts...),
		modelName: p.Model,
		maxTokens: maxTokens,
	}, nil
}

func (m *AnthropicChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.client.Messages.New(ctx, m.buildParams(messages, opts))
	if err != nil {
		return nil, HandleError(err)
	}
	return convertAnthropicResponse(resp), nil
}

func (m *AnthropicChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *AnthropicChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &AnthropicChatModel{
		client:    m.client,
		modelName: m.modelName,
		maxTokens: m.maxTokens,
		tools:     tools,
	}, nil
}

func (m *AnthropicChatModel) buildParams(messages []*schema.Message, opts []model.Option) anthropic.MessageNewParams {
	options := model.GetCommonOptions(&model.Options{MaxTokens: &m.maxTokens}, opts...)
	maxTokens := m.maxTokens
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		maxTokens = *options.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: int64(maxTokens),
	}

	for _, msg := range messages {
		if msg.Role == schema.System {
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
			continue
		}
		params.Messages = append(params.Messages, convertAnthropicMessage(msg))
	}

	for _, tool := range m.tools {
		toolParam := anthropic.ToolUnionParamOfTool(anthropicToolSchema(tool), tool.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = param.NewOpt(tool.Desc)
		}
		params.Tools = append(params.Tools, toolParam)
	}

	return params
}

// anthropicToolSchema flattens the eino JSON schema into the properties and
// required list the Messages API expects.
func anthropicToolSchema(tool *schema.ToolInfo) anthropic.ToolInputSchemaParam {
	var out anthropic.ToolInputSchemaParam
	if tool.ParamsOneOf == nil {
		return out
	}
	js, err := tool.ParamsOneOf.ToJSONSchema()
	if err != nil || js == nil {
		return out
	}
	raw, err := json.Marshal(js)
	if err != nil {
		return out
	}
	var decoded struct {
		Properties any      `json:"properties"`
		Required   []string `json:"required"`
	}
	if json.Unmarshal(raw, &decoded) != nil {
		return out
	}
	out.Properties = decoded.Properties
	out.Required = decoded.Required
	return out
}

func convertAnthropicMessage(msg *schema.Message) anthropic.MessageParam {
	switch msg.Role {
	case schema.Assistant:
		var blocks []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				input = tc.Function.Arguments
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}
		return anthropic.NewAssistantMessage(blocks...)
	case schema.Tool:
		return anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
	default:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content))
	}
}

func convertAnthropicResponse(resp *anthropic.Message) *schema.Message {
	out := &schema.Message{
		Role: schema.Assistant,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
				ID:       block.ID,
				Function: schema.FunctionCall{Name: block.Name, Arguments: string(args)},
			})
		}
	}

	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		out.ResponseMeta.FinishReason = "tool_calls"
	case anthropic.StopReasonMaxTokens:
		out.ResponseMeta.FinishReason = "length"
	}
	return out
}

var _ model.ToolCallingChatModel = (*AnthropicChatModel)(nil)
