package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/agentweb/internal/models"
	"github.com/dohr-michael/agentweb/internal/workspace"
)

const instruction = `You are a coding agent working inside an isolated workspace directory.
Use the tools to inspect and create files; every path is relative to the workspace root.
Work step by step, keep each reply short and describe what you just did.
When the task is done, reply with a brief summary and no tool call.`

// ModelFactory builds the chat model for a provider.
type ModelFactory func(ctx context.Context, p models.Provider) (model.ToolCallingChatModel, error)

// ModelEngine runs tasks with an eino ChatModelAgent equipped with workspace
// tools.
type ModelEngine struct {
	workspaces *workspace.Manager
	newModel   ModelFactory
	baseURL    string
	timeout    time.Duration
	maxTokens  int
}

// ModelEngineConfig configures a ModelEngine.
type ModelEngineConfig struct {
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
	// NewModel overrides models.CreateModel.
	NewModel ModelFactory
}

// NewModelEngine creates a ModelEngine working in directories of ws.
func NewModelEngine(ws *workspace.Manager, cfg ModelEngineConfig) *ModelEngine {
	newModel := cfg.NewModel
	if newModel == nil {
		newModel = models.CreateModel
	}
	return &ModelEngine{
		workspaces: ws,
		newModel:   newModel,
		baseURL:    cfg.BaseURL,
		timeout:    cfg.Timeout,
		maxTokens:  cfg.MaxTokens,
	}
}

// Provider fills engine-wide settings into the provider of a request.
func (e *ModelEngine) Provider(p models.Provider) models.Provider {
	if p.BaseURL == "" {
		p.BaseURL = e.baseURL
	}
	if p.Timeout == 0 {
		p.Timeout = e.timeout
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = e.maxTokens
	}
	return p
}

// ValidateConfig builds the chat model the engine would use for p.
func (e *ModelEngine) ValidateConfig(ctx context.Context, p models.Provider) error {
	if !models.Supported(p.Driver) {
		return fmt.Errorf("%w: provider %q", ErrUnavailable, p.Driver)
	}
	if p.Model == "" {
		return errors.New("model is required")
	}
	_, err := e.newModel(ctx, e.Provider(p))
	return err
}

// Run drives the agent until it stops calling tools.
func (e *ModelEngine) Run(ctx context.Context, req Request) (Result, error) {
	if !models.Supported(req.Provider.Driver) {
		return Result{}, fmt.Errorf("%w: provider %q", ErrUnavailable, req.Provider.Driver)
	}
	start := time.Now()
	elapsed := func() float64 { return time.Since(start).Seconds() }

	provider := e.Provider(req.Provider)
	chatModel, err := e.newModel(ctx, provider)
	if err != nil {
		if errors.Is(err, models.ErrUnknownDriver) {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Result{ExecutionTime: elapsed()}, fmt.Errorf("%w: create model: %v", ErrFailure, err)
	}

	if req.ConfigFile != "" {
		if err := WriteConfigFile(req.ConfigFile, req); err != nil {
			return Result{ExecutionTime: elapsed()}, err
		}
	}

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	tools := WorkspaceTools(e.workspaces, req.WorkDir)
	baseTools := make([]tool.BaseTool, len(tools))
	for i, t := range tools {
		baseTools[i] = t
	}

	agentCfg := &adk.ChatModelAgentConfig{
		Name:          "agentweb",
		Description:   "Coding agent executing one task inside a session workspace",
		Instruction:   instruction,
		Model:         chatModel,
		MaxIterations: maxSteps,
	}
	agentCfg.ToolsConfig.Tools = baseTools

	agent, err := adk.NewChatModelAgent(ctx, agentCfg)
	if err != nil {
		return Result{ExecutionTime: elapsed()}, fmt.Errorf("%w: create agent: %v", ErrFailure, err)
	}
	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent:           agent,
		EnableStreaming: false,
	})

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req.step("Initializing agent...")
	if err := consume(ctx, runner, req); err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{ExecutionTime: elapsed()}, err
		}
		return Result{ExecutionTime: elapsed()}, fmt.Errorf("%w: %v", ErrFailure, models.HandleError(err))
	}
	return Result{Success: true, ExecutionTime: elapsed()}, nil
}

// consume reads the runner output and reports assistant messages and tool
// calls as steps.
func consume(ctx context.Context, runner *adk.Runner, req Request) error {
	iter := runner.Run(ctx, []*schema.Message{schema.UserMessage(req.Task)})
	for {
		event, ok := iter.Next()
		if !ok {
			return nil
		}
		if event.Err != nil {
			return event.Err
		}
		if event.Output == nil || event.Output.MessageOutput == nil {
			continue
		}

		mv := event.Output.MessageOutput
		if mv.Role == schema.Tool {
			if mv.IsStreaming && mv.MessageStream != nil {
				mv.MessageStream.Close()
			}
			continue
		}
		msg := mv.Message
		if mv.IsStreaming && mv.MessageStream != nil {
			concatenated, err := schema.ConcatMessageStream(mv.MessageStream)
			if err != nil {
				return err
			}
			msg = concatenated
		}
		if msg == nil {
			continue
		}
		if req.Verbose {
			slog.Debug("agent message", "content", msg.Content, "tool_calls", len(msg.ToolCalls))
		}
		if text := strings.TrimSpace(msg.Content); text != "" {
			req.step(text)
		}
		for _, tc := range msg.ToolCalls {
			req.step("Using tool " + tc.Function.Name)
		}
	}
}
