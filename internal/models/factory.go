// Package models builds eino chat models from the provider settings a task
// request carries.
package models

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
)

// ErrUnknownDriver is returned for providers no constructor exists for.
var ErrUnknownDriver = errors.New("unknown driver")

// Provider describes the model a task should run against.
type Provider struct {
	Driver    string // openai, anthropic, mistral, ollama
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// driver holds what differs between providers sharing a constructor.
type driver struct {
	keyEnv  string // empty: no credential needed
	baseURL string
	model   string
	timeout time.Duration
}

var drivers = map[string]driver{
	"anthropic": {keyEnv: "ANTHROPIC_API_KEY", model: "claude-sonnet-4-5", timeout: time.Minute},
	"openai":    {keyEnv: "OPENAI_API_KEY", timeout: time.Minute},
	"mistral":   {keyEnv: "MISTRAL_API_KEY", baseURL: "https://api.mistral.ai/v1", model: "mistral-small-latest", timeout: 5 * time.Minute},
	"ollama":    {baseURL: "http://localhost:11434", timeout: 5 * time.Minute},
}

// Drivers returns the supported provider drivers, sorted.
func Drivers() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Supported reports whether driver names a known provider.
func Supported(driver string) bool {
	_, ok := drivers[strings.ToLower(driver)]
	return ok
}

// withDefaults fills the driver defaults into the unset fields of p.
func (d driver) withDefaults(p Provider) Provider {
	if p.BaseURL == "" {
		p.BaseURL = d.baseURL
	}
	if p.Model == "" {
		p.Model = d.model
	}
	if p.Timeout <= 0 {
		p.Timeout = d.timeout
	}
	return p
}

// CreateModel creates a model.ToolCallingChatModel from a provider. It does not
// contact the provider.
func CreateModel(ctx context.Context, p Provider) (model.ToolCallingChatModel, error) {
	name := strings.ToLower(p.Driver)
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, p.Driver)
	}
	p = d.withDefaults(p)

	var auth ResolvedAuth
	if d.keyEnv != "" {
		var err error
		if auth, err = ResolveAuth(p); err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
	}

	switch name {
	case "anthropic":
		return NewAnthropic(p, auth)
	case "ollama":
		return NewOllama(ctx, p)
	default:
		return NewOpenAICompatible(ctx, p, auth)
	}
}
