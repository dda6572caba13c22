// Package engine is the boundary to the agent that actually executes tasks.
// The task runner only sees the Engine interface; when no engine is
// configured it falls back to a deterministic simulation.
package engine

import (
	"context"
	"errors"

	"github.com/dohr-michael/agentweb/internal/models"
)

var (
	// ErrUnavailable means no engine can run the request. It triggers the
	// fallback simulation and is never shown to users as an error.
	ErrUnavailable = errors.New("agent engine unavailable")
	// ErrFailure means the engine ran but did not complete the task.
	ErrFailure = errors.New("agent engine failure")
)

// DefaultMaxSteps bounds the agent loop when a request does not set one.
const DefaultMaxSteps = 20

// Request is one task handed to the engine.
type Request struct {
	Task       string
	WorkDir    string
	ConfigFile string
	Provider   models.Provider
	MaxSteps   int
	Verbose    bool
	// OnStep is called with a human-readable line for every step the
	// engine takes. It may be nil.
	OnStep func(content string)
}

func (r Request) step(content string) {
	if r.OnStep != nil {
		r.OnStep(content)
	}
}

// Result is what the engine reports once a run ends.
type Result struct {
	Success       bool    `json:"success"`
	ExecutionTime float64 `json:"execution_time"` // seconds
}

// Engine executes a task inside a working directory.
type Engine interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Unavailable is the Engine used when none is configured.
type Unavailable struct{}

func (Unavailable) Run(context.Context, Request) (Result, error) {
	return Result{}, ErrUnavailable
}
