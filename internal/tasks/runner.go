// Package tasks drives execution sessions from creation to a terminal state.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/agentweb/internal/engine"
	"github.com/dohr-michael/agentweb/internal/events"
	"github.com/dohr-michael/agentweb/internal/models"
	"github.com/dohr-michael/agentweb/internal/sessions"
	"github.com/dohr-michael/agentweb/internal/workspace"
)

// OrchestrationError is any fault raised while running a session that is
// not a reported engine outcome.
type OrchestrationError struct {
	SessionID string
	Err       error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// Observer is notified of session lifecycle milestones.
type Observer interface {
	SessionStarted()
	SessionFinished(status sessions.Status)
}

// RunnerConfig holds dependencies for creating a Runner.
type RunnerConfig struct {
	// Engine executes tasks. Nil means every task runs the simulation.
	Engine     engine.Engine
	Workspaces *workspace.Manager
	StepDelay  time.Duration // delay between simulated steps
	Observer   Observer
	Verbose    bool
}

// Runner launches one goroutine per session and is the only writer of a
// session's status and log while it is live.
type Runner struct {
	ctx        context.Context
	engine     engine.Engine
	workspaces *workspace.Manager
	stepDelay  time.Duration
	observer   Observer
	verbose    bool

	wg sync.WaitGroup
}

// NewRunner creates a Runner. Tasks run under ctx: cancelling it (server
// shutdown) aborts them.
func NewRunner(ctx context.Context, cfg RunnerConfig) *Runner {
	return &Runner{
		ctx:        ctx,
		engine:     cfg.Engine,
		workspaces: cfg.Workspaces,
		stepDelay:  cfg.StepDelay,
		observer:   cfg.Observer,
		verbose:    cfg.Verbose,
	}
}

// Launch schedules s and returns immediately. It implements sessions.Launcher.
func (r *Runner) Launch(s *sessions.Session) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Run(r.ctx, s)
	}()
}

// Wait blocks until every launched task has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes s synchronously. Whatever happens, s ends in a terminal
// status with a diagnostic event as the last entry of its log.
func (r *Runner) Run(ctx context.Context, s *sessions.Session) {
	defer func() {
		if p := recover(); p != nil {
			r.fault(s, fmt.Errorf("panic: %v", p))
		}
	}()

	if r.observer != nil {
		r.observer.SessionStarted()
	}

	s.Log.Append(events.System("Starting task: " + s.Spec.Task))
	if err := s.Transition(sessions.StatusRunning); err != nil {
		r.fault(s, err)
		return
	}
	slog.Info("task started", "session_id", s.ID, "provider", s.Spec.Provider, "model", s.Spec.Model)

	if r.engine == nil {
		if err := r.simulate(ctx, s); err != nil {
			r.fault(s, err)
		}
		return
	}

	if err := r.runEngine(ctx, s); err != nil {
		r.fault(s, err)
	}
}

func (r *Runner) runEngine(ctx context.Context, s *sessions.Session) error {
	stepNumber := 0
	req := engine.Request{
		Task:       s.Spec.Task,
		WorkDir:    s.Workspace,
		ConfigFile: engine.ConfigFilePath(s.Workspace),
		Provider: models.Provider{
			Driver: s.Spec.Provider,
			Model:  s.Spec.Model,
			APIKey: s.Spec.APIKey,
		},
		MaxSteps: s.Spec.MaxSteps,
		Verbose:  r.verbose,
		OnStep: func(content string) {
			stepNumber++
			s.Log.Append(events.Step(stepNumber, content))
		},
	}

	res, err := r.engine.Run(ctx, req)
	switch {
	case errors.Is(err, engine.ErrUnavailable):
		slog.Warn("agent engine unavailable, using simulation", "session_id", s.ID, "reason", err)
		return r.simulate(ctx, s)
	case errors.Is(err, engine.ErrFailure):
		r.finish(s, sessions.StatusFailed, events.Failure("Task execution failed ("+err.Error()+")", res.ExecutionTime))
		return nil
	case err != nil:
		return err
	case !res.Success:
		r.finish(s, sessions.StatusFailed, events.Failure("Task execution failed", res.ExecutionTime))
		return nil
	default:
		r.finish(s, sessions.StatusCompleted, events.Result("Task completed successfully!", true, res.ExecutionTime))
		return nil
	}
}

// finish records the last event, then the terminal status. The order matters:
// a streamer that observes the terminal status has already seen every event.
func (r *Runner) finish(s *sessions.Session, status sessions.Status, last events.Event) {
	s.Log.Append(last)
	if err := s.Transition(status); err != nil {
		slog.Error("task finish", "session_id", s.ID, "status", status, "error", err)
		return
	}

	switch status {
	case sessions.StatusCompleted:
		slog.Info("task completed", "session_id", s.ID)
	default:
		slog.Warn("task failed", "session_id", s.ID, "content", last.Text())
	}
	if r.observer != nil {
		r.observer.SessionFinished(status)
	}
}

func (r *Runner) fault(s *sessions.Session, err error) {
	orch := &OrchestrationError{SessionID: s.ID, Err: err}
	if s.Status().Terminal() {
		slog.Error("fault after terminal status", "error", orch)
		return
	}
	slog.Error("task execution error", "error", orch)

	s.Log.Append(events.Error("Error: " + err.Error()))
	if err := s.Transition(sessions.StatusError); err != nil {
		slog.Error("task fault", "session_id", s.ID, "error", err)
		return
	}
	if r.observer != nil {
		r.observer.SessionFinished(sessions.StatusError)
	}
}
