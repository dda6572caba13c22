package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/dohr-michael/agentweb/internal/events"
	"github.com/dohr-michael/agentweb/internal/sessions"
)

// SimulatedSteps are the fixed steps of the fallback simulation.
var SimulatedSteps = []string{
	"Analyzing the task...",
	"Setting up the environment...",
	"Generating code...",
	"Testing the solution...",
	"Task completed!",
}

const (
	// SampleFile is the artifact the simulation leaves in the workspace.
	SampleFile    = "hello.py"
	sampleContent = "print(\"Hello, World!\")\n"
	// simulatedExecutionTime is reported regardless of the configured delay.
	simulatedExecutionTime = 5.0
)

// simulate stands in for the engine: fixed steps, one artifact, success.
func (r *Runner) simulate(ctx context.Context, s *sessions.Session) error {
	for i, step := range SimulatedSteps {
		s.Log.Append(events.Step(i+1, step))
		if err := sleep(ctx, r.stepDelay); err != nil {
			return err
		}
	}

	if _, err := r.workspaces.Write(s.Workspace, SampleFile, []byte(sampleContent)); err != nil {
		return fmt.Errorf("write sample file: %w", err)
	}

	r.finish(s, sessions.StatusCompleted,
		events.Result("Task completed successfully! Created "+SampleFile, true, simulatedExecutionTime))
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
