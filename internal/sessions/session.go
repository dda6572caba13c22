// Package sessions owns execution sessions: their identity, workspace,
// message log and lifecycle.
package sessions

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dohr-michael/agentweb/internal/events"
)

// ErrInvalidTransition is returned when a status change would leave a
// terminal state or move backwards.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusError     Status = "error"
)

// Terminal reports whether s is absorbing.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError:
		return true
	}
	return false
}

// TaskSpec is the request that started a session. It never changes after
// creation.
type TaskSpec struct {
	Task     string `json:"task"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
	MaxSteps int    `json:"maxSteps"`
}

// Redacted returns a copy safe to log or serialize.
func (t TaskSpec) Redacted() TaskSpec {
	if t.APIKey != "" {
		t.APIKey = "REDACTED"
	}
	return t
}

// Session is one task-execution context.
type Session struct {
	ID        string
	Workspace string
	Spec      TaskSpec
	CreatedAt time.Time
	Log       *events.Log

	mu         sync.RWMutex
	status     Status
	finishedAt time.Time
}

func newSession(id, workspace string, spec TaskSpec, sink events.Sink) *Session {
	return &Session{
		ID:        id,
		Workspace: workspace,
		Spec:      spec,
		CreatedAt: time.Now(),
		Log:       events.NewLog(id, sink),
		status:    StatusStarting,
	}
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// FinishedAt returns when the session reached a terminal status, or the zero
// time while it is still live.
func (s *Session) FinishedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finishedAt
}

// Transition moves the session to next. Allowed moves are starting→running
// and any non-terminal status to a terminal one.
func (s *Session) Transition(next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.status
	switch {
	case cur.Terminal():
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, cur)
	case next == StatusRunning && cur == StatusStarting:
	case next.Terminal():
		s.finishedAt = time.Now()
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}
	s.status = next
	return nil
}

// Summary is the JSON view of a session used by the listing endpoints.
type Summary struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Task         string    `json:"task"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	MessageCount int       `json:"message_count"`
}

// Summary snapshots the session.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	status, finished := s.status, s.finishedAt
	s.mu.RUnlock()

	return Summary{
		ID:           s.ID,
		Status:       status,
		Task:         s.Spec.Task,
		Provider:     s.Spec.Provider,
		Model:        s.Spec.Model,
		CreatedAt:    s.CreatedAt,
		FinishedAt:   finished,
		MessageCount: s.Log.Len(),
	}
}
