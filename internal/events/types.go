// Package events defines session events and the per-session append-only log
// that orders them.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind represents the type of event.
type Kind string

const (
	KindSystem          Kind = "system"
	KindStep            Kind = "step"
	KindResult          Kind = "result"
	KindError           Kind = "error"
	KindSessionComplete Kind = "session_complete"
)

// StepStateExecuting is the only state the runner reports for a step.
const StepStateExecuting = "executing"

// Event is one entry of a session's message log. Its JSON form is what the
// stream endpoint sends to clients.
type Event struct {
	Type          Kind      `json:"type"`
	Content       any       `json:"content,omitempty"`
	Message       string    `json:"message,omitempty"`
	Success       *bool     `json:"success,omitempty"`
	ExecutionTime *float64  `json:"executionTime,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
}

// StepContent is the content of a step event.
type StepContent struct {
	StepNumber int    `json:"step_number"`
	State      string `json:"state"`
	Content    string `json:"content"`
}

// System announces a lifecycle change, e.g. the start of a task.
func System(content string) Event {
	return Event{Type: KindSystem, Content: content, Timestamp: time.Now()}
}

// Step reports progress of the task.
func Step(number int, content string) Event {
	return Event{
		Type:      KindStep,
		Content:   StepContent{StepNumber: number, State: StepStateExecuting, Content: content},
		Timestamp: time.Now(),
	}
}

// Result reports the outcome of a task the engine (or simulation) finished.
func Result(content string, success bool, executionTime float64) Event {
	return Event{
		Type:          KindResult,
		Content:       content,
		Success:       &success,
		ExecutionTime: &executionTime,
		Timestamp:     time.Now(),
	}
}

// Failure reports a task the engine ran but could not complete.
func Failure(content string, executionTime float64) Event {
	success := false
	return Event{
		Type:          KindError,
		Content:       content,
		Success:       &success,
		ExecutionTime: &executionTime,
		Timestamp:     time.Now(),
	}
}

// Error reports a fault during orchestration.
func Error(content string) Event {
	return Event{Type: KindError, Content: content, Timestamp: time.Now()}
}

// SessionComplete is the marker terminating a stream.
func SessionComplete() Event {
	return Event{Type: KindSessionComplete}
}

// NotFound is the single event a stream yields for an unknown session.
func NotFound() Event {
	return Event{Type: KindError, Message: "Session not found"}
}

// Text returns the content as a string when it is one.
func (e Event) Text() string {
	if s, ok := e.Content.(string); ok {
		return s
	}
	return ""
}

// Step decodes the content of a step event, whether it was built in-process
// or decoded from JSON.
func (e Event) Step() (StepContent, bool) {
	if e.Type != KindStep {
		return StepContent{}, false
	}
	switch c := e.Content.(type) {
	case StepContent:
		return c, true
	case nil:
		return StepContent{}, false
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return StepContent{}, false
		}
		var sc StepContent
		if err := json.Unmarshal(data, &sc); err != nil {
			return StepContent{}, false
		}
		return sc, true
	}
}

// Terminal reports whether the event ends a stream.
func (e Event) Terminal() bool {
	return e.Type == KindSessionComplete
}

// String renders the event for terminal output.
func (e Event) String() string {
	switch e.Type {
	case KindStep:
		if sc, ok := e.Step(); ok {
			return fmt.Sprintf("[step %d] %s", sc.StepNumber, sc.Content)
		}
	case KindResult:
		if e.ExecutionTime != nil {
			return fmt.Sprintf("[result] %s (%.1fs)", e.Text(), *e.ExecutionTime)
		}
	case KindError:
		if e.Message != "" {
			return "[error] " + e.Message
		}
	case KindSessionComplete:
		return "[session complete]"
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Text())
}
