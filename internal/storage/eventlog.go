// Package storage mirrors session event logs to disk for auditing.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dohr-michael/agentweb/internal/events"
)

// EventLogger persists session events to JSONL files, one file per session.
// It implements events.Sink.
type EventLogger struct {
	mu  sync.Mutex
	dir string
}

// NewEventLogger creates an EventLogger that writes under dir.
func NewEventLogger(dir string) *EventLogger {
	return &EventLogger{dir: dir}
}

// Record appends e to the session's audit file. Failures are logged, never
// returned: the in-memory log stays authoritative.
func (el *EventLogger) Record(sessionID string, e events.Event) {
	if err := el.writeEvent(sessionID, e); err != nil {
		slog.Warn("audit log write failed", "session_id", sessionID, "error", err)
	}
}

func (el *EventLogger) writeEvent(sessionID string, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	el.mu.Lock()
	defer el.mu.Unlock()

	if err := os.MkdirAll(el.dir, 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(el.logPath(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// Read loads the audit trail of a session. A missing file yields no events.
func (el *EventLogger) Read(sessionID string) ([]events.Event, error) {
	f, err := os.Open(el.logPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var out []events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e events.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decode audit line %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

// Remove deletes the audit file of a session.
func (el *EventLogger) Remove(sessionID string) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	if err := os.Remove(el.logPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove audit log: %w", err)
	}
	return nil
}

func (el *EventLogger) logPath(sessionID string) string {
	if sessionID == "" {
		return filepath.Join(el.dir, "_global.jsonl")
	}
	return filepath.Join(el.dir, sessionID+".jsonl")
}
