package events

import (
	"sync"
	"time"
)

// Sink receives every event appended to a log, in append order.
type Sink interface {
	Record(sessionID string, e Event)
}

// Log is the append-only, totally ordered event sequence of one session.
// The index of an event is its stream offset.
type Log struct {
	mu        sync.RWMutex
	recordMu  sync.Mutex // serializes appends so the sink sees log order
	sessionID string
	events    []Event
	sink      Sink
}

// NewLog creates an empty log. sink may be nil.
func NewLog(sessionID string, sink Sink) *Log {
	return &Log{sessionID: sessionID, sink: sink}
}

// Append adds e at the end of the log. It is the only mutator. Readers are
// not blocked while the sink records the event.
func (l *Log) Append(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.recordMu.Lock()
	defer l.recordMu.Unlock()

	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()

	if l.sink != nil {
		l.sink.Record(l.sessionID, e)
	}
}

// ReadFrom returns every event appended at or after offset, in order, and the
// new high-water offset. It returns no events when nothing is new.
func (l *Log) ReadFrom(offset int) ([]Event, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.events)
	if offset < 0 {
		offset = 0
	}
	if offset >= n {
		return nil, n
	}
	out := make([]Event, n-offset)
	copy(out, l.events[offset:])
	return out, n
}

// Len returns the number of events appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// All returns a copy of the full log.
func (l *Log) All() []Event {
	events, _ := l.ReadFrom(0)
	if events == nil {
		return []Event{}
	}
	return events
}
