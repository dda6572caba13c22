package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dohr-michael/agentweb/internal/events"
	"github.com/dohr-michael/agentweb/internal/workspace"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Launcher schedules the execution of a freshly created session. Launch must
// not block on the execution itself.
type Launcher interface {
	Launch(s *Session)
}

// Registry maps session ids to live sessions. One Registry is built at
// startup and passed to everything that needs it.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	pending    map[string]struct{} // ids reserved while their workspace is created
	workspaces *workspace.Manager
	launcher   Launcher
	sink       events.Sink
}

// NewRegistry creates an empty registry. launcher and sink may be nil.
func NewRegistry(workspaces *workspace.Manager, launcher Launcher, sink events.Sink) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		pending:    make(map[string]struct{}),
		workspaces: workspaces,
		launcher:   launcher,
		sink:       sink,
	}
}

func generateSessionID() string {
	u := uuid.New().String()
	return "sess_" + strings.ReplaceAll(u[:8], "-", "")
}

// Create allocates a session with its workspace and an empty log in the
// starting state, then hands it to the launcher. It returns as soon as the
// task is scheduled.
func (r *Registry) Create(spec TaskSpec) (*Session, error) {
	id := r.reserveID()
	dir, err := r.workspaces.Create(id)

	r.mu.Lock()
	delete(r.pending, id)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("allocate session: %w", err)
	}
	s := newSession(id, dir, spec, r.sink)
	r.sessions[id] = s
	r.mu.Unlock()

	slog.Info("session created", "session_id", id, "provider", spec.Provider, "model", spec.Model)

	if r.launcher != nil {
		r.launcher.Launch(s)
	}
	return s, nil
}

func (r *Registry) reserveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := generateSessionID()
		if _, taken := r.sessions[id]; taken {
			continue
		}
		if _, taken := r.pending[id]; taken {
			continue
		}
		r.pending[id] = struct{}{}
		return id
	}
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns all sessions, newest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Remove drops a session from the registry and returns it. Its workspace is
// left on disk.
func (r *Registry) Remove(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.sessions, id)
	return s, nil
}

// Counts returns the number of sessions per status.
func (r *Registry) Counts() map[Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Status]int)
	for _, s := range r.sessions {
		counts[s.Status()]++
	}
	return counts
}

// Workspaces returns the manager that allocates session directories.
func (r *Registry) Workspaces() *workspace.Manager {
	return r.workspaces
}
