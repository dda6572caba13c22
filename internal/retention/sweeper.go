// Package retention evicts old terminal sessions on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dohr-michael/agentweb/internal/sessions"
)

// AuditRemover deletes the persisted audit trail of a session.
type AuditRemover interface {
	Remove(sessionID string) error
}

// Config holds dependencies for the sweeper.
type Config struct {
	Registry *sessions.Registry
	Audit    AuditRemover // optional
	Schedule string       // 5-field cron expression
	MaxAge   time.Duration
}

// Sweeper removes terminal sessions whose finish time is older than MaxAge,
// together with their workspace and audit log.
type Sweeper struct {
	registry *sessions.Registry
	audit    AuditRemover
	maxAge   time.Duration
	cron     *cron.Cron
}

// New validates the schedule and returns a stopped Sweeper.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("retention: registry is required")
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("retention: max age must be positive, got %s", cfg.MaxAge)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	s := &Sweeper{
		registry: cfg.Registry,
		audit:    cfg.Audit,
		maxAge:   cfg.MaxAge,
		cron:     c,
	}
	if _, err := c.AddFunc(cfg.Schedule, func() { s.Sweep(time.Now()) }); err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.cron.Start()
	slog.Info("retention sweeper started", "max_age", s.maxAge)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.Info("retention sweeper stopped")
	return nil
}

// Sweep evicts every eligible session as of now and returns how many were
// removed. Running sessions are never touched.
func (s *Sweeper) Sweep(now time.Time) int {
	cutoff := now.Add(-s.maxAge)
	removed := 0

	for _, sess := range s.registry.List() {
		if !sess.Status().Terminal() {
			continue
		}
		finished := sess.FinishedAt()
		if finished.IsZero() || finished.After(cutoff) {
			continue
		}
		if _, err := s.registry.Remove(sess.ID); err != nil {
			continue
		}
		if err := s.registry.Workspaces().Remove(sess.Workspace); err != nil {
			slog.Warn("retention: remove workspace", "session_id", sess.ID, "error", err)
		}
		if s.audit != nil {
			if err := s.audit.Remove(sess.ID); err != nil {
				slog.Warn("retention: remove audit log", "session_id", sess.ID, "error", err)
			}
		}
		removed++
	}

	if removed > 0 {
		slog.Info("retention sweep", "removed", removed)
	}
	return removed
}
