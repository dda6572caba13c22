package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/agentweb/internal/events"
	"github.com/dohr-michael/agentweb/internal/metrics"
)

// handleStream tails a session's Message Log as "data: <json>" frames until
// the session is terminal, then sends session_complete. Every poller keeps
// its own offset and sees the full history.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	sess, err := s.registry.Get(id)
	if err != nil {
		writeFrame(w, events.NotFound())
		flush()
		return
	}
	defer s.metrics.StreamOpened(metrics.StreamPull)()

	ctx := r.Context()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	offset := 0
	for {
		// Status is read before the log: the runner appends the last event
		// before it publishes a terminal status.
		terminal := sess.Status().Terminal()

		batch, next := sess.Log.ReadFrom(offset)
		offset = next
		for _, e := range batch {
			if err := writeFrame(w, e); err != nil {
				slog.Debug("stream write", "session_id", id, "error", err)
				return
			}
		}
		if terminal {
			writeFrame(w, events.SessionComplete())
			flush()
			return
		}
		flush()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeFrame(w http.ResponseWriter, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
