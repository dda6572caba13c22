package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/agentweb/internal/engine"
	"github.com/dohr-michael/agentweb/internal/models"
	"github.com/dohr-michael/agentweb/internal/sessions"
	"github.com/dohr-michael/agentweb/internal/workspace"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type configRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
	MaxSteps int    `json:"maxSteps"`
}

type executeResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

type fileContent struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "agentweb backend is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "message": "agentweb API is running"})
}

// handleValidateConfig always answers 200: every problem, including an
// unreadable body, is reported as valid=false.
func (s *Server) handleValidateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusOK, engine.Validation{Valid: false, Message: "Validation failed: " + err.Error()})
		return
	}
	slog.Info("validating config", "provider", req.Provider, "model", req.Model)

	v := engine.Validate(r.Context(), s.engine, models.Provider{
		Driver: req.Provider,
		Model:  req.Model,
		APIKey: req.APIKey,
	})
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request) {
	var spec sessions.TaskSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if spec.Task == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}
	if spec.MaxSteps <= 0 {
		spec.MaxSteps = engine.DefaultMaxSteps
	}

	sess, err := s.registry.Create(spec)
	if err != nil {
		slog.Error("start task", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{SessionID: sess.ID, Status: "started"})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	list := s.registry.List()
	out := make([]sessions.Summary, len(list))
	for i, sess := range list {
		out[i] = sess.Summary()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

// handleFiles lists a session's workspace. Unknown sessions and unreadable
// workspaces yield an empty list.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pattern := r.URL.Query().Get("pattern")

	files := []workspace.File{}
	sess, err := s.registry.Get(id)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"files": files})
		return
	}

	listed, err := s.registry.Workspaces().List(sess.Workspace, pattern)
	switch {
	case errors.Is(err, workspace.ErrBadPattern):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("list workspace files", "session_id", id, "error", err)
	default:
		files = listed
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rel := chi.URLParam(r, "*")

	sess, err := s.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	data, err := s.registry.Workspaces().Read(sess.Workspace, rel)
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found")
		return
	case err != nil:
		slog.Error("read workspace file", "session_id", id, "path", rel, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	if workspace.IsBinary(data) {
		writeError(w, http.StatusUnsupportedMediaType, "Binary file cannot be displayed")
		return
	}
	writeJSON(w, http.StatusOK, fileContent{Content: string(data), Type: "text"})
}

func (s *Server) handleNewChatSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.chat.CreateSession(r.Context())
	if err != nil {
		slog.Error("create chat session", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}
