// Package gateway exposes sessions, workspaces and chat over HTTP and
// WebSocket.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dohr-michael/agentweb/internal/chat"
	"github.com/dohr-michael/agentweb/internal/engine"
	"github.com/dohr-michael/agentweb/internal/gateway/ws"
	"github.com/dohr-michael/agentweb/internal/metrics"
	"github.com/dohr-michael/agentweb/internal/sessions"
)

// DefaultPollInterval is how often a pull stream checks for new events.
const DefaultPollInterval = 500 * time.Millisecond

// Config holds dependencies for creating a Server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	PollInterval   time.Duration

	Registry  *sessions.Registry
	Engine    engine.Engine // nil: no agent engine, validation falls back to basic checks
	Chat      chat.Store
	Responder chat.Responder
	Metrics   *metrics.Metrics // nil disables /metrics
}

// Server is the agentweb HTTP server.
type Server struct {
	httpServer   *http.Server
	hub          *ws.Hub
	registry     *sessions.Registry
	engine       engine.Engine
	chat         chat.Store
	metrics      *metrics.Metrics
	pollInterval time.Duration

	// base is the parent of every request context; cancelled on Shutdown so
	// long-lived streams return.
	base       context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a new server and its routes.
func NewServer(cfg Config) *Server {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	s := &Server{
		hub: ws.NewHub(ws.HubConfig{
			Store:          cfg.Chat,
			Responder:      cfg.Responder,
			Metrics:        cfg.Metrics,
			OriginPatterns: originHosts(cfg.AllowedOrigins),
		}),
		registry:     cfg.Registry,
		engine:       cfg.Engine,
		chat:         cfg.Chat,
		metrics:      cfg.Metrics,
		pollInterval: poll,
	}
	s.base, s.cancelBase = context.WithCancel(context.Background())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/validate-config", s.handleValidateConfig)
		r.Post("/execute-task", s.handleExecuteTask)
		r.Get("/sessions", s.handleSessions)
		r.Get("/session/{id}", s.handleSession)
		r.Get("/session/{id}/stream", s.handleStream)
		r.Get("/workspace/{id}/files", s.handleFiles)
		r.Get("/workspace/{id}/file/*", s.handleFile)
	})

	// Chat
	r.Post("/sessions/new", s.handleNewChatSession)
	r.Get("/ws/{session_id}", func(w http.ResponseWriter, r *http.Request) {
		s.hub.ServeWS(w, r, chi.URLParam(r, "session_id"))
	})

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.base },
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped and returns
// nil after a clean Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("agentweb listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server. Open chat channels are closed with
// GoingAway and pull streams are ended.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	s.cancelBase()
	return s.httpServer.Shutdown(ctx)
}

// originHosts turns allowed origins into WebSocket origin host patterns.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
