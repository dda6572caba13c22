package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/agentweb/internal/chat"
	"github.com/dohr-michael/agentweb/internal/metrics"
)

// Client is one connected chat channel.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	hub       *Hub
}

// HubConfig holds dependencies for creating a Hub.
type HubConfig struct {
	Store     chat.Store
	Responder chat.Responder // defaults to chat.Placeholder
	Metrics   *metrics.Metrics
	// OriginPatterns are the browser origins allowed to connect (host
	// patterns, e.g. "localhost:5173"). Requests without an Origin header
	// are always accepted.
	OriginPatterns []string
}

// Hub tracks open chat connections and closes them on shutdown.
type Hub struct {
	store     chat.Store
	responder chat.Responder
	metrics   *metrics.Metrics
	origins   []string

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates a new chat hub.
func NewHub(cfg HubConfig) *Hub {
	responder := cfg.Responder
	if responder == nil {
		responder = chat.Placeholder{}
	}
	return &Hub{
		store:     cfg.Store,
		responder: responder,
		metrics:   cfg.Metrics,
		origins:   cfg.OriginPatterns,
		clients:   make(map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "session_id", c.sessionID, "clients", len(h.clients))
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		slog.Info("ws client disconnected", "session_id", c.sessionID, "clients", len(h.clients))
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and runs the chat loop for sessionID until
// the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{conn: conn, sessionID: sessionID, hub: h}
	if !h.register(client) {
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}
	defer h.unregister(client)
	defer h.metrics.StreamOpened(metrics.StreamPush)()

	err = client.run(r.Context())
	switch {
	case err == nil, websocket.CloseStatus(err) != -1, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		slog.Error("ws chat", "session_id", sessionID, "error", err)
		conn.Close(websocket.StatusInternalError, "internal error")
	}
}

// run replays the history, then handles one turn per inbound text frame.
// Frames are read on their own goroutine so a dropped connection cancels the
// turn in flight.
func (c *Client) run(ctx context.Context) error {
	history, err := c.hub.store.History(ctx, c.sessionID)
	if err != nil {
		return err
	}
	frame, err := NewHistoryFrame(history)
	if err != nil {
		return err
	}
	if err := c.send(ctx, frame); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	inbox := make(chan string)
	go c.readLoop(ctx, cancel, inbox)

	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-inbox:
			if err := c.handleTurn(ctx, text); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.sendText(ctx, FrameError, "failed to process message")
				return err
			}
		}
	}
}

// readLoop forwards text frames to inbox and cancels the connection context
// once the peer goes away.
func (c *Client) readLoop(ctx context.Context, cancel context.CancelFunc, inbox chan<- string) {
	defer cancel()
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			slog.Debug("ws ignoring non-text frame", "session_id", c.sessionID)
			continue
		}
		select {
		case inbox <- string(data):
		case <-ctx.Done():
			return
		}
	}
}

// handleTurn persists the user message, echoes it, then persists and pushes
// the reply. A reply produced after the peer disconnected is dropped.
func (c *Client) handleTurn(ctx context.Context, text string) error {
	if _, err := c.hub.store.Append(ctx, c.sessionID, chat.RoleUser, text); err != nil {
		return err
	}
	c.hub.metrics.ChatTurn(string(chat.RoleUser))
	if err := c.sendText(ctx, FrameUserMessage, text); err != nil {
		return err
	}

	reply, err := c.hub.responder.Respond(ctx, c.sessionID, text)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		slog.Debug("ws reply dropped, client gone", "session_id", c.sessionID)
		return err
	}
	if _, err := c.hub.store.Append(ctx, c.sessionID, chat.RoleAgent, reply); err != nil {
		return err
	}
	c.hub.metrics.ChatTurn(string(chat.RoleAgent))
	return c.sendText(ctx, FrameAgentMessage, reply)
}

func (c *Client) sendText(ctx context.Context, t FrameType, text string) error {
	frame, err := NewTextFrame(t, text)
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}

func (c *Client) send(ctx context.Context, f Frame) error {
	data, err := MarshalFrame(f)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	open := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		open = append(open, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range open {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}
}
