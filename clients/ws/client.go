// Package ws provides a WebSocket client for the agentweb chat channel.
package ws

import (
	"context"
	"fmt"
	"strings"

	"github.com/coder/websocket"

	"github.com/dohr-michael/agentweb/internal/chat"
	wsprotocol "github.com/dohr-michael/agentweb/internal/gateway/ws"
)

// Client is connected to one chat session.
type Client struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// URL builds the chat endpoint for sessionID from an http(s) base URL.
func URL(baseURL, sessionID string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws/" + sessionID
}

// Dial connects to the chat endpoint at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// History reads the replay frame the server sends on connect.
func (c *Client) History() ([]chat.Turn, error) {
	f, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	if f.Type != wsprotocol.FrameHistory {
		return nil, fmt.Errorf("expected history frame, got %q", f.Type)
	}
	return f.History()
}

// Send sends one chat turn.
func (c *Client) Send(text string) error {
	return c.conn.Write(c.ctx, websocket.MessageText, []byte(text))
}

// Ask sends text and waits for the echo and the agent reply.
func (c *Client) Ask(text string) (string, error) {
	if err := c.Send(text); err != nil {
		return "", err
	}
	for {
		f, err := c.ReadFrame()
		if err != nil {
			return "", err
		}
		if f.Type == wsprotocol.FrameAgentMessage {
			return f.Text()
		}
	}
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
