// Package ws implements the push-mode chat channel: one WebSocket per chat
// session, history replay on connect, then request/reply turns.
package ws

import (
	"encoding/json"
	"fmt"

	"github.com/dohr-michael/agentweb/internal/chat"
)

// FrameType identifies a server to client frame.
type FrameType string

const (
	FrameHistory      FrameType = "history"
	FrameUserMessage  FrameType = "user_message"
	FrameAgentMessage FrameType = "agent_message"
	FrameError        FrameType = "error"
)

// Frame is the envelope of every server frame: {"type": ..., "data": ...}.
// Clients send plain text frames, one per chat turn.
type Frame struct {
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewHistoryFrame wraps the replayed turns, oldest first.
func NewHistoryFrame(turns []chat.Turn) (Frame, error) {
	if turns == nil {
		turns = []chat.Turn{}
	}
	return newFrame(FrameHistory, turns)
}

// NewTextFrame wraps a single message string.
func NewTextFrame(t FrameType, text string) (Frame, error) {
	return newFrame(t, text)
}

func newFrame(t FrameType, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s frame: %w", t, err)
	}
	return Frame{Type: t, Data: data}, nil
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// Text decodes the data of a text frame.
func (f Frame) Text() (string, error) {
	var s string
	if err := json.Unmarshal(f.Data, &s); err != nil {
		return "", fmt.Errorf("decode %s frame: %w", f.Type, err)
	}
	return s, nil
}

// History decodes the data of a history frame.
func (f Frame) History() ([]chat.Turn, error) {
	var turns []chat.Turn
	if err := json.Unmarshal(f.Data, &turns); err != nil {
		return nil, fmt.Errorf("decode history frame: %w", err)
	}
	return turns, nil
}
