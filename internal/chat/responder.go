package chat

import "context"

// Responder produces the agent reply to a user turn.
type Responder interface {
	Respond(ctx context.Context, sessionID, message string) (string, error)
}

// Placeholder answers every message with a fixed echo. Chat sessions are not
// wired to the agent engine.
type Placeholder struct{}

func (Placeholder) Respond(_ context.Context, _ string, message string) (string, error) {
	return "This is a placeholder response to: " + message, nil
}
