// Package api is an HTTP client for the agentweb REST and stream endpoints.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dohr-michael/agentweb/internal/engine"
	"github.com/dohr-michael/agentweb/internal/events"
	"github.com/dohr-michael/agentweb/internal/sessions"
	"github.com/dohr-michael/agentweb/internal/workspace"
)

// Error is a non-2xx response from the server.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

// Client talks to one agentweb server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL (e.g. "http://127.0.0.1:8000").
// A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Health returns the health message.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ValidateConfig checks provider settings.
func (c *Client) ValidateConfig(ctx context.Context, spec sessions.TaskSpec) (engine.Validation, error) {
	var out engine.Validation
	err := c.do(ctx, http.MethodPost, "/api/validate-config", spec, &out)
	return out, err
}

// ExecuteTask starts a task and returns its session id.
func (c *Client) ExecuteTask(ctx context.Context, spec sessions.TaskSpec) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/execute-task", spec, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// Sessions lists execution sessions, newest first.
func (c *Client) Sessions(ctx context.Context) ([]sessions.Summary, error) {
	var out []sessions.Summary
	err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out)
	return out, err
}

// Session returns one execution session.
func (c *Client) Session(ctx context.Context, id string) (sessions.Summary, error) {
	var out sessions.Summary
	err := c.do(ctx, http.MethodGet, "/api/session/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Files lists a session workspace, optionally filtered by a glob pattern.
func (c *Client) Files(ctx context.Context, id, pattern string) ([]workspace.File, error) {
	path := "/api/workspace/" + url.PathEscape(id) + "/files"
	if pattern != "" {
		path += "?pattern=" + url.QueryEscape(pattern)
	}
	var out struct {
		Files []workspace.File `json:"files"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Files, err
}

// File returns the text content of a workspace file. relPath is a
// slash-separated path as returned by Files.
func (c *Client) File(ctx context.Context, id, relPath string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	path := "/api/workspace/" + url.PathEscape(id) + "/file/" + (&url.URL{Path: relPath}).EscapedPath()
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Content, err
}

// NewChatSession creates a chat session.
func (c *Client) NewChatSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/sessions/new", nil, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// Stream follows a session's event stream, calling fn for each event until
// session_complete, an error event for an unknown session, or ctx is done.
// The terminal marker is passed to fn too.
func (c *Client) Stream(ctx context.Context, id string, fn func(events.Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/session/"+url.PathEscape(id)+"/stream", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return readError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var e events.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return fmt.Errorf("decode stream frame: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
		if e.Type == events.KindSessionComplete {
			return nil
		}
		if e.Type == events.KindError && e.Message == "Session not found" {
			return &Error{StatusCode: http.StatusNotFound, Detail: e.Message}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return ctx.Err()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return readError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readError(resp *http.Response) error {
	var body struct {
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &body); err != nil || body.Detail == "" {
		body.Detail = strings.TrimSpace(string(data))
	}
	return &Error{StatusCode: resp.StatusCode, Detail: body.Detail}
}
