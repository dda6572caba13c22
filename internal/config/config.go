package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for agentweb.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Workspace WorkspaceConfig `json:"workspace" yaml:"workspace"`
	Stream    StreamConfig    `json:"stream" yaml:"stream"`
	Runner    RunnerConfig    `json:"runner" yaml:"runner"`
	Chat      ChatConfig      `json:"chat" yaml:"chat"`
	Retention RetentionConfig `json:"retention" yaml:"retention"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	ShutdownGrace  Duration `json:"shutdown_grace,omitempty" yaml:"shutdown_grace,omitempty"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WorkspaceConfig controls where per-session workspaces are allocated.
type WorkspaceConfig struct {
	Root string `json:"root" yaml:"root"` // default: $AGENTWEB_PATH/workspaces
}

// StreamConfig configures the pull-mode event stream.
type StreamConfig struct {
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval"`
}

// RunnerConfig configures the task runner.
type RunnerConfig struct {
	StepDelay Duration     `json:"step_delay" yaml:"step_delay"` // delay between simulated steps
	Engine    EngineConfig `json:"engine" yaml:"engine"`
}

// EngineConfig selects the agent engine. Disabled means every task runs the
// deterministic simulation.
type EngineConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	BaseURL   string   `json:"base_url,omitempty" yaml:"base_url,omitempty"` // overrides the provider default
	Timeout   Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// ChatConfig configures the durable chat store.
type ChatConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"` // default: $AGENTWEB_PATH/chat.db
}

// RetentionConfig configures the terminal-session sweeper. Off by default:
// sessions otherwise live until process restart.
type RetentionConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Schedule string   `json:"schedule" yaml:"schedule"` // 5-field cron expression
	MaxAge   Duration `json:"max_age" yaml:"max_age"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// On reports whether metrics are served. Unset means enabled.
func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

// Duration wraps time.Duration for JSON and YAML unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}
