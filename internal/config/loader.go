package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// DefaultAllowedOrigins are the browser dev servers the web clients run on.
var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"https://localhost:5173",
	"http://127.0.0.1:5173",
	"http://localhost:3000",
}

// Load reads a config file, expands ${{ .Env.VAR }} templates, unmarshals it
// into Config and applies defaults. Files ending in .yaml or .yml are parsed as
// YAML; everything else as JSONC.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Templates live inside string values, so expand before parsing.
	expanded := []byte(expandEnvTemplates(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml config: %w", err)
		}
	default:
		std, err := hujson.Standardize(expanded)
		if err != nil {
			return nil, fmt.Errorf("standardize jsonc: %w", err)
		}
		if err := json.Unmarshal(std, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// ApplyDefaults fills in zero-value fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = append([]string(nil), DefaultAllowedOrigins...)
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = Duration(10 * time.Second)
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = filepath.Join(DataPath(), "workspaces")
	}
	if cfg.Stream.PollInterval == 0 {
		cfg.Stream.PollInterval = Duration(500 * time.Millisecond)
	}
	if cfg.Runner.StepDelay == 0 {
		cfg.Runner.StepDelay = Duration(time.Second)
	}
	if cfg.Runner.Engine.Timeout == 0 {
		cfg.Runner.Engine.Timeout = Duration(5 * time.Minute)
	}
	if cfg.Chat.DBPath == "" {
		cfg.Chat.DBPath = filepath.Join(DataPath(), "chat.db")
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "*/15 * * * *"
	}
	if cfg.Retention.MaxAge == 0 {
		cfg.Retention.MaxAge = Duration(24 * time.Hour)
	}
}
