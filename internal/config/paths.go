// Package config loads agentweb configuration and resolves its data paths.
package config

import (
	"os"
	"path/filepath"
)

// DataPath returns the root directory for agentweb data.
// It uses $AGENTWEB_PATH if set, otherwise defaults to ~/.agentweb.
func DataPath() string {
	if v := os.Getenv("AGENTWEB_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".agentweb")
	}
	return filepath.Join(home, ".agentweb")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(DataPath(), "config.jsonc")
}

// DotenvPath returns the path to the .env file.
func DotenvPath() string {
	return filepath.Join(DataPath(), ".env")
}

// LogsPath returns the directory holding per-session event audit files.
func LogsPath() string {
	return filepath.Join(DataPath(), "logs")
}

// HeartbeatPath returns the path of the server liveness file.
func HeartbeatPath() string {
	return filepath.Join(DataPath(), "heartbeat.json")
}
