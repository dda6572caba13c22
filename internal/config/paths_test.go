package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataPath_Default(t *testing.T) {
	t.Setenv("AGENTWEB_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := DataPath()
	want := filepath.Join(home, ".agentweb")
	if got != want {
		t.Errorf("DataPath() = %q, want %q", got, want)
	}
}

func TestDataPath_EnvOverride(t *testing.T) {
	t.Setenv("AGENTWEB_PATH", "/tmp/custom-agentweb")

	got := DataPath()
	want := "/tmp/custom-agentweb"
	if got != want {
		t.Errorf("DataPath() = %q, want %q", got, want)
	}
}

func TestDerivedPaths(t *testing.T) {
	t.Setenv("AGENTWEB_PATH", "/tmp/test-agentweb")

	cases := map[string]string{
		"config":    ConfigPath(),
		"dotenv":    DotenvPath(),
		"logs":      LogsPath(),
		"heartbeat": HeartbeatPath(),
	}
	want := map[string]string{
		"config":    "/tmp/test-agentweb/config.jsonc",
		"dotenv":    "/tmp/test-agentweb/.env",
		"logs":      "/tmp/test-agentweb/logs",
		"heartbeat": "/tmp/test-agentweb/heartbeat.json",
	}
	for name, got := range cases {
		if got != want[name] {
			t.Errorf("%s path = %q, want %q", name, got, want[name])
		}
	}
}
