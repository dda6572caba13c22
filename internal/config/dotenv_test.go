package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotenv(t *testing.T) {
	content := `# engine credentials
AGENTWEB_T_KEY=abc123
export AGENTWEB_T_EXPORTED=yes

AGENTWEB_T_QUOTED="quoted value"
AGENTWEB_T_SINGLE='single'
AGENTWEB_T_SPACED = spaced
`
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	keys := []string{"AGENTWEB_T_KEY", "AGENTWEB_T_EXPORTED", "AGENTWEB_T_QUOTED", "AGENTWEB_T_SINGLE", "AGENTWEB_T_SPACED"}
	for _, k := range keys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})

	if err := LoadDotenv(path); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key, want string
	}{
		{"AGENTWEB_T_KEY", "abc123"},
		{"AGENTWEB_T_EXPORTED", "yes"},
		{"AGENTWEB_T_QUOTED", "quoted value"},
		{"AGENTWEB_T_SINGLE", "single"},
		{"AGENTWEB_T_SPACED", "spaced"},
	}
	for _, tt := range tests {
		if got := os.Getenv(tt.key); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLoadDotenvNoOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(`AGENTWEB_T_EXISTING=new`), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AGENTWEB_T_EXISTING", "original")

	if err := LoadDotenv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("AGENTWEB_T_EXISTING"); got != "original" {
		t.Errorf("expected existing var to be preserved, got %q", got)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	if err := LoadDotenv("/nonexistent/.env"); err != nil {
		t.Errorf("missing file should be silently ignored, got: %v", err)
	}
}

func TestParseDotenvLine_Skips(t *testing.T) {
	for _, line := range []string{"", "   ", "# comment", "NOEQUALS", "=value"} {
		if _, _, ok := parseDotenvLine(line); ok {
			t.Errorf("parseDotenvLine(%q) should be skipped", line)
		}
	}
}
