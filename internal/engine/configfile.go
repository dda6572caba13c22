package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is written into every workspace an engine runs in.
const ConfigFileName = "agent_config.json"

// FileConfig is the on-disk description of the run. The credential is never
// written: the engine receives it in memory.
type FileConfig struct {
	DefaultProvider string                    `json:"default_provider"`
	MaxSteps        int                       `json:"max_steps"`
	ModelProviders  map[string]ProviderConfig `json:"model_providers"`
}

// ProviderConfig holds the generation settings of one provider.
type ProviderConfig struct {
	Model             string  `json:"model"`
	APIKey            string  `json:"api_key"`
	BaseURL           string  `json:"base_url,omitempty"`
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	TopK              int     `json:"top_k"`
	ParallelToolCalls bool    `json:"parallel_tool_calls"`
	MaxRetries        int     `json:"max_retries"`
}

// ConfigFilePath returns where the run description of a workspace lives.
func ConfigFilePath(dir string) string {
	return filepath.Join(dir, ConfigFileName)
}

// WriteConfigFile stores the run description of req at path.
func WriteConfigFile(path string, req Request) error {
	maxTokens := req.Provider.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	apiKey := ""
	if req.Provider.APIKey != "" {
		apiKey = "REDACTED"
	}

	cfg := FileConfig{
		DefaultProvider: req.Provider.Driver,
		MaxSteps:        maxSteps,
		ModelProviders: map[string]ProviderConfig{
			req.Provider.Driver: {
				Model:       req.Provider.Model,
				APIKey:      apiKey,
				BaseURL:     req.Provider.BaseURL,
				MaxTokens:   maxTokens,
				Temperature: 0.5,
				TopP:        1,
				MaxRetries:  10,
			},
		},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal engine config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write engine config: %w", err)
	}
	return nil
}
