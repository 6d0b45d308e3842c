package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a warden configuration from the given YAML file path.
// After parsing, it fills in defaults for anything the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./warden.yaml, ~/.warden/config.yaml.
// If none exists, a fully-defaulted config is returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"warden.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".warden", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	var cfg Config
	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultDataDir returns ~/.warden, creating it if needed.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".warden")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// applyDefaults fills zero values with the engine defaults. Environment
// variables WARDEN_AGENT_BINARY and WARDEN_DATA_DIR override the file.
func applyDefaults(cfg *Config) {
	w := &cfg.Warden

	if v := os.Getenv("WARDEN_AGENT_BINARY"); v != "" {
		w.AgentBinary = v
	}
	if v := os.Getenv("WARDEN_DATA_DIR"); v != "" {
		w.DataDir = v
	}

	if w.AgentBinary == "" {
		w.AgentBinary = "claude"
	}
	if w.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			w.DataDir = filepath.Join(home, ".warden")
		}
	}
	if w.MaxRetries <= 0 {
		w.MaxRetries = 3
	}

	if w.Process.MaxConcurrent <= 0 {
		w.Process.MaxConcurrent = 3
	}
	if w.Process.MaxRSSBytes <= 0 {
		w.Process.MaxRSSBytes = 4 << 30
	}
	if w.Process.MaxCPUPercent <= 0 {
		w.Process.MaxCPUPercent = 90
	}

	if w.Workspace.Root == "" && w.DataDir != "" {
		w.Workspace.Root = filepath.Join(w.DataDir, "workspaces")
	}
	if w.Workspace.MaxCount <= 0 {
		w.Workspace.MaxCount = 10
	}
	if w.Workspace.MaxTotalBytes <= 0 {
		w.Workspace.MaxTotalBytes = 10 << 30
	}

	if w.Web.Port <= 0 {
		w.Web.Port = 8088
	}
}
