package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
warden:
  agent_binary: analyzer
  data_dir: /tmp/warden-test
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	w := cfg.Warden
	if w.AgentBinary != "analyzer" {
		t.Errorf("agent_binary = %q", w.AgentBinary)
	}
	if w.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", w.MaxRetries)
	}
	if w.Process.MaxConcurrent != 3 {
		t.Errorf("expected default max_concurrent 3, got %d", w.Process.MaxConcurrent)
	}
	if w.Workspace.Root != "/tmp/warden-test/workspaces" {
		t.Errorf("workspace root = %q", w.Workspace.Root)
	}
	if w.Workspace.MaxTotalBytes != 10<<30 {
		t.Errorf("max_total_bytes = %d", w.Workspace.MaxTotalBytes)
	}
}

func TestResolveDurations(t *testing.T) {
	path := writeConfig(t, `
warden:
  agent_binary: analyzer
  data_dir: /tmp/warden-test
  process:
    timeout: 10m
    silence_window: 2m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	r := cfg.Warden.Resolve()
	if r.ProcessTimeout != 10*time.Minute {
		t.Errorf("timeout = %s", r.ProcessTimeout)
	}
	if r.SilenceWindow != 2*time.Minute {
		t.Errorf("silence_window = %s", r.SilenceWindow)
	}
	// Unset fields resolve to defaults.
	if r.KillGrace != 10*time.Second {
		t.Errorf("kill_grace = %s", r.KillGrace)
	}
	if r.WorkspaceMaxAge != time.Hour {
		t.Errorf("max_age = %s", r.WorkspaceMaxAge)
	}
	if r.SweepInterval != 30*time.Minute {
		t.Errorf("sweep_interval = %s", r.SweepInterval)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "warden: [not a map")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing agent binary",
			cfg:     Config{Warden: Warden{DataDir: "/tmp", Workspace: Workspace{Root: "/tmp/ws"}}},
			wantErr: "warden.agent_binary",
		},
		{
			name: "bad duration",
			cfg: Config{Warden: Warden{
				AgentBinary: "a", DataDir: "/tmp",
				Workspace: Workspace{Root: "/tmp/ws"},
				Process:   Process{Timeout: "ten minutes"},
			}},
			wantErr: "warden.process.timeout",
		},
		{
			name: "bad port",
			cfg: Config{Warden: Warden{
				AgentBinary: "a", DataDir: "/tmp",
				Workspace: Workspace{Root: "/tmp/ws"},
				Web:       Web{Port: 70000},
			}},
			wantErr: "warden.web.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&tt.cfg)
			found := false
			for _, e := range errs {
				if e.Field == tt.wantErr {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.wantErr, errs)
			}
		})
	}
}

func TestValidateCleanConfig(t *testing.T) {
	path := writeConfig(t, `
warden:
  agent_binary: analyzer
  data_dir: /tmp/warden-test
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}
