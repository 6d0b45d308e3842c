package config

import "time"

// Config is the top-level structure parsed from warden YAML.
type Config struct {
	Warden Warden `yaml:"warden"`
}

// Warden holds all engine settings: agent invocation, limits, and quotas.
type Warden struct {
	AgentBinary string   `yaml:"agent_binary"`
	AgentArgs   []string `yaml:"agent_args"`
	DataDir     string   `yaml:"data_dir"` // defaults to ~/.warden

	MaxRetries int `yaml:"max_retries"` // pipeline-level retry budget, default 3

	Process   Process   `yaml:"process"`
	Workspace Workspace `yaml:"workspace"`
	Web       Web       `yaml:"web"`
}

// Process configures the subprocess supervisor.
type Process struct {
	MaxConcurrent  int     `yaml:"max_concurrent"`  // default 3
	Timeout        string  `yaml:"timeout"`         // default 30m
	SilenceWindow  string  `yaml:"silence_window"`  // default 5m
	KillGrace      string  `yaml:"kill_grace"`      // default 10s
	SampleInterval string  `yaml:"sample_interval"` // default 5s
	MaxRSSBytes    int64   `yaml:"max_rss_bytes"`   // default 4GiB
	MaxCPUPercent  float64 `yaml:"max_cpu_percent"` // default 90
}

// Workspace configures workspace quotas and the age-out sweeper.
type Workspace struct {
	Root          string `yaml:"root"`            // defaults to <data_dir>/workspaces
	MaxCount      int    `yaml:"max_count"`       // default 10
	MaxTotalBytes int64  `yaml:"max_total_bytes"` // default 10GiB
	MaxAge        string `yaml:"max_age"`         // default 1h
	SweepInterval string `yaml:"sweep_interval"`  // default 30m
}

// Web configures the read-only status API.
type Web struct {
	Port int `yaml:"port"` // default 8088
}

// Resolved holds the duration settings parsed from their string fields.
type Resolved struct {
	ProcessTimeout  time.Duration
	SilenceWindow   time.Duration
	KillGrace       time.Duration
	SampleInterval  time.Duration
	WorkspaceMaxAge time.Duration
	SweepInterval   time.Duration
}

// Resolve parses the duration strings, falling back to defaults for empty
// or malformed values.
func (w *Warden) Resolve() Resolved {
	return Resolved{
		ProcessTimeout:  parseDuration(w.Process.Timeout, 30*time.Minute),
		SilenceWindow:   parseDuration(w.Process.SilenceWindow, 5*time.Minute),
		KillGrace:       parseDuration(w.Process.KillGrace, 10*time.Second),
		SampleInterval:  parseDuration(w.Process.SampleInterval, 5*time.Second),
		WorkspaceMaxAge: parseDuration(w.Workspace.MaxAge, time.Hour),
		SweepInterval:   parseDuration(w.Workspace.SweepInterval, 30*time.Minute),
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
