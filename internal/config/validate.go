package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	w := cfg.Warden

	if w.AgentBinary == "" {
		errs = append(errs, ValidationError{Field: "warden.agent_binary", Message: "is required"})
	}
	if w.DataDir == "" {
		errs = append(errs, ValidationError{Field: "warden.data_dir", Message: "is required"})
	}
	if w.Workspace.Root == "" {
		errs = append(errs, ValidationError{Field: "warden.workspace.root", Message: "is required"})
	}

	durations := []struct {
		field string
		value string
	}{
		{"warden.process.timeout", w.Process.Timeout},
		{"warden.process.silence_window", w.Process.SilenceWindow},
		{"warden.process.kill_grace", w.Process.KillGrace},
		{"warden.process.sample_interval", w.Process.SampleInterval},
		{"warden.workspace.max_age", w.Workspace.MaxAge},
		{"warden.workspace.sweep_interval", w.Workspace.SweepInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = append(errs, ValidationError{
				Field:   d.field,
				Message: fmt.Sprintf("invalid duration %q", d.value),
			})
		}
	}

	if w.Process.MaxConcurrent < 0 {
		errs = append(errs, ValidationError{Field: "warden.process.max_concurrent", Message: "must be positive"})
	}
	if w.Workspace.MaxCount < 0 {
		errs = append(errs, ValidationError{Field: "warden.workspace.max_count", Message: "must be positive"})
	}
	if w.Web.Port < 0 || w.Web.Port > 65535 {
		errs = append(errs, ValidationError{Field: "warden.web.port", Message: "must be a valid port"})
	}

	return errs
}
