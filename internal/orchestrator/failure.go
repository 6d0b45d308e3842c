package orchestrator

import (
	"fmt"
	"time"

	"github.com/tcooper/warden/internal/job"
	"github.com/tcooper/warden/internal/output"
	"github.com/tcooper/warden/internal/recovery"
	"github.com/tcooper/warden/internal/validate"
)

// PipelineResult is the success payload handed to the reporting layer.
type PipelineResult struct {
	JobID      string            `json:"job_id"`
	Status     job.Status        `json:"status"`
	Report     *output.Report    `json:"report"`
	Validation *validate.Report  `json:"validation"`
	LowQuality bool              `json:"low_quality,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Usage      job.ResourceUsage `json:"usage"`
	Duration   time.Duration     `json:"duration"`
	RetryCount int               `json:"retry_count"`
}

// StageTiming is one stage's contribution to the debug bundle.
type StageTiming struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
}

// Failure is the typed error a failed or killed pipeline returns. It
// carries everything the reporting layer renders: no stack traces in the
// primary message, the structured bundle holds the detail.
type Failure struct {
	JobID          string                  `json:"job_id"`
	Status         job.Status              `json:"status"` // failed or killed
	Stage          string                  `json:"stage"`
	Classification recovery.Classification `json:"classification"`
	Cause          error                   `json:"-"`
	CauseText      string                  `json:"cause"`
	RetryCount     int                     `json:"retry_count"`
	Duration       time.Duration           `json:"duration"`
	StageTimings   []StageTiming           `json:"stage_timings"`
	Usage          job.ResourceUsage       `json:"usage"`
	Recoveries     []job.RecoveryAttempt   `json:"recovery_attempts,omitempty"`
	Actions        []string                `json:"recommended_actions,omitempty"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("pipeline %s at stage %s: %s", f.Status, f.Stage, f.CauseText)
}

func (f *Failure) Unwrap() error { return f.Cause }

// recommendedActions maps a classification to operator guidance.
func recommendedActions(class recovery.Classification) []string {
	switch class.Type {
	case recovery.ConfigurationError:
		return []string{
			"verify the agent binary path and credentials in warden.yaml",
			"run `warden config validate`",
		}
	case recovery.ResourceLimit:
		return []string{
			"check host memory and disk headroom",
			"lower the concurrency ceiling or raise resource limits",
		}
	case recovery.APILimit:
		return []string{
			"wait for the upstream rate limit window to reset",
			"reduce request frequency or upgrade the account quota",
		}
	case recovery.Timeout:
		return []string{
			"raise the job timeout or split the task into smaller requests",
		}
	case recovery.NetworkError:
		return []string{
			"check connectivity to the repository host and upstream APIs",
			"retry the job once the network recovers",
		}
	default:
		return []string{
			"inspect the job event log: `warden status <job-id>`",
			"review agent stderr in the workspace logs directory",
		}
	}
}
