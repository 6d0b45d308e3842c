package job

import (
	"time"
)

// RequestType identifies what kind of repository event triggered a job.
type RequestType string

const (
	RequestSingleIssue   RequestType = "single-issue"
	RequestPullRequest   RequestType = "pull-request"
	RequestInlineComment RequestType = "inline-comment"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusKilled    Status = "killed"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusKilled
}

// Stage names, in pipeline execution order.
const (
	StageWorkspaceSetup   = "workspace-setup"
	StageConfigGeneration = "config-generation"
	StageAgentExecution   = "agent-execution"
	StageOutputProcessing = "output-processing"
	StageReporting        = "reporting"
)

// StageOrder is the fixed sequence every pipeline runs.
var StageOrder = []string{
	StageWorkspaceSetup,
	StageConfigGeneration,
	StageAgentExecution,
	StageOutputProcessing,
	StageReporting,
}

// StageStatus is the lifecycle state of a single stage record.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageError      StageStatus = "error"
)

// StageRecord tracks one stage of a job's pipeline.
type StageRecord struct {
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	StartedAt time.Time   `json:"started_at,omitempty"`
	EndedAt   time.Time   `json:"ended_at,omitempty"`
	Err       string      `json:"error,omitempty"`
}

// Duration returns the elapsed time of a finished stage, or zero.
func (r *StageRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Params are the mutable execution knobs recovery strategies adjust
// between retries.
type Params struct {
	Timeout        time.Duration `json:"timeout"`
	FallbackConfig bool          `json:"fallback_config"`
	ReducedScope   bool          `json:"reduced_scope"`
	Simplified     bool          `json:"simplified"`
}

// ResourceUsage accumulates measured process resource consumption for a job.
type ResourceUsage struct {
	PeakRSSBytes int64         `json:"peak_rss_bytes"`
	CPUPercent   float64       `json:"cpu_percent"`
	WallTime     time.Duration `json:"wall_time"`
}

// RecoveryAttempt records one applied recovery strategy, for the debug bundle.
type RecoveryAttempt struct {
	Stage       string    `json:"stage"`
	Class       string    `json:"classification"`
	Strategy    string    `json:"strategy"`
	At          time.Time `json:"at"`
	Succeeded   bool      `json:"succeeded"`
	Description string    `json:"description,omitempty"`
}

// Request is the inbound job request handed to the orchestrator by the
// reporting layer.
type Request struct {
	Type            RequestType   `json:"type"`
	Repo            string        `json:"repo"`            // clone URL or local path; empty = no clone
	BaseBranch      string        `json:"base_branch"`     // defaults to main
	HeadBranch      string        `json:"head_branch"`     // PR contexts only
	ItemNumber      int           `json:"item_number"`     // issue or PR number
	TriggerContext  string        `json:"trigger_context"` // free-form, opaque to the core
	TimeoutOverride time.Duration `json:"timeout_override,omitempty"`
}

// Job is one supervised end-to-end pipeline execution.
type Job struct {
	ID               string            `json:"id"`
	Request          Request           `json:"request"`
	StartedAt        time.Time         `json:"started_at"`
	EndedAt          time.Time         `json:"ended_at,omitempty"`
	CurrentStage     string            `json:"current_stage"`
	RetryCount       int               `json:"retry_count"`
	MaxRetries       int               `json:"max_retries"`
	Stages           []StageRecord     `json:"stages"`
	Params           Params            `json:"params"`
	Usage            ResourceUsage     `json:"usage"`
	Status           Status            `json:"status"`
	RecoveryAttempts []RecoveryAttempt `json:"recovery_attempts,omitempty"`
	WorkspaceID      string            `json:"workspace_id,omitempty"`
}

// New creates a running job with the standard stage sequence pending.
func New(id string, req Request, maxRetries int, defaultTimeout time.Duration) *Job {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := defaultTimeout
	if req.TimeoutOverride > 0 {
		timeout = req.TimeoutOverride
	}
	stages := make([]StageRecord, len(StageOrder))
	for i, name := range StageOrder {
		stages[i] = StageRecord{Name: name, Status: StagePending}
	}
	return &Job{
		ID:           id,
		Request:      req,
		StartedAt:    time.Now().UTC(),
		CurrentStage: StageOrder[0],
		MaxRetries:   maxRetries,
		Stages:       stages,
		Params:       Params{Timeout: timeout},
		Status:       StatusRunning,
	}
}

// Stage returns the record for the named stage, or nil.
func (j *Job) Stage(name string) *StageRecord {
	for i := range j.Stages {
		if j.Stages[i].Name == name {
			return &j.Stages[i]
		}
	}
	return nil
}

// StageIndex returns the position of a stage in the fixed order, or -1.
func StageIndex(name string) int {
	for i, s := range StageOrder {
		if s == name {
			return i
		}
	}
	return -1
}

// Summary is the compact terminal record kept in history after a job ends.
type Summary struct {
	ID          string        `json:"id"`
	Type        RequestType   `json:"type"`
	Status      Status        `json:"status"`
	Stage       string        `json:"stage"`
	RetryCount  int           `json:"retry_count"`
	Duration    time.Duration `json:"duration"`
	Recoveries  int           `json:"recoveries"`
	FinishedAt  time.Time     `json:"finished_at"`
	FailureKind string        `json:"failure_kind,omitempty"`
}
