// Package orchestrator drives a job through its pipeline stages, owning
// retry and recovery decisions. Leaf components raise errors; only the
// engine decides what happens next.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tcooper/warden/internal/configgen"
	"github.com/tcooper/warden/internal/db"
	"github.com/tcooper/warden/internal/job"
	"github.com/tcooper/warden/internal/output"
	"github.com/tcooper/warden/internal/process"
	"github.com/tcooper/warden/internal/recovery"
	"github.com/tcooper/warden/internal/validate"
	"github.com/tcooper/warden/internal/workspace"
)

// Allocator provisions and reclaims per-job workspaces.
type Allocator interface {
	Create(ctx context.Context, jobID string, wctx workspace.Context) (*workspace.Workspace, error)
	Cleanup(id string) (bool, error)
}

// Runner executes the agent subprocess under limits.
type Runner interface {
	Execute(ctx context.Context, spec process.Spec) (*process.Result, error)
}

// Options configures an Engine.
type Options struct {
	Workspaces Allocator
	Processes  Runner
	Producer   configgen.Producer
	Store      *job.Store
	Events     *db.DB // nil disables the event log
	Logger     *log.Logger

	AgentBinary    string
	AgentArgs      []string
	MaxRetries     int
	DefaultTimeout time.Duration
}

// Engine composes the pipeline components and runs jobs end to end.
type Engine struct {
	workspaces Allocator
	processes  Runner
	producer   configgen.Producer
	store      *job.Store
	events     *db.DB
	logger     *log.Logger
	metrics    *Metrics

	agentBinary    string
	agentArgs      []string
	maxRetries     int
	defaultTimeout time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	kills   map[string]bool
}

// New creates an Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[orchestrator] ", log.LstdFlags)
	}
	producer := opts.Producer
	if producer == nil {
		producer = configgen.TemplateProducer{}
	}
	return &Engine{
		workspaces:     opts.Workspaces,
		processes:      opts.Processes,
		producer:       producer,
		store:          opts.Store,
		events:         opts.Events,
		logger:         logger,
		metrics:        &Metrics{},
		agentBinary:    opts.AgentBinary,
		agentArgs:      opts.AgentArgs,
		maxRetries:     opts.MaxRetries,
		defaultTimeout: opts.DefaultTimeout,
		cancels:        make(map[string]context.CancelFunc),
		kills:          make(map[string]bool),
	}
}

// Metrics exposes the engine's outcome counters.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// run carries per-execution state between stages.
type run struct {
	id           string
	ws           *workspace.Workspace
	configPath   string
	warnings     []string
	proc         *process.Result
	report       *output.Report
	validation   *validate.Report
	lowQuality   bool
	agentRetried bool
}

// ExecutePipeline runs one job through the stage sequence. The returned
// error, when non-nil, is always a *Failure carrying the full diagnostic
// bundle; the engine never panics outward.
func (e *Engine) ExecutePipeline(ctx context.Context, req job.Request) (*PipelineResult, error) {
	id, failure := e.register(req)
	if failure != nil {
		return nil, failure
	}
	return e.runPipeline(ctx, id, req)
}

// Submit registers the job and runs its pipeline in the background,
// returning the job id immediately so callers can poll or kill it.
func (e *Engine) Submit(req job.Request) (string, error) {
	id, failure := e.register(req)
	if failure != nil {
		return "", failure
	}
	go func() {
		_, _ = e.runPipeline(context.Background(), id, req)
	}()
	return id, nil
}

// register creates the job and places it in the active store so it is
// observable before the first stage runs.
func (e *Engine) register(req job.Request) (string, *Failure) {
	id := uuid.NewString()
	j := job.New(id, req, e.maxRetries, e.defaultTimeout)
	if err := e.store.Put(j); err != nil {
		return "", &Failure{
			JobID:     id,
			Status:    job.StatusFailed,
			CauseText: err.Error(),
			Cause:     err,
			Actions:   recommendedActions(recovery.Classification{}),
		}
	}
	return id, nil
}

func (e *Engine) runPipeline(ctx context.Context, id string, req job.Request) (*PipelineResult, error) {
	jctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.cancels, id)
		delete(e.kills, id)
		e.mu.Unlock()
	}()

	e.metrics.incStarted()
	e.logEvent(id, "job_started", "", 0, string(req.Type))
	e.logger.Printf("job %s started (%s)", id, req.Type)

	r := &run{id: id}
	defer e.teardown(r)

	idx := 0
	for {
		failedStage, err := e.runFrom(jctx, r, idx)
		if err == nil {
			return e.finishCompleted(r)
		}

		if e.killRequested(id) || errors.Is(err, context.Canceled) {
			return nil, e.finish(r, job.StatusKilled, failedStage, err,
				recovery.Classification{Type: recovery.UnknownError, Causes: []string{"job was killed"}})
		}

		var fatal *validate.FatalError
		if errors.As(err, &fatal) {
			// Security findings are never retried.
			return nil, e.finish(r, job.StatusFailed, failedStage, err,
				recovery.Classification{Type: recovery.UnknownError, Causes: []string{"output failed security validation"}})
		}

		class := recovery.Classify(err)
		strat := recovery.StrategyFor(class)

		cur, getErr := e.store.Get(id)
		if getErr != nil || cur.RetryCount >= cur.MaxRetries || !class.Recoverable || !strat.Applicable {
			return nil, e.finish(r, job.StatusFailed, failedStage, err, class)
		}

		e.logger.Printf("job %s recovering at %s: %s", id, failedStage, strat.Description)
		e.logEvent(id, "recovery_attempt", failedStage, cur.RetryCount+1, strat.Description)

		// Apply works on a detached copy: cooldown strategies block, and
		// the store lock must not be held across a wait.
		applyErr := strat.Apply(jctx, cur)
		attempt := job.RecoveryAttempt{
			Stage:       failedStage,
			Class:       string(class.Type),
			Strategy:    strat.Description,
			At:          time.Now().UTC(),
			Succeeded:   applyErr == nil,
			Description: err.Error(),
		}
		updateErr := e.store.Update(id, func(j *job.Job) {
			j.Params = cur.Params
			j.RetryCount++
			j.RecoveryAttempts = append(j.RecoveryAttempts, attempt)
		})
		if applyErr != nil {
			if e.killRequested(id) || errors.Is(applyErr, context.Canceled) {
				return nil, e.finish(r, job.StatusKilled, failedStage, err, class)
			}
			return nil, e.finish(r, job.StatusFailed, failedStage, err, class)
		}
		if updateErr != nil {
			return nil, e.finish(r, job.StatusFailed, failedStage, err, class)
		}

		e.metrics.incRecovered()
		r.agentRetried = false // each pipeline attempt gets one local retry
		idx = job.StageIndex(failedStage)
		e.resetStagesFrom(id, idx)
	}
}

// Kill cancels a running job. The job finishes as killed, not failed, and
// its workspace is still cleaned up by the pipeline goroutine.
func (e *Engine) Kill(id string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	if ok {
		e.kills[id] = true
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active job %s", id)
	}
	cancel()
	e.logEvent(id, "kill_requested", "", 0, "")
	return nil
}

func (e *Engine) killRequested(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kills[id]
}

// runFrom executes stages starting at idx, returning the failed stage name
// and its error, or "" and nil when the sequence completed.
func (e *Engine) runFrom(ctx context.Context, r *run, idx int) (string, error) {
	for _, name := range job.StageOrder[idx:] {
		if err := e.runStage(ctx, r, name); err != nil {
			return name, err
		}
	}
	return "", nil
}

// runStage marks the stage in progress, invokes it, and attempts
// stage-local recovery before letting the error escape.
func (e *Engine) runStage(ctx context.Context, r *run, name string) error {
	e.store.Update(r.id, func(j *job.Job) {
		j.CurrentStage = name
		if rec := j.Stage(name); rec != nil {
			rec.Status = job.StageInProgress
			rec.StartedAt = time.Now().UTC()
			rec.EndedAt = time.Time{}
			rec.Err = ""
		}
	})
	e.logEvent(r.id, "stage_started", name, 0, "")

	err := e.invokeStage(ctx, r, name)
	if err != nil && ctx.Err() == nil {
		if recErr := e.stageLocalRecovery(ctx, r, name, err); recErr == nil {
			e.logEvent(r.id, "stage_recovered_locally", name, 0, err.Error())
			err = nil
		}
	}

	e.store.Update(r.id, func(j *job.Job) {
		rec := j.Stage(name)
		if rec == nil {
			return
		}
		rec.EndedAt = time.Now().UTC()
		if err != nil {
			rec.Status = job.StageError
			rec.Err = err.Error()
		} else {
			rec.Status = job.StageCompleted
		}
	})

	if err != nil {
		e.logEvent(r.id, "stage_failed", name, 0, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	e.logEvent(r.id, "stage_completed", name, 0, "")
	return nil
}

func (e *Engine) invokeStage(ctx context.Context, r *run, name string) error {
	switch name {
	case job.StageWorkspaceSetup:
		return e.stageWorkspaceSetup(ctx, r)
	case job.StageConfigGeneration:
		return e.stageConfigGeneration(ctx, r)
	case job.StageAgentExecution:
		return e.stageAgentExecution(ctx, r)
	case job.StageOutputProcessing:
		return e.stageOutputProcessing(ctx, r)
	case job.StageReporting:
		return e.stageReporting(ctx, r)
	default:
		return fmt.Errorf("unknown stage %q", name)
	}
}

// stageLocalRecovery tries the per-stage fallback. A nil return means the
// stage should be treated as completed.
func (e *Engine) stageLocalRecovery(ctx context.Context, r *run, name string, cause error) error {
	switch name {
	case job.StageConfigGeneration:
		j, err := e.store.Get(r.id)
		if err != nil {
			return cause
		}
		path, warns, err := configgen.Minimal().Produce(ctx, j, r.ws)
		if err != nil {
			return cause
		}
		r.configPath = path
		r.warnings = append(r.warnings, warns...)
		return nil
	case job.StageAgentExecution:
		if r.agentRetried {
			return cause
		}
		// Spawn and concurrency failures would fail identically on an
		// immediate retry; leave those to pipeline-level recovery.
		var spawnErr *process.SpawnError
		var concErr *process.ConcurrencyLimitError
		if errors.As(cause, &spawnErr) || errors.As(cause, &concErr) {
			return cause
		}
		r.agentRetried = true
		e.store.Update(r.id, func(j *job.Job) {
			j.Params.Timeout = j.Params.Timeout / 2
			j.Params.ReducedScope = true
		})
		return e.stageAgentExecution(ctx, r)
	case job.StageOutputProcessing:
		return e.partialExtraction(r, cause)
	default:
		return cause
	}
}

func (e *Engine) stageWorkspaceSetup(ctx context.Context, r *run) error {
	j, err := e.store.Get(r.id)
	if err != nil {
		return err
	}
	ws, err := e.workspaces.Create(ctx, r.id, workspace.Context{
		Repo:       j.Request.Repo,
		BaseBranch: j.Request.BaseBranch,
		HeadBranch: j.Request.HeadBranch,
	})
	if err != nil {
		return err
	}
	r.ws = ws
	return e.store.Update(r.id, func(j *job.Job) { j.WorkspaceID = ws.ID })
}

func (e *Engine) stageConfigGeneration(ctx context.Context, r *run) error {
	j, err := e.store.Get(r.id)
	if err != nil {
		return err
	}
	path, warns, err := e.producer.Produce(ctx, j, r.ws)
	if err != nil {
		return err
	}
	r.configPath = path
	r.warnings = append(r.warnings, warns...)
	return nil
}

func (e *Engine) stageAgentExecution(ctx context.Context, r *run) error {
	j, err := e.store.Get(r.id)
	if err != nil {
		return err
	}

	spec := process.Spec{
		Command: e.agentBinary,
		Args:    e.agentArgs,
		Dir:     workDir(r.ws),
		Env: []string{
			"WARDEN_CONFIG_FILE=" + r.configPath,
			"WARDEN_OUTPUT_DIR=" + r.ws.OutputDir,
			"WARDEN_REPO_DIR=" + r.ws.RepoDir,
		},
		Timeout: j.Params.Timeout,
	}

	// Tee live output into the workspace logs for post-mortems.
	stdoutLog, stderrLog := e.openLogTees(r.ws)
	if stdoutLog != nil {
		defer stdoutLog.Close()
		spec.StdoutTee = stdoutLog
	}
	if stderrLog != nil {
		defer stderrLog.Close()
		spec.StderrTee = stderrLog
	}

	res, execErr := e.processes.Execute(ctx, spec)
	if res != nil {
		r.proc = res
		e.store.Update(r.id, func(j *job.Job) {
			if res.Usage.PeakRSSBytes > j.Usage.PeakRSSBytes {
				j.Usage.PeakRSSBytes = res.Usage.PeakRSSBytes
			}
			j.Usage.CPUPercent = res.Usage.CPUPercent
			j.Usage.WallTime += res.Duration
		})
		if e.events != nil {
			if err := e.events.RecordProcessRun(r.id, res.ExitCode, int(res.Duration.Milliseconds()),
				res.Usage.PeakRSSBytes, res.Usage.CPUPercent, res.TermReason); err != nil {
				e.logger.Printf("record process run: %v", err)
			}
		}
	}
	if execErr != nil {
		return execErr
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("agent exited %d: %s", res.ExitCode, tail(res.Stderr, 300))
	}
	return nil
}

func (e *Engine) stageOutputProcessing(ctx context.Context, r *run) error {
	exit := 0
	if r.proc != nil {
		exit = r.proc.ExitCode
	}
	report := output.ParseDir(output.ProcessInfo{ExitCode: exit}, r.ws.OutputDir)
	if len(report.Outputs) == 0 {
		return errors.New("agent wrote no output artifacts")
	}
	r.report = report
	return nil
}

// partialExtraction salvages captured stdout as a raw output when the
// agent wrote nothing to its output directory.
func (e *Engine) partialExtraction(r *run, cause error) error {
	if r.proc == nil || strings.TrimSpace(r.proc.Stdout) == "" {
		return cause
	}
	first := r.proc.Stdout
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	r.report = &output.Report{
		Outputs: []output.Output{{
			Name:      "stdout",
			Kind:      output.KindRaw,
			Summary:   strings.TrimSpace(first),
			Raw:       r.proc.Stdout,
			SizeBytes: int64(len(r.proc.Stdout)),
		}},
		Metadata: output.Metadata{
			OutputDir: r.ws.OutputDir,
			FileCount: 0,
			ExitCode:  r.proc.ExitCode,
			ParsedAt:  time.Now().UTC(),
		},
	}
	r.warnings = append(r.warnings, "no output artifacts; extracted partial result from stdout")
	return nil
}

func (e *Engine) stageReporting(ctx context.Context, r *run) error {
	j, err := e.store.Get(r.id)
	if err != nil {
		return err
	}
	exit := 0
	if r.proc != nil {
		exit = r.proc.ExitCode
	}
	v := validate.Validate(r.report, validate.Context{
		RequestType: j.Request.Type,
		ExitCode:    exit,
		Duration:    time.Since(j.StartedAt),
	})
	r.validation = v

	if e.events != nil {
		if err := e.events.RecordValidation(r.id, v.Valid,
			strings.Join(v.Errors, "; "), strings.Join(v.Warnings, "; ")); err != nil {
			e.logger.Printf("record validation: %v", err)
		}
	}

	if v.SecurityFatal {
		return &validate.FatalError{Errors: v.Errors}
	}
	// Non-security validation problems degrade quality without failing
	// the pipeline.
	r.lowQuality = !v.Valid
	return nil
}

func (e *Engine) finishCompleted(r *run) (*PipelineResult, error) {
	summary, err := e.store.Finalize(r.id, job.StatusCompleted, "")
	if err != nil {
		e.logger.Printf("finalize %s: %v", r.id, err)
	}
	e.metrics.incCompleted()
	e.logEvent(r.id, "job_completed", "", summary.RetryCount, "")
	e.logger.Printf("job %s completed in %s", r.id, summary.Duration.Round(time.Millisecond))

	res := &PipelineResult{
		JobID:      r.id,
		Status:     job.StatusCompleted,
		Report:     r.report,
		Validation: r.validation,
		LowQuality: r.lowQuality,
		Warnings:   r.warnings,
		Duration:   summary.Duration,
		RetryCount: summary.RetryCount,
	}
	if r.proc != nil {
		res.Usage = job.ResourceUsage{
			PeakRSSBytes: r.proc.Usage.PeakRSSBytes,
			CPUPercent:   r.proc.Usage.CPUPercent,
			WallTime:     r.proc.Duration,
		}
	}
	return res, nil
}

// finish finalizes a failed or killed job and builds its Failure bundle.
func (e *Engine) finish(r *run, status job.Status, stage string, cause error, class recovery.Classification) *Failure {
	f := &Failure{
		JobID:          r.id,
		Status:         status,
		Stage:          stage,
		Classification: class,
		Cause:          cause,
		Actions:        recommendedActions(class),
	}
	if cause != nil {
		f.CauseText = cause.Error()
	}

	if j, err := e.store.Get(r.id); err == nil {
		f.RetryCount = j.RetryCount
		f.Usage = j.Usage
		f.Recoveries = j.RecoveryAttempts
		for _, rec := range j.Stages {
			f.StageTimings = append(f.StageTimings, StageTiming{
				Name:     rec.Name,
				Status:   string(rec.Status),
				Duration: rec.Duration(),
			})
		}
	}

	summary, err := e.store.Finalize(r.id, status, string(class.Type))
	if err != nil {
		e.logger.Printf("finalize %s: %v", r.id, err)
	} else {
		f.Duration = summary.Duration
	}

	switch status {
	case job.StatusKilled:
		e.metrics.incKilled()
	default:
		e.metrics.incFailed()
	}
	e.logEvent(r.id, "job_"+string(status), stage, f.RetryCount, f.CauseText)
	e.logger.Printf("job %s %s at %s: %s", r.id, status, stage, f.CauseText)
	return f
}

// teardown releases the job's workspace. Cleanup failures are logged, not
// returned: the job outcome is already decided by now.
func (e *Engine) teardown(r *run) {
	if r.ws == nil {
		return
	}
	if _, err := e.workspaces.Cleanup(r.ws.ID); err != nil {
		e.logger.Printf("cleanup workspace %s: %v", r.ws.ID, err)
	}
}

func (e *Engine) resetStagesFrom(id string, idx int) {
	e.store.Update(id, func(j *job.Job) {
		for i := idx; i < len(j.Stages); i++ {
			j.Stages[i].Status = job.StagePending
			j.Stages[i].StartedAt = time.Time{}
			j.Stages[i].EndedAt = time.Time{}
			j.Stages[i].Err = ""
		}
	})
}

func (e *Engine) logEvent(jobID, event, stage string, attempt int, detail string) {
	if e.events == nil {
		return
	}
	if err := e.events.LogJobEvent(jobID, event, stage, attempt, detail); err != nil {
		e.logger.Printf("log event %s: %v", event, err)
	}
}

func (e *Engine) openLogTees(ws *workspace.Workspace) (*os.File, *os.File) {
	stdout, err := os.OpenFile(filepath.Join(ws.LogsDir, "agent-stdout.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		e.logger.Printf("open stdout log: %v", err)
		stdout = nil
	}
	stderr, err := os.OpenFile(filepath.Join(ws.LogsDir, "agent-stderr.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		e.logger.Printf("open stderr log: %v", err)
		stderr = nil
	}
	return stdout, stderr
}

func workDir(ws *workspace.Workspace) string {
	if _, err := os.Stat(filepath.Join(ws.RepoDir, ".git")); err == nil {
		return ws.RepoDir
	}
	return ws.Root
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
