package process

import (
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limits are the resource ceilings enforced by the monitor loop.
type Limits struct {
	MaxRSSBytes   int64
	MaxCPUPercent float64
}

// Spec describes one agent invocation.
type Spec struct {
	Command        string
	Args           []string
	Dir            string
	Env            []string // appended to the parent environment
	Timeout        time.Duration
	SilenceWindow  time.Duration
	KillGrace      time.Duration
	SampleInterval time.Duration
	Limits         Limits

	// Events receives typed output/sample events when non-nil. Sends never
	// block; slow consumers miss events rather than stalling the monitor.
	Events chan<- Event

	// Tee writers receive a live copy of output (e.g. workspace log files).
	StdoutTee io.Writer
	StderrTee io.Writer
}

// Usage is the measured resource footprint of a finished process.
type Usage struct {
	PeakRSSBytes int64   `json:"peak_rss_bytes"`
	CPUPercent   float64 `json:"cpu_percent"` // last sampled value
	Samples      int     `json:"samples"`
}

// Result is what callers get back; process internals never escape the
// manager.
type Result struct {
	ExitCode   int           `json:"exit_code"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	Duration   time.Duration `json:"duration"`
	Usage      Usage         `json:"usage"`
	TermReason string        `json:"term_reason,omitempty"`
}

// Manager supervises agent subprocesses under a global concurrency ceiling.
type Manager struct {
	sem    *semaphore.Weighted
	limit  int
	logger *log.Logger

	defaultTimeout time.Duration
	silenceWindow  time.Duration
	killGrace      time.Duration
	sampleInterval time.Duration
	defaultLimits  Limits
}

// Options configures a Manager; zero values take the documented defaults.
type Options struct {
	MaxConcurrent  int
	DefaultTimeout time.Duration
	SilenceWindow  time.Duration
	KillGrace      time.Duration
	SampleInterval time.Duration
	Limits         Limits
	Logger         *log.Logger
}

// NewManager creates a process Manager.
func NewManager(opts Options) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Minute
	}
	if opts.SilenceWindow <= 0 {
		opts.SilenceWindow = 5 * time.Minute
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = 10 * time.Second
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 5 * time.Second
	}
	if opts.Limits.MaxRSSBytes <= 0 {
		opts.Limits.MaxRSSBytes = 4 << 30
	}
	if opts.Limits.MaxCPUPercent <= 0 {
		opts.Limits.MaxCPUPercent = 90
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "process: ", log.LstdFlags)
	}
	return &Manager{
		sem:            semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		limit:          opts.MaxConcurrent,
		logger:         opts.Logger,
		defaultTimeout: opts.DefaultTimeout,
		silenceWindow:  opts.SilenceWindow,
		killGrace:      opts.KillGrace,
		sampleInterval: opts.SampleInterval,
		defaultLimits:  opts.Limits,
	}
}

// Execute runs one process to completion under supervision. It fails fast
// with *ConcurrencyLimitError when the ceiling is full, and otherwise
// returns the Result together with a typed error when the process was
// terminated for cause. The Result is non-nil whenever the process started,
// so callers can still inspect captured output after a failure.
func (m *Manager) Execute(ctx context.Context, spec Spec) (*Result, error) {
	if !m.sem.TryAcquire(1) {
		return nil, &ConcurrencyLimitError{Limit: m.limit}
	}
	defer m.sem.Release(1)

	m.applyDefaults(&spec)

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	// Own process group so graceful/forced termination reaches children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var lastOutput atomic.Int64
	lastOutput.Store(time.Now().UnixNano())

	stdout := newCaptureWriter("stdout", &lastOutput, spec.Events, spec.StdoutTee)
	stderr := newCaptureWriter("stderr", &lastOutput, spec.Events, spec.StderrTee)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Command: spec.Command, Err: err}
	}
	m.logger.Printf("started %s (pid %d)", spec.Command, cmd.Process.Pid)

	mon := &monitorState{}
	monDone := make(chan struct{})
	go m.monitor(ctx, cmd, spec, start, &lastOutput, mon, monDone)

	waitErr := cmd.Wait()
	close(monDone)

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		ExitCode: exitCode(cmd, waitErr),
	}
	mon.mu.Lock()
	res.Usage = mon.usage
	termErr := mon.termErr
	if termErr != nil {
		res.TermReason = termErr.Error()
	}
	mon.mu.Unlock()

	if termErr != nil {
		m.logger.Printf("terminated pid %d: %v", cmd.Process.Pid, termErr)
		return res, termErr
	}
	if ctx.Err() != nil {
		res.TermReason = "cancelled"
		return res, ctx.Err()
	}
	return res, nil
}

func (m *Manager) applyDefaults(spec *Spec) {
	if spec.Timeout <= 0 {
		spec.Timeout = m.defaultTimeout
	}
	if spec.SilenceWindow <= 0 {
		spec.SilenceWindow = m.silenceWindow
	}
	if spec.KillGrace <= 0 {
		spec.KillGrace = m.killGrace
	}
	if spec.SampleInterval <= 0 {
		spec.SampleInterval = m.sampleInterval
	}
	if spec.Limits.MaxRSSBytes <= 0 {
		spec.Limits.MaxRSSBytes = m.defaultLimits.MaxRSSBytes
	}
	if spec.Limits.MaxCPUPercent <= 0 {
		spec.Limits.MaxCPUPercent = m.defaultLimits.MaxCPUPercent
	}
}

// monitorState carries the monitor's verdict back to Execute.
type monitorState struct {
	mu      sync.Mutex
	usage   Usage
	termErr error
}

// cpuViolationStreak is how many consecutive over-limit samples count as a
// sustained CPU violation rather than a transient spike.
const cpuViolationStreak = 3

// monitor samples the process on a fixed interval and terminates it when a
// ceiling, the silence window, the wall timeout, or the context is hit.
func (m *Manager) monitor(ctx context.Context, cmd *exec.Cmd, spec Spec, start time.Time, lastOutput *atomic.Int64, state *monitorState, done <-chan struct{}) {
	ticker := time.NewTicker(spec.SampleInterval)
	defer ticker.Stop()

	var prevTicks int64 = -1
	cpuStreak := 0

	fail := func(err error) {
		state.mu.Lock()
		if state.termErr == nil {
			state.termErr = err
		}
		state.mu.Unlock()
		m.terminate(cmd, spec.KillGrace)
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			fail(ctx.Err())
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed > spec.Timeout {
				fail(&TimeoutError{Timeout: spec.Timeout, Elapsed: elapsed})
				return
			}

			silence := time.Duration(now.UnixNano() - lastOutput.Load())
			if silence > spec.SilenceWindow {
				fail(&HangError{Silence: spec.SilenceWindow})
				return
			}

			sample, err := sampleProc(cmd.Process.Pid)
			if err != nil {
				continue // process likely exiting; Wait will settle it
			}

			var cpu float64
			if prevTicks >= 0 {
				cpu = cpuPercent(sample.cpuTicks-prevTicks, spec.SampleInterval.Seconds())
			}
			prevTicks = sample.cpuTicks

			state.mu.Lock()
			state.usage.Samples++
			state.usage.CPUPercent = cpu
			if sample.rssBytes > state.usage.PeakRSSBytes {
				state.usage.PeakRSSBytes = sample.rssBytes
			}
			state.mu.Unlock()

			emit(spec.Events, SampleEvent{Time: now, RSSBytes: sample.rssBytes, CPUPercent: cpu, Elapsed: elapsed})

			if sample.rssBytes > spec.Limits.MaxRSSBytes {
				fail(&ResourceError{Kind: "memory", Value: sample.rssBytes, Limit: spec.Limits.MaxRSSBytes})
				return
			}
			if cpu > spec.Limits.MaxCPUPercent {
				cpuStreak++
				if cpuStreak >= cpuViolationStreak {
					fail(&ResourceError{Kind: "cpu", Value: int64(cpu), Limit: int64(spec.Limits.MaxCPUPercent)})
					return
				}
			} else {
				cpuStreak = 0
			}
		}
	}
}

// terminate sends SIGTERM to the process group, waits up to grace, then
// SIGKILLs whatever is left.
func (m *Manager) terminate(cmd *exec.Cmd, grace time.Duration) {
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	deadline := time.After(grace)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			_ = syscall.Kill(-pid, syscall.SIGKILL)
			return
		case <-tick.C:
			// Signal 0 probes liveness without delivering anything.
			if err := syscall.Kill(pid, 0); err != nil {
				return
			}
		}
	}
}

// exitCode maps the wait result to an exit code, translating signal deaths
// the conventional way (128 + signal, e.g. SIGKILL -> 137).
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if ee, ok := waitErr.(*exec.ExitError); ok {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return ee.ExitCode()
	}
	return cmd.ProcessState.ExitCode()
}

// captureWriter buffers output up to a ceiling, stamps last-output time,
// and fans chunks out to events and tee writers.
type captureWriter struct {
	mu         sync.Mutex
	buf        []byte
	truncated  bool
	stream     string
	lastOutput *atomic.Int64
	events     chan<- Event
	tee        io.Writer
}

// maxCaptureBytes bounds in-memory stdout/stderr capture per stream.
const maxCaptureBytes = 1 << 20

func newCaptureWriter(stream string, lastOutput *atomic.Int64, events chan<- Event, tee io.Writer) *captureWriter {
	return &captureWriter{stream: stream, lastOutput: lastOutput, events: events, tee: tee}
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.lastOutput.Store(time.Now().UnixNano())

	w.mu.Lock()
	if len(w.buf) < maxCaptureBytes {
		room := maxCaptureBytes - len(w.buf)
		if len(p) > room {
			w.buf = append(w.buf, p[:room]...)
			w.truncated = true
		} else {
			w.buf = append(w.buf, p...)
		}
	} else {
		w.truncated = true
	}
	w.mu.Unlock()

	if w.tee != nil {
		_, _ = w.tee.Write(p)
	}
	emit(w.events, OutputEvent{Time: time.Now(), Stream: w.stream, Chunk: append([]byte(nil), p...)})
	return len(p), nil
}

func (w *captureWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := string(w.buf)
	if w.truncated {
		s += "\n[output truncated]"
	}
	return s
}
