package process

import (
	"fmt"
	"time"
)

// SpawnError means the agent executable could not be started at all.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError means the wall-clock timeout elapsed before the process exited.
type TimeoutError struct {
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process timeout after %s (limit %s)", e.Elapsed.Round(time.Second), e.Timeout)
}

// ResourceError means a configured memory or CPU ceiling was exceeded.
type ResourceError struct {
	Kind  string // "memory" or "cpu"
	Value int64
	Limit int64
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("process %s limit exceeded: %d > %d", e.Kind, e.Value, e.Limit)
}

// HangError means no stdout/stderr bytes were seen for the silence window
// while the process was still running.
type HangError struct {
	Silence time.Duration
}

func (e *HangError) Error() string {
	return fmt.Sprintf("process hang detected: no output for %s", e.Silence)
}

// ConcurrencyLimitError means the global process ceiling is already full.
// The request fails immediately; callers own backoff and retry.
type ConcurrencyLimitError struct {
	Limit int
}

func (e *ConcurrencyLimitError) Error() string {
	return fmt.Sprintf("concurrency limit reached: %d processes already running", e.Limit)
}
