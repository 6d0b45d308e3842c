package process

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = 50 * time.Millisecond
	}
	if opts.KillGrace == 0 {
		opts.KillGrace = 500 * time.Millisecond
	}
	return NewManager(opts)
}

func TestExecuteSuccess(t *testing.T) {
	m := testManager(Options{})
	res, err := m.Execute(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo out; echo err >&2"},
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "out")
	assert.Contains(t, res.Stderr, "err")
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestExecuteNonZeroExit(t *testing.T) {
	m := testManager(Options{})
	res, err := m.Execute(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "exit 3"},
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestExecuteSignalDeathMapsTo137(t *testing.T) {
	m := testManager(Options{})
	res, err := m.Execute(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "kill -9 $$"},
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 137, res.ExitCode)
}

func TestExecuteSpawnError(t *testing.T) {
	m := testManager(Options{})
	_, err := m.Execute(context.Background(), Spec{
		Command: "definitely-not-a-real-binary-xyz",
		Timeout: time.Second,
	})
	var se *SpawnError
	require.ErrorAs(t, err, &se)
}

func TestExecuteTimeout(t *testing.T) {
	m := testManager(Options{})
	res, err := m.Execute(context.Background(), Spec{
		Command:       "sh",
		Args:          []string{"-c", "sleep 30"},
		Timeout:       200 * time.Millisecond,
		SilenceWindow: time.Minute,
	})
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.TermReason)
	// Never a silent success past the timeout.
	assert.Less(t, res.Duration, 10*time.Second)
}

func TestExecuteHangDetection(t *testing.T) {
	m := testManager(Options{})
	_, err := m.Execute(context.Background(), Spec{
		Command:       "sh",
		Args:          []string{"-c", "sleep 30"},
		Timeout:       time.Minute,
		SilenceWindow: 200 * time.Millisecond,
	})
	var he *HangError
	require.ErrorAs(t, err, &he)
}

func TestExecuteMemoryLimit(t *testing.T) {
	m := testManager(Options{})
	res, err := m.Execute(context.Background(), Spec{
		Command:       "sh",
		Args:          []string{"-c", "sleep 30"},
		Timeout:       time.Minute,
		SilenceWindow: time.Minute,
		Limits:        Limits{MaxRSSBytes: 1}, // any real process exceeds this
	})
	var re *ResourceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "memory", re.Kind)
	require.NotNil(t, res)
	assert.Greater(t, res.Usage.PeakRSSBytes, int64(1))
}

func TestExecuteCancellation(t *testing.T) {
	m := testManager(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := m.Execute(ctx, Spec{
		Command:       "sh",
		Args:          []string{"-c", "sleep 30"},
		Timeout:       time.Minute,
		SilenceWindow: time.Minute,
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second, "cancellation must not block on the full sleep")
}

func TestConcurrencyCeilingFailsFast(t *testing.T) {
	m := testManager(Options{MaxConcurrent: 1})

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		close(started)
		_, _ = m.Execute(context.Background(), Spec{
			Command:       "sh",
			Args:          []string{"-c", "sleep 2"},
			Timeout:       time.Minute,
			SilenceWindow: time.Minute,
		})
	}()
	<-started
	time.Sleep(100 * time.Millisecond) // let the first acquire the slot

	begin := time.Now()
	_, err := m.Execute(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "true"},
		Timeout: time.Minute,
	})
	var ce *ConcurrencyLimitError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Limit)
	// Fail fast, never queue.
	assert.Less(t, time.Since(begin), time.Second)
	wg.Wait()
}

func TestEventsEmitted(t *testing.T) {
	m := testManager(Options{})
	events := make(chan Event, 128)
	_, err := m.Execute(context.Background(), Spec{
		Command:       "sh",
		Args:          []string{"-c", "echo tick; sleep 0.3"},
		Timeout:       10 * time.Second,
		SilenceWindow: time.Minute,
		Events:        events,
	})
	require.NoError(t, err)
	close(events)

	var sawOutput bool
	for ev := range events {
		if oe, ok := ev.(OutputEvent); ok && oe.Stream == "stdout" {
			sawOutput = true
		}
	}
	assert.True(t, sawOutput, "expected at least one stdout OutputEvent")
}

func TestCaptureTruncation(t *testing.T) {
	var last atomic.Int64
	w := newCaptureWriter("stdout", &last, nil, nil)
	chunk := make([]byte, 512*1024)
	for i := 0; i < 4; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}
	out := w.String()
	assert.LessOrEqual(t, len(out), maxCaptureBytes+64)
	assert.Contains(t, out, "[output truncated]")
}

func TestCPUPercent(t *testing.T) {
	// 100 ticks in 1s is a fully busy core at USER_HZ=100.
	assert.InDelta(t, 100.0, cpuPercent(100, 1.0), 0.01)
	assert.InDelta(t, 50.0, cpuPercent(25, 0.5), 0.01)
	assert.Equal(t, 0.0, cpuPercent(10, 0))
}

func TestIsErrorTypesDistinct(t *testing.T) {
	var te *TimeoutError
	assert.False(t, errors.As(error(&HangError{}), &te))
}
