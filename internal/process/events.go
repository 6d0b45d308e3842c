package process

import "time"

// Event is a typed notification emitted while a process runs. Consumers
// receive these over a channel instead of registering callbacks, so
// ordering is preserved without reentrancy hazards.
type Event interface {
	eventTime() time.Time
}

// OutputEvent carries a chunk of process output.
type OutputEvent struct {
	Time   time.Time
	Stream string // "stdout" or "stderr"
	Chunk  []byte
}

func (e OutputEvent) eventTime() time.Time { return e.Time }

// SampleEvent carries one resource-monitor sample.
type SampleEvent struct {
	Time       time.Time
	RSSBytes   int64
	CPUPercent float64
	Elapsed    time.Duration
}

func (e SampleEvent) eventTime() time.Time { return e.Time }

// emit sends an event without ever blocking the pipeline on a slow
// consumer; dropped events are acceptable, missed kills are not.
func emit(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}
