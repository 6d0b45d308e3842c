package orchestrator

import "sync"

// Metrics counts pipeline outcomes for the status API.
type Metrics struct {
	mu        sync.Mutex
	started   int
	completed int
	failed    int
	killed    int
	recovered int
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Started   int `json:"started"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Killed    int `json:"killed"`
	Recovered int `json:"recovered"`
}

func (m *Metrics) incStarted()   { m.mu.Lock(); m.started++; m.mu.Unlock() }
func (m *Metrics) incCompleted() { m.mu.Lock(); m.completed++; m.mu.Unlock() }
func (m *Metrics) incFailed()    { m.mu.Lock(); m.failed++; m.mu.Unlock() }
func (m *Metrics) incKilled()    { m.mu.Lock(); m.killed++; m.mu.Unlock() }
func (m *Metrics) incRecovered() { m.mu.Lock(); m.recovered++; m.mu.Unlock() }

// Snapshot returns current counter values.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Started:   m.started,
		Completed: m.completed,
		Failed:    m.failed,
		Killed:    m.killed,
		Recovered: m.recovered,
	}
}
