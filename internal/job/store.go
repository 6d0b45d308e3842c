package job

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store tracks active jobs and terminal history for the process lifetime.
// All access is synchronized; callers never see the internal maps.
type Store struct {
	mu      sync.RWMutex
	active  map[string]*Job
	history map[string]Summary
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		active:  make(map[string]*Job),
		history: make(map[string]Summary),
	}
}

// Put registers a new active job. It fails if the id is already known.
func (s *Store) Put(j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[j.ID]; ok {
		return fmt.Errorf("job %s already active", j.ID)
	}
	if _, ok := s.history[j.ID]; ok {
		return fmt.Errorf("job %s already finished", j.ID)
	}
	s.active[j.ID] = j
	return nil
}

// Get returns a copy of an active job's state.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.active[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	cp := *j
	cp.Stages = append([]StageRecord(nil), j.Stages...)
	cp.RecoveryAttempts = append([]RecoveryAttempt(nil), j.RecoveryAttempts...)
	return &cp, nil
}

// Update performs a synchronized read-modify-write on an active job.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.active[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	fn(j)
	return nil
}

// Finalize moves a job from the active map to history with the given
// terminal status. The job must end in exactly one terminal state, so a
// second Finalize for the same id is an error.
func (s *Store) Finalize(id string, status Status, failureKind string) (Summary, error) {
	if !status.Terminal() {
		return Summary{}, fmt.Errorf("status %q is not terminal", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.active[id]
	if !ok {
		return Summary{}, fmt.Errorf("job %s not active", id)
	}
	j.Status = status
	j.EndedAt = time.Now().UTC()
	sum := Summary{
		ID:          j.ID,
		Type:        j.Request.Type,
		Status:      status,
		Stage:       j.CurrentStage,
		RetryCount:  j.RetryCount,
		Duration:    j.EndedAt.Sub(j.StartedAt),
		Recoveries:  len(j.RecoveryAttempts),
		FinishedAt:  j.EndedAt,
		FailureKind: failureKind,
	}
	delete(s.active, id)
	s.history[id] = sum
	return sum, nil
}

// Active returns copies of all running jobs, oldest first.
func (s *Store) Active() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.active))
	for _, j := range s.active {
		cp := *j
		cp.Stages = append([]StageRecord(nil), j.Stages...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out
}

// History returns terminal summaries, most recent first.
func (s *Store) History() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.history))
	for _, sum := range s.history {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FinishedAt.After(out[k].FinishedAt) })
	return out
}

// Lookup finds either an active job (returned as a synthetic summary) or a
// history entry.
func (s *Store) Lookup(id string) (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if j, ok := s.active[id]; ok {
		return Summary{
			ID:         j.ID,
			Type:       j.Request.Type,
			Status:     j.Status,
			Stage:      j.CurrentStage,
			RetryCount: j.RetryCount,
			Duration:   time.Since(j.StartedAt),
			Recoveries: len(j.RecoveryAttempts),
		}, true
	}
	sum, ok := s.history[id]
	return sum, ok
}
