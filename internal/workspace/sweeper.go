package workspace

import (
	"context"
	"time"
)

// Sweep reclaims workspaces whose last-access time exceeds the max age.
// It takes a consistent snapshot before mutating so it never races an
// in-progress job's workspace access, and returns the ids it removed.
func (m *Manager) Sweep(now time.Time) []string {
	m.mu.Lock()
	var expired []string
	for id, ws := range m.workspaces {
		if now.Sub(ws.LastAccess) > m.maxAge {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	var removed []string
	for _, id := range expired {
		ok, err := m.Cleanup(id)
		if err != nil {
			m.logger.Printf("sweep: cleanup %s: %v", id, err)
			continue
		}
		if ok {
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		m.logger.Printf("sweep reclaimed %d workspace(s)", len(removed))
	}
	return removed
}

// RunSweeper sweeps on the given interval until ctx is cancelled. This
// bounds disk growth even when a job leaks or crashes without releasing
// its workspace.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
