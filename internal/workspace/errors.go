package workspace

import "fmt"

// QuotaError is returned when workspace creation would exceed the count or
// aggregate disk quota. The orchestrator treats it as a resource limit.
type QuotaError struct {
	Kind    string // "count" or "disk"
	Limit   int64
	Current int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("workspace %s quota exceeded: %d of %d in use", e.Kind, e.Current, e.Limit)
}

// GitError wraps a failed git operation during workspace provisioning.
type GitError struct {
	Op  string
	Err error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *GitError) Unwrap() error {
	return e.Err
}
