package workspace

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Workspace is an isolated filesystem + git working area for one job.
type Workspace struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Root       string    `json:"root"`
	RepoDir    string    `json:"repo_dir"`
	ConfigDir  string    `json:"config_dir"`
	OutputDir  string    `json:"output_dir"`
	LogsDir    string    `json:"logs_dir"`
	TmpDir     string    `json:"tmp_dir"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	SizeBytes  int64     `json:"size_bytes"`
}

// Context carries the repository references workspace creation needs.
type Context struct {
	Repo       string // clone URL or path; empty = no clone
	BaseBranch string
	HeadBranch string // PR head; checked out when set, falling back to base
}

// Options configures a Manager.
type Options struct {
	Root          string
	MaxCount      int
	MaxTotalBytes int64
	MaxAge        time.Duration
	Git           GitRunner
	Logger        *log.Logger
}

// Manager allocates and reclaims workspaces under count and disk quotas.
type Manager struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace

	root          string
	maxCount      int
	maxTotalBytes int64
	maxAge        time.Duration
	git           GitRunner
	logger        *log.Logger

	watcher   *fsnotify.Watcher
	watchDone chan struct{}
}

// NewManager creates a Manager rooted at opts.Root, creating the directory
// if needed. An fsnotify watcher tracks artifact writes so active output
// keeps a workspace's last-access fresh for the sweeper.
func NewManager(opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir workspace root: %w", err)
	}
	if opts.MaxCount <= 0 {
		opts.MaxCount = 10
	}
	if opts.MaxTotalBytes <= 0 {
		opts.MaxTotalBytes = 10 << 30
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = time.Hour
	}
	if opts.Git == nil {
		opts.Git = &ExecGit{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "workspace: ", log.LstdFlags)
	}

	m := &Manager{
		workspaces:    make(map[string]*Workspace),
		root:          opts.Root,
		maxCount:      opts.MaxCount,
		maxTotalBytes: opts.MaxTotalBytes,
		maxAge:        opts.MaxAge,
		git:           opts.Git,
		logger:        opts.Logger,
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		m.watcher = watcher
		m.watchDone = make(chan struct{})
		go m.watchLoop()
	} else {
		m.logger.Printf("fsnotify unavailable, last-access tracking degraded: %v", err)
	}

	return m, nil
}

// Close stops the fsnotify watcher. It does not remove workspaces.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Close()
	<-m.watchDone
	return err
}

// Create allocates a workspace for a job. Both quotas are checked before
// anything is written; exceeding either fails with *QuotaError.
func (m *Manager) Create(ctx context.Context, jobID string, wctx Context) (*Workspace, error) {
	m.mu.Lock()
	if len(m.workspaces) >= m.maxCount {
		current := int64(len(m.workspaces))
		m.mu.Unlock()
		return nil, &QuotaError{Kind: "count", Limit: int64(m.maxCount), Current: current}
	}
	var total int64
	for _, ws := range m.workspaces {
		total += ws.SizeBytes
	}
	if total >= m.maxTotalBytes {
		m.mu.Unlock()
		return nil, &QuotaError{Kind: "disk", Limit: m.maxTotalBytes, Current: total}
	}
	m.mu.Unlock()

	if free, err := diskFree(m.root); err == nil && free < minFreeBytes {
		return nil, &QuotaError{Kind: "disk", Limit: minFreeBytes, Current: free}
	}

	id := uuid.NewString()
	root := filepath.Join(m.root, id)
	ws := &Workspace{
		ID:         id,
		JobID:      jobID,
		Root:       root,
		RepoDir:    filepath.Join(root, "repo"),
		ConfigDir:  filepath.Join(root, "config"),
		OutputDir:  filepath.Join(root, "output"),
		LogsDir:    filepath.Join(root, "logs"),
		TmpDir:     filepath.Join(root, "tmp"),
		CreatedAt:  time.Now().UTC(),
		LastAccess: time.Now().UTC(),
	}

	for _, dir := range []string{ws.RepoDir, ws.ConfigDir, ws.OutputDir, ws.LogsDir, ws.TmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	if wctx.Repo != "" {
		if err := m.provision(ctx, ws, wctx); err != nil {
			os.RemoveAll(root)
			return nil, err
		}
	}

	ws.SizeBytes = dirSize(root)
	if err := WriteJSON(filepath.Join(root, "metadata.json"), ws); err != nil {
		os.RemoveAll(root)
		return nil, fmt.Errorf("write workspace metadata: %w", err)
	}

	m.mu.Lock()
	m.workspaces[id] = ws
	m.mu.Unlock()

	if m.watcher != nil {
		if err := m.watcher.Add(ws.OutputDir); err != nil {
			m.logger.Printf("watch %s: %v", ws.OutputDir, err)
		}
	}

	m.logger.Printf("created workspace %s for job %s (%d bytes)", id, jobID, ws.SizeBytes)
	return ws, nil
}

// provision clones the repository and, for PR contexts, checks out the head
// branch. Head fetch failure falls back to the base branch rather than
// failing creation.
func (m *Manager) provision(ctx context.Context, ws *Workspace, wctx Context) error {
	base := wctx.BaseBranch
	if base == "" {
		base = "main"
	}
	// Clone into a subdir of repo/ fails on non-empty dir; clone directly.
	if err := os.Remove(ws.RepoDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset repo dir: %w", err)
	}
	if err := cloneRepo(ctx, m.git, wctx.Repo, base, ws.RepoDir); err != nil {
		return err
	}
	if wctx.HeadBranch != "" && wctx.HeadBranch != base {
		if err := checkoutHead(ctx, m.git, ws.RepoDir, wctx.HeadBranch); err != nil {
			m.logger.Printf("head branch %s unavailable, staying on %s: %v", wctx.HeadBranch, base, err)
		}
	}
	return nil
}

// Get returns a copy of a tracked workspace.
func (m *Manager) Get(id string) (*Workspace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, false
	}
	cp := *ws
	return &cp, true
}

// List returns copies of all tracked workspaces.
func (m *Manager) List() []*Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		cp := *ws
		out = append(out, &cp)
	}
	return out
}

// Touch refreshes a workspace's last-access time.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[id]; ok {
		ws.LastAccess = time.Now().UTC()
	}
}

// Cleanup removes a workspace. It is idempotent: cleaning an unknown or
// already-removed id returns (false, nil).
func (m *Manager) Cleanup(id string) (bool, error) {
	m.mu.Lock()
	ws, ok := m.workspaces[id]
	if ok {
		delete(m.workspaces, id)
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	if m.watcher != nil {
		_ = m.watcher.Remove(ws.OutputDir)
	}

	// Unregister worktrees before deleting the tree so the clone's git
	// metadata holds no dangling references.
	if _, err := os.Stat(filepath.Join(ws.RepoDir, ".git")); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		removeWorktrees(ctx, m.git, ws.RepoDir)
		cancel()
	}

	if err := os.RemoveAll(ws.Root); err != nil {
		return false, fmt.Errorf("remove workspace %s: %w", id, err)
	}
	m.logger.Printf("cleaned up workspace %s", id)
	return true, nil
}

// TotalBytes returns the tracked aggregate size of all workspaces.
func (m *Manager) TotalBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, ws := range m.workspaces {
		total += ws.SizeBytes
	}
	return total
}

// watchLoop bumps last-access when agent output lands in a watched dir.
func (m *Manager) watchLoop() {
	defer close(m.watchDone)
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.touchByPath(ev.Name)
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (m *Manager) touchByPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.workspaces {
		if path == ws.OutputDir || filepath.Dir(path) == ws.OutputDir {
			ws.LastAccess = time.Now().UTC()
			return
		}
	}
}

// minFreeBytes is the free-space floor left on the workspace filesystem.
const minFreeBytes = 1 << 30

// diskFree reports free bytes on the filesystem holding path.
func diskFree(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return int64(st.Bavail) * st.Bsize, nil
}
