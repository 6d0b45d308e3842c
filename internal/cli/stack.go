package cli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/tcooper/warden/internal/config"
	"github.com/tcooper/warden/internal/db"
	"github.com/tcooper/warden/internal/job"
	"github.com/tcooper/warden/internal/orchestrator"
	"github.com/tcooper/warden/internal/process"
	"github.com/tcooper/warden/internal/workspace"
)

// stack bundles the fully wired engine and its supporting components.
type stack struct {
	cfg        *config.Config
	resolved   config.Resolved
	store      *job.Store
	events     *db.DB
	workspaces *workspace.Manager
	processes  *process.Manager
	engine     *orchestrator.Engine
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

// buildStack assembles the engine from configuration. The caller owns
// closing the returned stack.
func buildStack() (*stack, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", errs[0].Error())
	}

	w := cfg.Warden
	resolved := w.Resolve()

	dataDir := w.DataDir
	if dataDir == "" {
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return nil, fmt.Errorf("data dir: %w", err)
		}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}

	database, err := db.Open(filepath.Join(dataDir, "warden.db"))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	wsRoot := w.Workspace.Root
	if wsRoot == "" {
		wsRoot = filepath.Join(dataDir, "workspaces")
	}
	workspaces, err := workspace.NewManager(workspace.Options{
		Root:          wsRoot,
		MaxCount:      w.Workspace.MaxCount,
		MaxTotalBytes: w.Workspace.MaxTotalBytes,
		MaxAge:        resolved.WorkspaceMaxAge,
		Logger:        log.New(os.Stderr, "[workspace] ", log.LstdFlags),
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("workspace manager: %w", err)
	}

	processes := process.NewManager(process.Options{
		MaxConcurrent:  w.Process.MaxConcurrent,
		DefaultTimeout: resolved.ProcessTimeout,
		SilenceWindow:  resolved.SilenceWindow,
		KillGrace:      resolved.KillGrace,
		SampleInterval: resolved.SampleInterval,
		Limits: process.Limits{
			MaxRSSBytes:   w.Process.MaxRSSBytes,
			MaxCPUPercent: w.Process.MaxCPUPercent,
		},
		Logger: log.New(os.Stderr, "[process] ", log.LstdFlags),
	})

	store := job.NewStore()
	engine := orchestrator.New(orchestrator.Options{
		Workspaces:     workspaces,
		Processes:      processes,
		Store:          store,
		Events:         database,
		Logger:         log.New(os.Stderr, "[orchestrator] ", log.LstdFlags),
		AgentBinary:    w.AgentBinary,
		AgentArgs:      w.AgentArgs,
		MaxRetries:     w.MaxRetries,
		DefaultTimeout: resolved.ProcessTimeout,
	})

	return &stack{
		cfg:        cfg,
		resolved:   resolved,
		store:      store,
		events:     database,
		workspaces: workspaces,
		processes:  processes,
		engine:     engine,
	}, nil
}

func (s *stack) close() {
	if s.workspaces != nil {
		if err := s.workspaces.Close(); err != nil {
			log.Printf("close workspace manager: %v", err)
		}
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			log.Printf("close db: %v", err)
		}
	}
}

func parseTimeoutFlag(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return d, nil
}
