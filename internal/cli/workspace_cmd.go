package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tcooper/warden/internal/config"
	"github.com/tcooper/warden/internal/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Inspect and reclaim job workspaces",
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		metas, err := readWorkspaceMetadata(root)
		if err != nil {
			return err
		}
		if len(metas) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no workspaces")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tJOB\tCREATED\tLAST ACCESS\tSIZE")
		for _, m := range metas {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
				shortID(m.ID), shortID(m.JobID),
				m.CreatedAt.Format(time.RFC3339), m.LastAccess.Format(time.RFC3339), m.SizeBytes)
		}
		return w.Flush()
	},
}

var workspaceSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove workspaces older than the configured max age",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		maxAge := cfg.Warden.Resolve().WorkspaceMaxAge

		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		metas, err := readWorkspaceMetadata(root)
		if err != nil {
			return err
		}

		removed := 0
		cutoff := time.Now().Add(-maxAge)
		for _, m := range metas {
			if m.LastAccess.After(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(root, m.ID)); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "remove %s: %v\n", m.ID, err)
				continue
			}
			removed++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d workspace(s)\n", removed)
		return nil
	},
}

var workspaceCleanupCmd = &cobra.Command{
	Use:   "cleanup <workspace-id>",
	Short: "Remove one workspace by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		dir := filepath.Join(root, args[0])
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("workspace %s: %w", args[0], err)
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove workspace: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	},
}

func workspaceRoot() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Warden.Workspace.Root != "" {
		return cfg.Warden.Workspace.Root, nil
	}
	dataDir := cfg.Warden.DataDir
	if dataDir == "" {
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(dataDir, "workspaces"), nil
}

// readWorkspaceMetadata loads each workspace's metadata.json from disk so
// the command works without a running server.
func readWorkspaceMetadata(root string) ([]workspace.Workspace, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workspace root: %w", err)
	}

	var metas []workspace.Workspace
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var ws workspace.Workspace
		if err := workspace.ReadJSON(filepath.Join(root, e.Name(), "metadata.json"), &ws); err != nil {
			continue // not a workspace directory
		}
		metas = append(metas, ws)
	}
	return metas, nil
}

func init() {
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceSweepCmd)
	workspaceCmd.AddCommand(workspaceCleanupCmd)
}
