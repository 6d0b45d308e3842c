// Package cli wires the warden commands.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// SetVersion overrides the build-time version string.
func SetVersion(v string) {
	version = v
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Pipeline supervisor for code-analysis agent runs",
	Long: `warden runs code-analysis agent jobs end to end: it allocates an isolated
workspace, generates the agent's run configuration, executes the agent under
timeout/memory/CPU/hang limits, parses and validates whatever the agent
wrote, and reports a typed result or failure.

State lives under ~/.warden/ (SQLite event log, workspaces). A long-running
server mode exposes job submission and status over HTTP.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to warden.yaml (default: ./warden.yaml, then ~/.warden/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}
