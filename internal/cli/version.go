package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	buildCommit string
	buildDate   string
)

// SetBuildInfo records the build-time commit and date for the version
// command. Empty values are omitted from the output.
func SetBuildInfo(commit, date string) {
	buildCommit = commit
	buildDate = date
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the warden version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "warden version %s\n", version)
		if buildCommit != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", buildCommit)
		}
		if buildDate != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", buildDate)
		}
	},
}
