package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tcooper/warden/internal/job"
)

var runFlags struct {
	reqType string
	repo    string
	base    string
	head    string
	item    int
	context string
	timeout string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one job synchronously and print the result",
	Long: `Run a single pipeline to completion in the foreground. The JSON result
(or the typed failure bundle) is printed to stdout; exit code is non-zero
when the job failed or was killed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, err := parseTimeoutFlag(runFlags.timeout)
		if err != nil {
			return err
		}

		s, err := buildStack()
		if err != nil {
			return err
		}
		defer s.close()

		req := job.Request{
			Type:            job.RequestType(runFlags.reqType),
			Repo:            runFlags.repo,
			BaseBranch:      runFlags.base,
			HeadBranch:      runFlags.head,
			ItemNumber:      runFlags.item,
			TriggerContext:  runFlags.context,
			TimeoutOverride: timeout,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, runErr := s.engine.ExecutePipeline(ctx, req)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if runErr != nil {
			if encErr := enc.Encode(runErr); encErr != nil {
				return fmt.Errorf("encode failure: %w", encErr)
			}
			return fmt.Errorf("job did not complete: %w", runErr)
		}
		return enc.Encode(res)
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.reqType, "type", "single-issue", "request type: single-issue | pull-request | inline-comment")
	runCmd.Flags().StringVar(&runFlags.repo, "repo", "", "repository clone URL or local path (empty: no clone)")
	runCmd.Flags().StringVar(&runFlags.base, "base", "", "base branch (default main)")
	runCmd.Flags().StringVar(&runFlags.head, "head", "", "PR head branch")
	runCmd.Flags().IntVar(&runFlags.item, "item", 0, "issue or PR number")
	runCmd.Flags().StringVar(&runFlags.context, "context", "", "trigger context passed through to the agent config")
	runCmd.Flags().StringVar(&runFlags.timeout, "timeout", "", "per-job timeout override, e.g. 45m")
}
