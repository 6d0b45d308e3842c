package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the event history and last process run for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildStack()
		if err != nil {
			return err
		}
		defer s.close()

		jobID := args[0]
		events, err := s.events.JobEvents(jobID)
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}
		if len(events) == 0 {
			return fmt.Errorf("no events recorded for job %s", jobID)
		}

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tSTAGE\tATTEMPT\tDETAIL")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.Timestamp, e.Event, e.Stage, e.Attempt, e.Detail)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		run, err := s.events.LastProcessRun(jobID)
		if err != nil {
			return fmt.Errorf("load process run: %w", err)
		}
		if run != nil {
			fmt.Fprintf(out, "\nlast process run: exit %d, %s, peak RSS %d bytes, cpu %.1f%%",
				run.ExitCode, (time.Duration(run.DurationMs) * time.Millisecond).Round(time.Millisecond),
				run.PeakRSS, run.CPUPercent)
			if run.Reason != "" {
				fmt.Fprintf(out, ", terminated: %s", run.Reason)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}
