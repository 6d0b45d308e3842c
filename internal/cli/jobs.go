package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent job activity from the event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildStack()
		if err != nil {
			return err
		}
		defer s.close()

		events, err := s.events.RecentEvents(jobsLimit)
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no recorded job activity")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tJOB\tEVENT\tSTAGE\tDETAIL")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp, shortID(e.JobID), e.Event, e.Stage, e.Detail)
		}
		return w.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum events to show")
}
