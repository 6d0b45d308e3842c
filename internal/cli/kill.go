package cli

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var killAddr string

var killCmd = &cobra.Command{
	Use:   "kill <job-id>",
	Short: "Kill a running job on a warden server",
	Long: `Ask a running warden server to kill a job. The job's process is torn down
gracefully, the job finishes as killed rather than failed, and its
workspace is still cleaned up.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fmt.Sprintf("http://%s/v1/jobs/%s/kill", killAddr, args[0])
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Post(url, "application/json", nil)
		if err != nil {
			return fmt.Errorf("reach server: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("kill failed (%d): %s", resp.StatusCode, body)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "kill requested for %s\n", args[0])
		return nil
	},
}

func init() {
	killCmd.Flags().StringVar(&killAddr, "addr", "localhost:8088", "warden server address")
}
