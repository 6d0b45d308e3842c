package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tcooper/warden/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the warden API server",
	Long: `Start the HTTP API on localhost. Jobs submitted through the API run in the
background under the configured concurrency and workspace quotas. The server
also runs the workspace sweeper, aging out stale workspaces on the configured
interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

		s, err := buildStack()
		if err != nil {
			return err
		}
		defer s.close()

		if port <= 0 {
			port = s.cfg.Warden.Web.Port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go s.workspaces.RunSweeper(ctx, s.resolved.SweepInterval)

		srv := &http.Server{
			Addr: fmt.Sprintf("localhost:%d", port),
			Handler: (&web.Server{
				Engine:     s.engine,
				Store:      s.store,
				Workspaces: s.workspaces,
				Events:     s.events,
			}).Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			fmt.Fprintf(cmd.OutOrStdout(), "listening on http://%s\n", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Port to listen on (default from config)")
}
