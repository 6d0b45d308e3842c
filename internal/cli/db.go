package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tcooper/warden/internal/db"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Event log database management",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and apply schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := db.DefaultDBPath()
		if err != nil {
			return err
		}
		database, err := db.Open(path)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "database ready at %s\n", path)
		return nil
	},
}

var dbPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the database file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := db.DefaultDBPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate all tables (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := db.DefaultDBPath()
		if err != nil {
			return err
		}
		database, err := db.Open(path)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()
		if err := database.Reset(); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "database reset")
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbPathCmd)
	dbCmd.AddCommand(dbResetCmd)
}
