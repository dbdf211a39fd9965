package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/cadence/internal/config"
	"github.com/hyperengineering/cadence/internal/migrate"
	"github.com/hyperengineering/cadence/internal/store"
)

var (
	migrateDryRun     bool
	migrateJSONOutput bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage legacy data migration",
	Long:  "Run, inspect, and roll back per-user legacy data migration without running the server.",
}

var migrateRunCmd = &cobra.Command{
	Use:   "run <user-id>",
	Short: "Migrate a user's legacy data into the normalized schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runMigrateRun,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status <user-id>",
	Short: "Show a user's migration status",
	Args:  cobra.ExactArgs(1),
	RunE:  runMigrateStatus,
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback <user-id>",
	Short: "Undo a user's migration, leaving legacy data untouched",
	Args:  cobra.ExactArgs(1),
	RunE:  runMigrateRollback,
}

func init() {
	migrateCmd.PersistentFlags().BoolVar(&migrateJSONOutput, "json", false,
		"Output in JSON format")
	migrateRunCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false,
		"Validate the full run in memory without persisting anything")

	migrateCmd.AddCommand(migrateRunCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateRollbackCmd)
}

// resolveOrchestrator opens the store and builds a migration orchestrator.
// The caller closes the returned store.
func resolveOrchestrator() (*migrate.Orchestrator, *store.SQLiteStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	initLogger(cfg)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return migrate.New(db, migrate.LogObserver{}), db, nil
}

func runMigrateRun(cmd *cobra.Command, args []string) error {
	orc, db, err := resolveOrchestrator()
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := orc.Run(cmd.Context(), args[0], migrateDryRun)
	if err != nil {
		// The summary still describes how far the run got.
		if migrateJSONOutput && summary != nil {
			printJSON(cmd.ErrOrStderr(), summary)
		}
		return err
	}

	if migrateJSONOutput {
		return printJSON(cmd.OutOrStdout(), summary)
	}
	mode := "migrated"
	if summary.DryRun {
		mode = "validated (dry run)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s user %s: %d habits, %d progress rows, %d diagnostics\n",
		mode, summary.UserID, summary.HabitsMigrated, summary.ProgressRows, len(summary.Diagnostics))
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	orc, db, err := resolveOrchestrator()
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := orc.Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if migrateJSONOutput {
		return printJSON(cmd.OutOrStdout(), status)
	}
	switch {
	case status.Completed:
		fmt.Fprintf(cmd.OutOrStdout(), "completed at %s\n", status.CompletedAt.Format("2006-01-02 15:04:05"))
	case status.Interrupted:
		fmt.Fprintln(cmd.OutOrStdout(), "interrupted (partial data present, next run will roll back and retry)")
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "not started")
	}
	return nil
}

func runMigrateRollback(cmd *cobra.Command, args []string) error {
	orc, db, err := resolveOrchestrator()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := orc.Rollback(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rolled back migration for user %s\n", args[0])
	return nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
