package commands

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/testflow/testflow/conf"
	"github.com/testflow/testflow/db"
	"github.com/testflow/testflow/errors"
	"github.com/testflow/testflow/execution"
	"github.com/testflow/testflow/logger"
	"github.com/testflow/testflow/queue"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the testflow database",
	Long: `Manage database operations: schema migrations, statistics, and
retention cleanup.

Examples:
  testflow db migrate               # Apply pending schema migrations
  testflow db stats                 # Show execution and queue statistics
  testflow db cleanup --days 90     # Delete executions older than 90 days`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show execution and queue statistics",
	RunE:  runDbStats,
}

var dbCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete terminal executions older than a retention window",
	Long: `Delete executions that reached a terminal state before the retention
window. Queued and running executions are never deleted.`,
	RunE: runDbCleanup,
}

var cleanupDaysFlag int

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbCleanupCmd)
	dbCleanupCmd.Flags().IntVar(&cleanupDaysFlag, "days", 90, "Retention window in days")
}

func openDatabase() (*sql.DB, string, error) {
	cfg, err := conf.Load()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to load configuration")
	}
	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to open database")
	}
	return database, cfg.Database.Path, nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("Database migrated: %s\n", path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path: %s\n\n", path)

	// Execution counts per status
	rows, err := database.Query(`SELECT status, COUNT(*) FROM executions GROUP BY status ORDER BY status`)
	if err != nil {
		return errors.Wrap(err, "failed to query execution stats")
	}
	defer rows.Close()

	total := 0
	fmt.Printf("Executions by status:\n")
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return errors.Wrap(err, "failed to scan execution stats")
		}
		fmt.Printf("  %-10s %d\n", status, count)
		total += count
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to read execution stats")
	}
	fmt.Printf("  %-10s %d\n\n", "total", total)

	// Suite execution count
	var suites int
	err = database.QueryRow(`SELECT COUNT(DISTINCT suite_execution_id) FROM executions WHERE suite_execution_id IS NOT NULL`).Scan(&suites)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to query suite stats")
	}
	fmt.Printf("Suite executions: %d\n\n", suites)

	// Queue depth
	ready, inflight, err := queue.New(database).Depth()
	if err != nil {
		return errors.Wrap(err, "failed to query queue depth")
	}
	fmt.Printf("Work queue:\n")
	fmt.Printf("  ready:    %d\n", ready)
	fmt.Printf("  inflight: %d\n", inflight)

	return nil
}

func runDbCleanup(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	retention := time.Duration(cleanupDaysFlag) * 24 * time.Hour
	deleted, err := execution.NewStore(database).CleanupOlderThan(retention)
	if err != nil {
		return errors.Wrap(err, "cleanup failed")
	}

	fmt.Printf("Deleted %d execution(s) older than %d day(s)\n", deleted, cleanupDaysFlag)
	return nil
}
