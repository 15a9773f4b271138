package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/testflow/testflow/cmd/testflow/commands"
	"github.com/testflow/testflow/conf"
	"github.com/testflow/testflow/logger"
)

var rootCmd = &cobra.Command{
	Use:   "testflow",
	Short: "Testflow - test execution lifecycle and suite aggregation engine",
	Long: `Testflow tracks test executions from trigger to terminal state and
aggregates suite-level outcomes over their member runs.

Available commands:
  serve  - Start the testflow HTTP server
  run    - Trigger and inspect executions from the terminal
  db     - Manage the testflow database

Examples:
  testflow serve                      # Start the API server
  testflow run case tc-1              # Trigger a single test case
  testflow run suite suite-nightly    # Trigger a suite fan-out
  testflow run status ex_abc123       # Show execution status
  testflow run history --project p1   # Query execution history
  testflow db migrate                 # Apply pending schema migrations
  testflow db stats                   # Show execution and queue statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := conf.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Initialize(cfg.Server.JSONLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
