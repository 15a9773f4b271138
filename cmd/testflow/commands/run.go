package commands

import (
	"fmt"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/testflow/testflow/artifact"
	"github.com/testflow/testflow/catalog"
	"github.com/testflow/testflow/conf"
	"github.com/testflow/testflow/errors"
	"github.com/testflow/testflow/execution"
	"github.com/testflow/testflow/history"
	"github.com/testflow/testflow/lifecycle"
	"github.com/testflow/testflow/queue"
)

// RunCmd groups execution trigger and inspection commands
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger and inspect test executions",
	Long: `Trigger test case and suite executions and inspect their progress,
directly against the configured database.

Examples:
  testflow run case tc-login                # Trigger a single test case
  testflow run suite suite-nightly          # Trigger a suite fan-out
  testflow run status ex_abc123             # Show execution status
  testflow run history --project proj-1     # List recent executions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var runCaseCmd = &cobra.Command{
	Use:   "case <test-case-id>",
	Short: "Trigger a single test case execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTriggerCase(args[0])
	},
}

var runSuiteCmd = &cobra.Command{
	Use:   "suite <test-suite-id>",
	Short: "Trigger a suite execution fan-out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTriggerSuite(args[0])
	},
}

var runStatusCmd = &cobra.Command{
	Use:   "status <execution-id>",
	Short: "Show status of an execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShowStatus(args[0])
	},
}

var runHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent executions",
	Long: `List recent executions, most recent first. Exactly one identifier
filter is required: --project, --case, --suite, or --suite-execution.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShowHistory()
	},
}

var (
	runEnvironment string
	runPrincipal   string
	histProject    string
	histCase       string
	histSuite      string
	histSuiteExec  string
	histLimit      int
)

func init() {
	for _, c := range []*cobra.Command{runCaseCmd, runSuiteCmd} {
		c.Flags().StringVar(&runEnvironment, "env", "", "Target environment label")
		c.Flags().StringVar(&runPrincipal, "as", "", "Acting principal (defaults to OS user)")
	}

	runHistoryCmd.Flags().StringVar(&histProject, "project", "", "Filter by project id")
	runHistoryCmd.Flags().StringVar(&histCase, "case", "", "Filter by test case id")
	runHistoryCmd.Flags().StringVar(&histSuite, "suite", "", "Filter by test suite id")
	runHistoryCmd.Flags().StringVar(&histSuiteExec, "suite-execution", "", "Filter by suite execution id")
	runHistoryCmd.Flags().IntVar(&histLimit, "limit", 20, "Maximum number of executions to display")

	RunCmd.AddCommand(runCaseCmd)
	RunCmd.AddCommand(runSuiteCmd)
	RunCmd.AddCommand(runStatusCmd)
	RunCmd.AddCommand(runHistoryCmd)
}

// newManager builds a lifecycle manager over the configured database
func newManager() (*lifecycle.Manager, *conf.Config, func(), error) {
	database, _, err := openDatabase()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := conf.Load()
	if err != nil {
		database.Close()
		return nil, nil, nil, errors.Wrap(err, "failed to load configuration")
	}

	manager := lifecycle.NewManager(
		execution.NewStore(database),
		queue.New(database),
		catalog.NewSQLiteLookup(database),
		artifact.NewBaseURLResolver(cfg.Artifact.BaseURL),
		nil,
	)
	return manager, cfg, func() { database.Close() }, nil
}

func principal() string {
	if runPrincipal != "" {
		return runPrincipal
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

func runTriggerCase(testCaseID string) error {
	manager, _, cleanup, err := newManager()
	if err != nil {
		return err
	}
	defer cleanup()

	trigger, err := manager.TriggerCase(testCaseID, principal(), runEnvironment)
	if err != nil {
		return err
	}

	fmt.Printf("Execution ID: %s\n", trigger.ExecutionID)
	fmt.Printf("Status:       %s\n", trigger.Status)
	return nil
}

func runTriggerSuite(testSuiteID string) error {
	manager, _, cleanup, err := newManager()
	if err != nil {
		return err
	}
	defer cleanup()

	trigger, err := manager.TriggerSuite(testSuiteID, principal(), runEnvironment)
	if err != nil {
		// Partial fan-out still reports what was created
		if trigger != nil && len(trigger.TestCaseExecutionIDs) > 0 {
			fmt.Printf("Suite Execution ID: %s (partial: %d member(s) created)\n",
				trigger.SuiteExecutionID, len(trigger.TestCaseExecutionIDs))
		}
		return err
	}

	fmt.Printf("Suite Execution ID: %s\n", trigger.SuiteExecutionID)
	fmt.Printf("Status:             %s\n", trigger.Status)
	fmt.Printf("Members:\n")
	for _, member := range trigger.Members {
		fmt.Printf("  %-20s %s\n", member.TestCaseID, member.ExecutionID)
	}
	return nil
}

func runShowStatus(executionID string) error {
	manager, _, cleanup, err := newManager()
	if err != nil {
		return err
	}
	defer cleanup()

	view, err := manager.GetStatus(executionID)
	if err != nil {
		return err
	}

	fmt.Printf("Execution ID: %s\n", view.ExecutionID)
	fmt.Printf("  Status:   %s\n", view.Status)
	if view.Result != "" {
		fmt.Printf("  Result:   %s\n", view.Result)
	}
	if view.CurrentStep != nil {
		fmt.Printf("  Step:     %d/%d\n", *view.CurrentStep, view.TotalSteps)
	} else {
		fmt.Printf("  Steps:    %d\n", view.TotalSteps)
	}
	fmt.Printf("  Duration: %dms\n", view.DurationMS)
	if view.Error != "" {
		fmt.Printf("  Error:    %s\n", view.Error)
	}
	return nil
}

func runShowHistory() error {
	database, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	cfg, err := conf.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	svc := history.NewService(execution.NewStore(database), cfg.History.DefaultLimit, cfg.History.MaxLimit)
	page, err := svc.Query(history.Filter{
		ProjectID:        histProject,
		TestCaseID:       histCase,
		TestSuiteID:      histSuite,
		SuiteExecutionID: histSuiteExec,
		Limit:            histLimit,
	})
	if err != nil {
		return err
	}

	if len(page.Executions) == 0 {
		fmt.Println("No executions found")
		return nil
	}

	fmt.Printf("%-40s %-10s %-8s %-20s %s\n", "EXECUTION ID", "STATUS", "RESULT", "TEST CASE", "CREATED")
	fmt.Printf("%-40s %-10s %-8s %-20s %s\n", "------------", "------", "------", "---------", "-------")
	for _, e := range page.Executions {
		result := string(e.Result)
		if result == "" {
			result = "-"
		}
		fmt.Printf("%-40s %-10s %-8s %-20s %s\n",
			e.ID,
			e.Status,
			result,
			truncate(e.TestCaseID, 20),
			e.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("\nTotal: %d execution(s)\n", len(page.Executions))
	if page.NextPageToken != "" {
		fmt.Printf("More results available (page token: %s)\n", page.NextPageToken)
	}
	return nil
}

// truncate shortens a string to max characters for table display
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
