package execution

import (
	"database/sql"
	"fmt"
	"strings"
)

// ScanArgs holds the nullable column variables needed when scanning an
// execution from a database row.
type ScanArgs struct {
	ProjectID        sql.NullString
	TestCaseID       sql.NullString
	TestSuiteID      sql.NullString
	SuiteExecutionID sql.NullString
	Result           sql.NullString
	EndTime          sql.NullTime
	StepsJSON        sql.NullString
	ScreenshotsJSON  sql.NullString
	SuiteStatsJSON   sql.NullString
	Environment      sql.NullString
	ErrorMsg         sql.NullString
}

// scanTargets returns pointers for the execution and scan args, in the order
// of StandardSelectColumns.
func scanTargets(e *Execution, args *ScanArgs) []interface{} {
	return []interface{}{
		&e.ID,
		&args.ProjectID,
		&args.TestCaseID,
		&args.TestSuiteID,
		&args.SuiteExecutionID,
		&e.Status,
		&args.Result,
		&e.StartTime,
		&args.EndTime,
		&e.DurationMS,
		&args.StepsJSON,
		&args.ScreenshotsJSON,
		&args.SuiteStatsJSON,
		&e.TriggeredBy,
		&args.Environment,
		&args.ErrorMsg,
		&e.CreatedAt,
		&e.UpdatedAt,
	}
}

// processScanArgs moves the scanned nullable columns onto the execution.
func processScanArgs(e *Execution, args *ScanArgs) error {
	if args.ProjectID.Valid {
		e.ProjectID = args.ProjectID.String
	}
	if args.TestCaseID.Valid {
		e.TestCaseID = args.TestCaseID.String
	}
	if args.TestSuiteID.Valid {
		e.TestSuiteID = args.TestSuiteID.String
	}
	if args.SuiteExecutionID.Valid {
		e.SuiteExecutionID = args.SuiteExecutionID.String
	}
	if args.Result.Valid {
		e.Result = Result(args.Result.String)
	}
	if args.EndTime.Valid {
		e.EndTime = &args.EndTime.Time
	}
	if args.Environment.Valid {
		e.Environment = args.Environment.String
	}
	if args.ErrorMsg.Valid {
		e.Error = args.ErrorMsg.String
	}

	steps, err := unmarshalSteps(args.StepsJSON.String)
	if err != nil {
		return fmt.Errorf("failed to unmarshal steps for execution %s: %w", e.ID, err)
	}
	e.Steps = steps

	screenshots, err := unmarshalScreenshots(args.ScreenshotsJSON.String)
	if err != nil {
		return fmt.Errorf("failed to unmarshal screenshots for execution %s: %w", e.ID, err)
	}
	e.Screenshots = screenshots

	if args.SuiteStatsJSON.Valid && args.SuiteStatsJSON.String != "" {
		stats, err := unmarshalSuiteStats(args.SuiteStatsJSON.String)
		if err != nil {
			return fmt.Errorf("failed to unmarshal suite stats for execution %s: %w", e.ID, err)
		}
		e.SuiteStats = stats
	}

	return nil
}

// scanFromRow scans a single execution from a sql.Row
func scanFromRow(row *sql.Row, e *Execution) error {
	args := &ScanArgs{}
	if err := row.Scan(scanTargets(e, args)...); err != nil {
		return err
	}
	return processScanArgs(e, args)
}

// scanFromRows scans a single execution from sql.Rows (for use in loops)
func scanFromRows(rows *sql.Rows, e *Execution) error {
	args := &ScanArgs{}
	if err := rows.Scan(scanTargets(e, args)...); err != nil {
		return err
	}
	return processScanArgs(e, args)
}

// StandardSelectColumnList returns the standard columns for execution
// SELECT queries, in scan order
func StandardSelectColumnList() []string {
	return []string{
		"id", "project_id", "test_case_id", "test_suite_id", "suite_execution_id",
		"status", "result", "start_time", "end_time", "duration_ms",
		"steps", "screenshots", "suite_stats",
		"triggered_by", "environment", "error",
		"created_at", "updated_at",
	}
}

// StandardSelectColumns returns the standard column list for execution
// SELECT queries
func StandardSelectColumns() string {
	return strings.Join(StandardSelectColumnList(), ", ")
}
