package logger

// Standard field names for consistent structured logging across testflow.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldExecutionID      = "execution_id"
	FieldSuiteExecutionID = "suite_execution_id"
	FieldTestCaseID       = "test_case_id"
	FieldTestSuiteID      = "test_suite_id"
	FieldProjectID        = "project_id"
	FieldTriggeredBy      = "triggered_by"
	FieldEnvironment      = "environment"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldStartTime  = "start_time"
	FieldEndTime    = "end_time"

	// Errors
	FieldError = "error"

	// Counts and status
	FieldCount  = "count"
	FieldStatus = "status"
	FieldResult = "result"

	// Network
	FieldAddress = "address"
	FieldPort    = "port"
)
