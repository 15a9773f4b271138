package execution

import (
	"database/sql"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/testflow/testflow/errors"
)

// Index names the secondary access patterns over the executions table.
// Values are column names and are the only ones ever interpolated into SQL.
type Index string

const (
	IndexProject        Index = "project_id"
	IndexTestCase       Index = "test_case_id"
	IndexTestSuite      Index = "test_suite_id"
	IndexSuiteExecution Index = "suite_execution_id"
)

// Cursor is a keyset pagination position: the (created_at, id) pair of the
// last row of the previous page.
type Cursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

// QueryOptions bound an index query
type QueryOptions struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Cursor    *Cursor
}

// Store handles persistence of execution records
type Store struct {
	db *sql.DB
}

// NewStore creates a new execution store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new execution record. Creation is conditional: a
// duplicate id fails with ErrConflict and never overwrites the existing
// record.
func (s *Store) Create(e *Execution) error {
	stepsJSON, err := marshalSteps(e.Steps)
	if err != nil {
		return err
	}
	screenshotsJSON, err := marshalScreenshots(e.Screenshots)
	if err != nil {
		return err
	}
	statsJSON, err := marshalSuiteStats(e.SuiteStats)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO executions (
			id, project_id, test_case_id, test_suite_id, suite_execution_id,
			status, result, start_time, end_time, duration_ms,
			steps, screenshots, suite_stats,
			triggered_by, environment, error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		e.ID,
		nullString(e.ProjectID),
		nullString(e.TestCaseID),
		nullString(e.TestSuiteID),
		nullString(e.SuiteExecutionID),
		e.Status,
		nullString(string(e.Result)),
		e.StartTime,
		nullTime(e.EndTime),
		e.DurationMS,
		stepsJSON,
		screenshotsJSON,
		nullString(statsJSON),
		e.TriggeredBy,
		nullString(e.Environment),
		nullString(e.Error),
		e.CreatedAt,
		e.UpdatedAt,
	)

	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return errors.NewConflictError("execution %s already exists", e.ID)
		}
		err = errors.Wrap(err, "failed to create execution")
		return errors.WithDetailf(err, "Execution ID: %s", e.ID)
	}

	return nil
}

// Get retrieves an execution by ID
func (s *Store) Get(id string) (*Execution, error) {
	query := `SELECT ` + StandardSelectColumns() + ` FROM executions WHERE id = ?`

	var e Execution
	err := scanFromRow(s.db.QueryRow(query, id), &e)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("execution not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get execution")
	}

	return &e, nil
}

// MarkRunning transitions a queued execution to running. Illegal transitions
// (already running, already terminal) fail without mutating the record.
func (s *Store) MarkRunning(id string) (*Execution, error) {
	return s.mutate(id, func(e *Execution) error {
		return e.Start()
	})
}

// AppendStep records a step outcome on a non-terminal execution. The step's
// screenshot key, if present, is appended to the execution's screenshot list.
func (s *Store) AppendStep(id string, step Step) (*Execution, error) {
	return s.mutate(id, func(e *Execution) error {
		return e.AppendStep(step)
	})
}

// Finish moves an execution into its terminal state with the given result.
// Once terminal, no subsequent update changes the status.
func (s *Store) Finish(id string, result Result, errMsg string) (*Execution, error) {
	return s.mutate(id, func(e *Execution) error {
		return e.Finish(result, errMsg)
	})
}

// mutate runs a read-modify-write cycle on a single execution inside a
// transaction. The model-level transition guards keep status monotonic.
func (s *Store) mutate(id string, fn func(*Execution) error) (*Execution, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `SELECT ` + StandardSelectColumns() + ` FROM executions WHERE id = ?`
	var e Execution
	args := &ScanArgs{}
	err = tx.QueryRow(query, id).Scan(scanTargets(&e, args)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("execution not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get execution")
	}
	if err := processScanArgs(&e, args); err != nil {
		return nil, err
	}

	if err := fn(&e); err != nil {
		return nil, err
	}

	stepsJSON, err := marshalSteps(e.Steps)
	if err != nil {
		return nil, err
	}
	screenshotsJSON, err := marshalScreenshots(e.Screenshots)
	if err != nil {
		return nil, err
	}

	update := `
		UPDATE executions
		SET status = ?,
		    result = ?,
		    end_time = ?,
		    duration_ms = ?,
		    steps = ?,
		    screenshots = ?,
		    error = ?,
		    updated_at = ?
		WHERE id = ?
	`
	_, err = tx.Exec(update,
		e.Status,
		nullString(string(e.Result)),
		nullTime(e.EndTime),
		e.DurationMS,
		stepsJSON,
		screenshotsJSON,
		nullString(e.Error),
		e.UpdatedAt,
		e.ID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update execution")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit execution update")
	}

	return &e, nil
}

// SaveSuiteAggregate upserts the computed aggregate onto the parent
// suite-execution record (id == suiteExecutionId). This cached copy is an
// optimization only; recomputation from children is always authoritative.
func (s *Store) SaveSuiteAggregate(parent *Execution) error {
	statsJSON, err := marshalSuiteStats(parent.SuiteStats)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO executions (
			id, project_id, test_suite_id,
			status, result, start_time, end_time, duration_ms,
			steps, screenshots, suite_stats,
			triggered_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '[]', '[]', ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			duration_ms = excluded.duration_ms,
			suite_stats = excluded.suite_stats,
			updated_at = excluded.updated_at
	`

	_, err = s.db.Exec(query,
		parent.ID,
		nullString(parent.ProjectID),
		nullString(parent.TestSuiteID),
		parent.Status,
		nullString(string(parent.Result)),
		parent.StartTime,
		nullTime(parent.EndTime),
		parent.DurationMS,
		nullString(statsJSON),
		parent.TriggeredBy,
		parent.CreatedAt,
		parent.UpdatedAt,
	)
	if err != nil {
		err = errors.Wrap(err, "failed to save suite aggregate")
		return errors.WithDetailf(err, "Suite execution ID: %s", parent.ID)
	}

	return nil
}

// ListBySuiteExecution returns all child executions for a suite execution,
// oldest first. Parent records carry a NULL suite_execution_id so they never
// appear among their own children.
func (s *Store) ListBySuiteExecution(suiteExecutionID string) ([]*Execution, error) {
	query := `SELECT ` + StandardSelectColumns() + `
		FROM executions
		WHERE suite_execution_id = ?
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(query, suiteExecutionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list suite executions")
	}
	defer rows.Close()

	return scanExecutions(rows, "suite children")
}

// QueryByIndex serves one of the four secondary access patterns with an
// optional creation-time range, ordered most-recent-first. Returns the page
// and, when the page is full, a cursor for the next one.
func (s *Store) QueryByIndex(index Index, key string, opts QueryOptions) ([]*Execution, *Cursor, error) {
	switch index {
	case IndexProject, IndexTestCase, IndexTestSuite, IndexSuiteExecution:
	default:
		return nil, nil, errors.NewInvalidRequestError("unknown execution index: %s", index)
	}
	if opts.Limit <= 0 {
		return nil, nil, errors.NewInvalidRequestError("query limit must be positive, got %d", opts.Limit)
	}

	query := `SELECT ` + StandardSelectColumns() + `
		FROM executions
		WHERE ` + string(index) + ` = ?`
	args := []interface{}{key}

	if opts.StartDate != nil {
		query += ` AND created_at >= ?`
		args = append(args, *opts.StartDate)
	}
	if opts.EndDate != nil {
		query += ` AND created_at <= ?`
		args = append(args, *opts.EndDate)
	}
	if opts.Cursor != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, opts.Cursor.CreatedAt, opts.Cursor.CreatedAt, opts.Cursor.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		err = errors.Wrap(err, "failed to query executions")
		return nil, nil, errors.WithDetailf(err, "Index: %s", index)
	}
	defer rows.Close()

	executions, err := scanExecutions(rows, "history page")
	if err != nil {
		return nil, nil, err
	}

	var next *Cursor
	if len(executions) == opts.Limit {
		last := executions[len(executions)-1]
		next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return executions, next, nil
}

// CleanupOlderThan removes terminal executions older than the specified
// duration. Returns the number of records removed.
func (s *Store) CleanupOlderThan(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.Exec(`
		DELETE FROM executions
		WHERE status IN ('completed', 'error')
		  AND updated_at < ?
	`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old executions")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// scanExecutions is a helper that scans multiple executions from query rows
func scanExecutions(rows *sql.Rows, context string) ([]*Execution, error) {
	executions := make([]*Execution, 0)
	for rows.Next() {
		var e Execution
		if err := scanFromRows(rows, &e); err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		executions = append(executions, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return executions, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
