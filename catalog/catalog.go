// Package catalog resolves test case and test suite definitions. The
// lifecycle manager only reads from it; definition management is owned
// elsewhere.
package catalog

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/testflow/testflow/errors"
)

// TestCase is a runnable test case definition
type TestCase struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"project_id"`
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"` // step definitions, opaque to this core
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TestSuite groups test cases for suite-level triggers
type TestSuite struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lookup resolves test definitions for the lifecycle manager
type Lookup interface {
	// GetTestCase returns the test case, or ErrNotFound
	GetTestCase(id string) (*TestCase, error)
	// GetTestSuite returns the suite, or ErrNotFound
	GetTestSuite(id string) (*TestSuite, error)
	// GetSuiteMembers returns the suite's member test cases in suite order.
	// ErrNotFound when the suite itself does not exist; an existing suite
	// with no members returns an empty slice.
	GetSuiteMembers(suiteID string) ([]*TestCase, error)
}

// SQLiteLookup reads test definitions from the testflow database
type SQLiteLookup struct {
	db *sql.DB
}

var _ Lookup = (*SQLiteLookup)(nil)

// NewSQLiteLookup creates a catalog lookup over the given database
func NewSQLiteLookup(db *sql.DB) *SQLiteLookup {
	return &SQLiteLookup{db: db}
}

// GetTestCase retrieves a test case by ID
func (l *SQLiteLookup) GetTestCase(id string) (*TestCase, error) {
	var tc TestCase
	var definition string
	err := l.db.QueryRow(`
		SELECT id, project_id, name, definition, created_at, updated_at
		FROM test_cases WHERE id = ?
	`, id).Scan(&tc.ID, &tc.ProjectID, &tc.Name, &definition, &tc.CreatedAt, &tc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("test case not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get test case")
	}
	tc.Definition = json.RawMessage(definition)
	return &tc, nil
}

// GetTestSuite retrieves a test suite by ID
func (l *SQLiteLookup) GetTestSuite(id string) (*TestSuite, error) {
	var ts TestSuite
	err := l.db.QueryRow(`
		SELECT id, project_id, name, created_at, updated_at
		FROM test_suites WHERE id = ?
	`, id).Scan(&ts.ID, &ts.ProjectID, &ts.Name, &ts.CreatedAt, &ts.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("test suite not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get test suite")
	}
	return &ts, nil
}

// GetSuiteMembers returns the suite's member test cases in position order
func (l *SQLiteLookup) GetSuiteMembers(suiteID string) ([]*TestCase, error) {
	// Resolve the suite first so a missing suite and an empty suite are
	// distinguishable.
	if _, err := l.GetTestSuite(suiteID); err != nil {
		return nil, err
	}

	rows, err := l.db.Query(`
		SELECT tc.id, tc.project_id, tc.name, tc.definition, tc.created_at, tc.updated_at
		FROM test_suite_members m
		JOIN test_cases tc ON tc.id = m.test_case_id
		WHERE m.suite_id = ?
		ORDER BY m.position ASC
	`, suiteID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list suite members")
	}
	defer rows.Close()

	members := make([]*TestCase, 0)
	for rows.Next() {
		var tc TestCase
		var definition string
		if err := rows.Scan(&tc.ID, &tc.ProjectID, &tc.Name, &definition, &tc.CreatedAt, &tc.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan suite member")
		}
		tc.Definition = json.RawMessage(definition)
		members = append(members, &tc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating suite members")
	}

	return members, nil
}
