// Package history answers filtered, paginated queries over executions by
// project, test case, test suite, or suite execution. Index selection is the
// only interesting part: exactly one identifier filter must be supplied, and
// when several are present the most specific wins.
package history

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/testflow/testflow/errors"
	"github.com/testflow/testflow/execution"
)

// DefaultLimit is the page size used when a query supplies none
const DefaultLimit = 50

// Filter describes a history query. Exactly one of the four identifier
// fields must be set; when multiple are set the priority order is
// SuiteExecutionID > TestSuiteID > TestCaseID > ProjectID.
type Filter struct {
	ProjectID        string     `json:"project_id,omitempty"`
	TestCaseID       string     `json:"test_case_id,omitempty"`
	TestSuiteID      string     `json:"test_suite_id,omitempty"`
	SuiteExecutionID string     `json:"suite_execution_id,omitempty"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	Limit            int        `json:"limit,omitempty"`
	PageToken        string     `json:"page_token,omitempty"`
}

// Page is one page of history results, most recent first
type Page struct {
	Executions    []*execution.Execution `json:"executions"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

// Service serves history queries against the execution store
type Service struct {
	store        *execution.Store
	defaultLimit int
	maxLimit     int
}

// NewService creates a history query service. defaultLimit and maxLimit of 0
// fall back to DefaultLimit and 10×DefaultLimit.
func NewService(store *execution.Store, defaultLimit, maxLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = 10 * DefaultLimit
	}
	return &Service{store: store, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Query validates the filter, selects the matching secondary index, and
// returns one page ordered most-recent-first.
func (s *Service) Query(f Filter) (*Page, error) {
	index, key, err := selectIndex(f)
	if err != nil {
		return nil, err
	}

	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return nil, errors.NewInvalidRequestError("endDate precedes startDate")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	cursor, err := decodePageToken(f.PageToken)
	if err != nil {
		return nil, err
	}

	executions, next, err := s.store.QueryByIndex(index, key, execution.QueryOptions{
		StartDate: f.StartDate,
		EndDate:   f.EndDate,
		Limit:     limit,
		Cursor:    cursor,
	})
	if err != nil {
		return nil, err
	}

	return &Page{
		Executions:    executions,
		NextPageToken: encodePageToken(next),
	}, nil
}

// selectIndex picks the access path for the filter. Priority order when
// multiple identifiers are present: suiteExecutionId > testSuiteId >
// testCaseId > projectId. No identifier at all is a validation error.
func selectIndex(f Filter) (execution.Index, string, error) {
	switch {
	case f.SuiteExecutionID != "":
		return execution.IndexSuiteExecution, f.SuiteExecutionID, nil
	case f.TestSuiteID != "":
		return execution.IndexTestSuite, f.TestSuiteID, nil
	case f.TestCaseID != "":
		return execution.IndexTestCase, f.TestCaseID, nil
	case f.ProjectID != "":
		return execution.IndexProject, f.ProjectID, nil
	default:
		return "", "", errors.NewInvalidRequestError(
			"history query requires one of projectId, testCaseId, testSuiteId, suiteExecutionId")
	}
}

// encodePageToken turns a store cursor into an opaque continuation token
func encodePageToken(c *execution.Cursor) string {
	if c == nil {
		return ""
	}
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// decodePageToken parses a continuation token back into a store cursor.
// A malformed token is a caller error, not a dependency failure.
func decodePageToken(token string) (*execution.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.NewInvalidRequestError("malformed page token")
	}
	var c execution.Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.NewInvalidRequestError("malformed page token")
	}
	return &c, nil
}
