package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testflow/testflow/errors"
	"github.com/testflow/testflow/execution"
	tftest "github.com/testflow/testflow/internal/testing"
)

func newService(t *testing.T) (*Service, *execution.Store) {
	t.Helper()
	store := execution.NewStore(tftest.CreateTestDB(t))
	return NewService(store, 50, 500), store
}

func seedExecutions(t *testing.T, store *execution.Store, n int) {
	t.Helper()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := execution.New("proj-1", "tc-1", "user@example.com", "")
		e.TestSuiteID = "suite-1"
		e.SuiteExecutionID = "sx_1"
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		e.UpdatedAt = e.CreatedAt
		require.NoError(t, store.Create(e))
	}
}

func TestQueryValidation(t *testing.T) {
	svc, _ := newService(t)

	t.Run("no identifier filter is a validation error", func(t *testing.T) {
		_, err := svc.Query(Filter{})
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
	})

	t.Run("time range only is still a validation error", func(t *testing.T) {
		now := time.Now()
		_, err := svc.Query(Filter{StartDate: &now})
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
	})

	t.Run("inverted time range rejected", func(t *testing.T) {
		start := time.Now()
		end := start.Add(-time.Hour)
		_, err := svc.Query(Filter{ProjectID: "proj-1", StartDate: &start, EndDate: &end})
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
	})

	t.Run("malformed page token rejected", func(t *testing.T) {
		_, err := svc.Query(Filter{ProjectID: "proj-1", PageToken: "not!!a!!token"})
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
	})
}

func TestIndexPriority(t *testing.T) {
	// suiteExecutionId wins over every other identifier
	index, key, err := selectIndex(Filter{
		ProjectID:        "proj-1",
		TestCaseID:       "tc-1",
		TestSuiteID:      "suite-1",
		SuiteExecutionID: "sx_1",
	})
	require.NoError(t, err)
	assert.Equal(t, execution.IndexSuiteExecution, index)
	assert.Equal(t, "sx_1", key)

	index, _, err = selectIndex(Filter{ProjectID: "proj-1", TestSuiteID: "suite-1"})
	require.NoError(t, err)
	assert.Equal(t, execution.IndexTestSuite, index)

	index, _, err = selectIndex(Filter{ProjectID: "proj-1", TestCaseID: "tc-1"})
	require.NoError(t, err)
	assert.Equal(t, execution.IndexTestCase, index)

	index, _, err = selectIndex(Filter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Equal(t, execution.IndexProject, index)
}

func TestQueryPagination(t *testing.T) {
	svc, store := newService(t)
	seedExecutions(t, store, 7)

	page1, err := svc.Query(Filter{ProjectID: "proj-1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, page1.Executions, 3)
	require.NotEmpty(t, page1.NextPageToken)

	page2, err := svc.Query(Filter{ProjectID: "proj-1", Limit: 3, PageToken: page1.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page2.Executions, 3)

	page3, err := svc.Query(Filter{ProjectID: "proj-1", Limit: 3, PageToken: page2.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page3.Executions, 1)

	// Most-recent-first across the whole walk, no duplicates
	seen := map[string]bool{}
	var all []*execution.Execution
	all = append(all, page1.Executions...)
	all = append(all, page2.Executions...)
	all = append(all, page3.Executions...)
	for i, e := range all {
		assert.False(t, seen[e.ID], "no execution repeats across pages")
		seen[e.ID] = true
		if i > 0 {
			assert.False(t, e.CreatedAt.After(all[i-1].CreatedAt))
		}
	}
}

func TestQueryLimits(t *testing.T) {
	store := execution.NewStore(tftest.CreateTestDB(t))
	svc := NewService(store, 2, 3)
	seedExecutions(t, store, 5)

	t.Run("zero limit uses default", func(t *testing.T) {
		page, err := svc.Query(Filter{ProjectID: "proj-1"})
		require.NoError(t, err)
		assert.Len(t, page.Executions, 2)
	})

	t.Run("oversized limit is capped", func(t *testing.T) {
		page, err := svc.Query(Filter{ProjectID: "proj-1", Limit: 100})
		require.NoError(t, err)
		assert.Len(t, page.Executions, 3)
	})
}

func TestQueryTimeRange(t *testing.T) {
	svc, store := newService(t)
	seedExecutions(t, store, 5)

	start := time.Date(2026, 8, 1, 0, 1, 0, 0, time.UTC)
	end := time.Date(2026, 8, 1, 0, 3, 0, 0, time.UTC)
	page, err := svc.Query(Filter{ProjectID: "proj-1", StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	assert.Len(t, page.Executions, 3)
}
