package lifecycle

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testflow/testflow/artifact"
	"github.com/testflow/testflow/catalog"
	"github.com/testflow/testflow/errors"
	"github.com/testflow/testflow/execution"
	tftest "github.com/testflow/testflow/internal/testing"
	"github.com/testflow/testflow/queue"
)

// recordingPublisher captures published messages; failAfter makes publishes
// beyond that count fail, to exercise partial fan-out.
type recordingPublisher struct {
	published []string
	bodies    []json.RawMessage
	failAfter int // -1 means never fail
}

func (p *recordingPublisher) Publish(executionID string, body json.RawMessage) error {
	if p.failAfter >= 0 && len(p.published) >= p.failAfter {
		return errors.New("queue unavailable")
	}
	p.published = append(p.published, executionID)
	p.bodies = append(p.bodies, body)
	return nil
}

// failingResolver fails for one specific key and resolves all others
type failingResolver struct {
	failKey string
}

func (r *failingResolver) Resolve(key string) (string, error) {
	if key == r.failKey {
		return "", errors.New("artifact store timeout")
	}
	return "https://artifacts.example.com/" + key, nil
}

func seedCatalog(t *testing.T, db *sql.DB) {
	t.Helper()

	seed := []string{
		`INSERT INTO test_cases (id, project_id, name, definition) VALUES
			('tc-1', 'proj-1', 'login works', '{"steps":[{"action":"navigate"}]}'),
			('tc-2', 'proj-1', 'logout works', '{"steps":[]}'),
			('tc-3', 'proj-1', 'checkout works', '{"steps":[]}')`,
		`INSERT INTO test_suites (id, project_id, name) VALUES
			('suite-1', 'proj-1', 'smoke'),
			('suite-empty', 'proj-1', 'nothing here')`,
		`INSERT INTO test_suite_members (suite_id, test_case_id, position) VALUES
			('suite-1', 'tc-1', 0),
			('suite-1', 'tc-2', 1),
			('suite-1', 'tc-3', 2)`,
	}
	for _, stmt := range seed {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func newManager(t *testing.T) (*Manager, *execution.Store, *recordingPublisher) {
	t.Helper()
	db := tftest.CreateTestDB(t)
	seedCatalog(t, db)
	pub := &recordingPublisher{failAfter: -1}
	store := execution.NewStore(db)
	m := NewManager(store, pub, catalog.NewSQLiteLookup(db), artifact.NewBaseURLResolver("https://artifacts.example.com"), nil)
	return m, store, pub
}

func TestTriggerCase(t *testing.T) {
	m, store, pub := newManager(t)

	trigger, err := m.TriggerCase("tc-1", "user@example.com", "staging")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusQueued, trigger.Status)
	require.NotEmpty(t, trigger.ExecutionID)

	e, err := store.Get(trigger.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusQueued, e.Status)
	assert.Equal(t, "proj-1", e.ProjectID)
	assert.Equal(t, "tc-1", e.TestCaseID)
	assert.Equal(t, "user@example.com", e.TriggeredBy)
	assert.Equal(t, "staging", e.Environment)
	assert.Empty(t, e.Steps)
	assert.Empty(t, e.Screenshots)

	// One work message carrying the resolved definition
	require.Len(t, pub.published, 1)
	assert.Equal(t, trigger.ExecutionID, pub.published[0])
	var msg workMessage
	require.NoError(t, json.Unmarshal(pub.bodies[0], &msg))
	assert.Equal(t, "tc-1", msg.TestCaseID)
	assert.JSONEq(t, `{"steps":[{"action":"navigate"}]}`, string(msg.Definition))
}

func TestTriggerCaseErrors(t *testing.T) {
	m, _, pub := newManager(t)

	t.Run("unknown test case", func(t *testing.T) {
		_, err := m.TriggerCase("tc-missing", "user@example.com", "")
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
		assert.Empty(t, pub.published)
	})

	t.Run("missing test case id", func(t *testing.T) {
		_, err := m.TriggerCase("", "user@example.com", "")
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
	})

	t.Run("missing principal", func(t *testing.T) {
		_, err := m.TriggerCase("tc-1", "", "")
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
	})
}

func TestTriggerCasePublishFailureLeavesRecordQueued(t *testing.T) {
	m, store, pub := newManager(t)
	pub.failAfter = 0

	_, err := m.TriggerCase("tc-1", "user@example.com", "")
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailableError(err))

	// The create is not rolled back: exactly one queued record exists
	execs, _, err := store.QueryByIndex(execution.IndexTestCase, "tc-1", execution.QueryOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, execution.StatusQueued, execs[0].Status)
}

func TestGetStatusImmediatelyAfterTrigger(t *testing.T) {
	m, _, _ := newManager(t)

	trigger, err := m.TriggerCase("tc-1", "user@example.com", "")
	require.NoError(t, err)

	view, err := m.GetStatus(trigger.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusQueued, view.Status)
	assert.Nil(t, view.CurrentStep)
	assert.Equal(t, 0, view.TotalSteps)
	assert.GreaterOrEqual(t, view.DurationMS, int64(0))
}

func TestGetStatusRunning(t *testing.T) {
	m, store, _ := newManager(t)

	trigger, err := m.TriggerCase("tc-1", "user@example.com", "")
	require.NoError(t, err)

	_, err = store.MarkRunning(trigger.ExecutionID)
	require.NoError(t, err)
	_, err = store.AppendStep(trigger.ExecutionID, execution.Step{Action: "navigate", Status: execution.StepPass})
	require.NoError(t, err)
	// second step reported without an outcome yet
	_, err = store.AppendStep(trigger.ExecutionID, execution.Step{Action: "click"})
	require.NoError(t, err)

	view, err := m.GetStatus(trigger.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusRunning, view.Status)
	require.NotNil(t, view.CurrentStep)
	assert.Equal(t, 1, *view.CurrentStep) // one step reached a terminal step status
	assert.Equal(t, 2, view.TotalSteps)
}

func TestGetStatusNotFound(t *testing.T) {
	m, _, _ := newManager(t)
	_, err := m.GetStatus("ex_missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestTriggerSuite(t *testing.T) {
	m, store, pub := newManager(t)

	trigger, err := m.TriggerSuite("suite-1", "user@example.com", "staging")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusQueued, trigger.Status)
	require.NotEmpty(t, trigger.SuiteExecutionID)
	require.Len(t, trigger.TestCaseExecutionIDs, 3)
	require.Len(t, trigger.Members, 3)
	for _, member := range trigger.Members {
		assert.Equal(t, OutcomeCreated, member.Outcome)
		assert.NotEmpty(t, member.ExecutionID)
	}
	// Members in suite order
	assert.Equal(t, "tc-1", trigger.Members[0].TestCaseID)
	assert.Equal(t, "tc-2", trigger.Members[1].TestCaseID)
	assert.Equal(t, "tc-3", trigger.Members[2].TestCaseID)

	// All children share the suite execution id and carry the suite id
	children, err := store.ListBySuiteExecution(trigger.SuiteExecutionID)
	require.NoError(t, err)
	require.Len(t, children, 3)
	for _, child := range children {
		assert.Equal(t, trigger.SuiteExecutionID, child.SuiteExecutionID)
		assert.Equal(t, "suite-1", child.TestSuiteID)
		assert.Equal(t, execution.StatusQueued, child.Status)
	}

	assert.Len(t, pub.published, 3)
}

func TestTriggerSuiteErrors(t *testing.T) {
	m, _, _ := newManager(t)

	t.Run("unknown suite", func(t *testing.T) {
		_, err := m.TriggerSuite("suite-missing", "user@example.com", "")
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("empty suite", func(t *testing.T) {
		_, err := m.TriggerSuite("suite-empty", "user@example.com", "")
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
	})
}

func TestTriggerSuitePartialFanOut(t *testing.T) {
	m, store, pub := newManager(t)
	pub.failAfter = 2 // third publish fails

	trigger, err := m.TriggerSuite("suite-1", "user@example.com", "")
	require.Error(t, err)
	require.NotNil(t, trigger)

	// Two members created, the third tagged failed, fan-out aborted
	assert.Len(t, trigger.TestCaseExecutionIDs, 2)
	require.Len(t, trigger.Members, 3)
	assert.Equal(t, OutcomeCreated, trigger.Members[0].Outcome)
	assert.Equal(t, OutcomeCreated, trigger.Members[1].Outcome)
	assert.Equal(t, OutcomeFailed, trigger.Members[2].Outcome)
	assert.NotEmpty(t, trigger.Members[2].Error)

	// Earlier creates are not rolled back. The failed member's record also
	// exists (create succeeded, publish did not) but stays queued forever
	// unless re-triggered.
	children, err := store.ListBySuiteExecution(trigger.SuiteExecutionID)
	require.NoError(t, err)
	assert.Len(t, children, 3)
	assert.Len(t, pub.published, 2)
}

func TestGetResults(t *testing.T) {
	db := tftest.CreateTestDB(t)
	seedCatalog(t, db)
	store := execution.NewStore(db)

	e := execution.New("proj-1", "tc-1", "user@example.com", "")
	e.Screenshots = []string{"runs/ex1/step-0.png", "runs/ex1/step-1.png"}
	require.NoError(t, store.Create(e))

	t.Run("all keys resolve", func(t *testing.T) {
		m := NewManager(store, &recordingPublisher{failAfter: -1}, catalog.NewSQLiteLookup(db),
			artifact.NewBaseURLResolver("https://artifacts.example.com"), nil)
		results, err := m.GetResults(e.ID)
		require.NoError(t, err)
		require.Len(t, results.ScreenshotURLs, 2)
		assert.Equal(t, "https://artifacts.example.com/runs/ex1/step-0.png", results.ScreenshotURLs[0])
	})

	t.Run("one key fails to resolve", func(t *testing.T) {
		m := NewManager(store, &recordingPublisher{failAfter: -1}, catalog.NewSQLiteLookup(db),
			&failingResolver{failKey: "runs/ex1/step-0.png"}, nil)
		results, err := m.GetResults(e.ID)
		require.NoError(t, err)
		require.Len(t, results.ScreenshotURLs, 1)
		assert.Equal(t, "https://artifacts.example.com/runs/ex1/step-1.png", results.ScreenshotURLs[0])
	})

	t.Run("unknown execution", func(t *testing.T) {
		m := NewManager(store, &recordingPublisher{failAfter: -1}, catalog.NewSQLiteLookup(db),
			artifact.NewBaseURLResolver("https://artifacts.example.com"), nil)
		_, err := m.GetResults("ex_missing")
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})
}

var _ queue.Publisher = (*recordingPublisher)(nil)
var _ artifact.Resolver = (*failingResolver)(nil)
