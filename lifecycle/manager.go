// Package lifecycle owns the write path of an execution: trigger requests
// create records and fan work out to the queue, and the status/results reads
// present executions back to callers. Workers mutate executions through the
// store's update operations, not through this package.
package lifecycle

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/testflow/testflow/artifact"
	"github.com/testflow/testflow/catalog"
	"github.com/testflow/testflow/errors"
	"github.com/testflow/testflow/execution"
	"github.com/testflow/testflow/logger"
	"github.com/testflow/testflow/queue"
)

// MemberOutcome tags the result of one member's fan-out during a suite
// trigger. Fan-out is sequential and best-effort: earlier creates are not
// rolled back when a later member fails.
type MemberOutcome struct {
	TestCaseID  string `json:"test_case_id"`
	ExecutionID string `json:"execution_id,omitempty"`
	Outcome     string `json:"outcome"` // "created" or "failed"
	Error       string `json:"error,omitempty"`
}

const (
	OutcomeCreated = "created"
	OutcomeFailed  = "failed"
)

// CaseTrigger is the response to a single-case trigger
type CaseTrigger struct {
	ExecutionID string           `json:"execution_id"`
	Status      execution.Status `json:"status"`
}

// SuiteTrigger is the response to a suite trigger. On partial fan-out
// failure it is still populated with the members created so far.
type SuiteTrigger struct {
	SuiteExecutionID     string           `json:"suite_execution_id"`
	TestCaseExecutionIDs []string         `json:"test_case_execution_ids"`
	Members              []MemberOutcome  `json:"members"`
	Status               execution.Status `json:"status"`
}

// StatusView is the lightweight status projection of one execution.
// CurrentStep is only present while the execution is running.
type StatusView struct {
	ExecutionID string           `json:"execution_id"`
	Status      execution.Status `json:"status"`
	Result      execution.Result `json:"result,omitempty"`
	CurrentStep *int             `json:"current_step,omitempty"`
	TotalSteps  int              `json:"total_steps"`
	DurationMS  int64            `json:"duration_ms"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     *time.Time       `json:"end_time,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Results is the full execution record plus resolved screenshot URLs.
// The URL list may be shorter than the screenshot key list when
// individual resolutions fail.
type Results struct {
	*execution.Execution
	ScreenshotURLs []string `json:"screenshot_urls"`
}

// workMessage is the queue payload handed to the automation worker
type workMessage struct {
	ExecutionID      string          `json:"execution_id"`
	TestCaseID       string          `json:"test_case_id"`
	SuiteExecutionID string          `json:"suite_execution_id,omitempty"`
	Definition       json.RawMessage `json:"definition"`
	TriggeredBy      string          `json:"triggered_by"`
	Environment      string          `json:"environment,omitempty"`
}

// Manager coordinates execution creation, queue fan-out, and reads.
// All collaborators are injected.
type Manager struct {
	store    *execution.Store
	queue    queue.Publisher
	catalog  catalog.Lookup
	resolver artifact.Resolver
	log      *zap.SugaredLogger
}

// NewManager creates a lifecycle manager. logger may be nil, in which case
// the global logger is used.
func NewManager(store *execution.Store, q queue.Publisher, cat catalog.Lookup, resolver artifact.Resolver, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = logger.Logger
	}
	return &Manager{
		store:    store,
		queue:    q,
		catalog:  cat,
		resolver: resolver,
		log:      log,
	}
}

// TriggerCase creates a queued execution for one test case and publishes a
// work message for it. If the publish fails after the create succeeded, the
// record stays queued with no corresponding work message; that gap is
// reported to the caller and never rolled back.
func (m *Manager) TriggerCase(testCaseID, triggeredBy, environment string) (*CaseTrigger, error) {
	if testCaseID == "" {
		return nil, errors.NewInvalidRequestError("testCaseId is required")
	}
	if triggeredBy == "" {
		return nil, errors.NewInvalidRequestError("triggeredBy is required")
	}

	tc, err := m.catalog.GetTestCase(testCaseID)
	if err != nil {
		return nil, err
	}

	e, err := m.createAndEnqueue(tc, triggeredBy, environment, "", "")
	if err != nil {
		return nil, err
	}

	m.log.Infow("triggered test case",
		logger.FieldExecutionID, e.ID,
		logger.FieldTestCaseID, testCaseID,
		logger.FieldTriggeredBy, triggeredBy,
	)

	return &CaseTrigger{ExecutionID: e.ID, Status: e.Status}, nil
}

// TriggerSuite fans one suite trigger out into a child execution per member
// test case, all sharing a fresh suite execution id. Members are processed
// in suite order; the first failure aborts the remaining members and is
// surfaced as the overall error, with the partial SuiteTrigger attached so
// callers can see which children were created.
func (m *Manager) TriggerSuite(testSuiteID, triggeredBy, environment string) (*SuiteTrigger, error) {
	if testSuiteID == "" {
		return nil, errors.NewInvalidRequestError("testSuiteId is required")
	}
	if triggeredBy == "" {
		return nil, errors.NewInvalidRequestError("triggeredBy is required")
	}

	members, err := m.catalog.GetSuiteMembers(testSuiteID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, errors.NewInvalidRequestError("test suite %s has no member test cases", testSuiteID)
	}

	trigger := &SuiteTrigger{
		SuiteExecutionID: execution.NewSuiteExecutionID(),
		Status:           execution.StatusQueued,
	}

	for _, tc := range members {
		e, memberErr := m.createAndEnqueue(tc, triggeredBy, environment, testSuiteID, trigger.SuiteExecutionID)
		if memberErr != nil {
			trigger.Members = append(trigger.Members, MemberOutcome{
				TestCaseID: tc.ID,
				Outcome:    OutcomeFailed,
				Error:      memberErr.Error(),
			})
			m.log.Errorw("suite fan-out aborted",
				logger.FieldSuiteExecutionID, trigger.SuiteExecutionID,
				logger.FieldTestCaseID, tc.ID,
				logger.FieldCount, len(trigger.TestCaseExecutionIDs),
				logger.FieldError, memberErr,
			)
			err = errors.Wrapf(memberErr, "suite fan-out failed at member %s after %d of %d children",
				tc.ID, len(trigger.TestCaseExecutionIDs), len(members))
			return trigger, err
		}
		trigger.TestCaseExecutionIDs = append(trigger.TestCaseExecutionIDs, e.ID)
		trigger.Members = append(trigger.Members, MemberOutcome{
			TestCaseID:  tc.ID,
			ExecutionID: e.ID,
			Outcome:     OutcomeCreated,
		})
	}

	m.log.Infow("triggered test suite",
		logger.FieldSuiteExecutionID, trigger.SuiteExecutionID,
		logger.FieldTestSuiteID, testSuiteID,
		logger.FieldCount, len(trigger.TestCaseExecutionIDs),
		logger.FieldTriggeredBy, triggeredBy,
	)

	return trigger, nil
}

// createAndEnqueue performs the per-execution trigger sequence: construct a
// queued record, conditionally create it, then publish its work message.
func (m *Manager) createAndEnqueue(tc *catalog.TestCase, triggeredBy, environment, testSuiteID, suiteExecutionID string) (*execution.Execution, error) {
	e := execution.New(tc.ProjectID, tc.ID, triggeredBy, environment)
	e.TestSuiteID = testSuiteID
	e.SuiteExecutionID = suiteExecutionID

	if err := m.store.Create(e); err != nil {
		return nil, err
	}

	body, err := json.Marshal(workMessage{
		ExecutionID:      e.ID,
		TestCaseID:       tc.ID,
		SuiteExecutionID: suiteExecutionID,
		Definition:       tc.Definition,
		TriggeredBy:      triggeredBy,
		Environment:      environment,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal work message")
	}

	if err := m.queue.Publish(e.ID, body); err != nil {
		// Record stays queued with no queued work; callers see the failure
		err = errors.Wrapf(err, "execution %s created but not enqueued", e.ID)
		return nil, errors.Mark(err, errors.ErrServiceUnavailable)
	}

	return e, nil
}

// GetStatus returns the status view for one execution. This is a pure read.
func (m *Manager) GetStatus(executionID string) (*StatusView, error) {
	e, err := m.store.Get(executionID)
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		ExecutionID: e.ID,
		Status:      e.Status,
		Result:      e.Result,
		TotalSteps:  len(e.Steps),
		DurationMS:  e.LiveDuration(time.Now().UTC()),
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Error:       e.Error,
	}
	if e.Status == execution.StatusRunning {
		current := e.CompletedSteps()
		view.CurrentStep = &current
	}
	return view, nil
}

// GetResults returns the full execution with each screenshot key resolved
// to a retrievable URL. Keys that fail to resolve are logged and skipped;
// screenshots are diagnostic, so a shorter URL list is not an error.
func (m *Manager) GetResults(executionID string) (*Results, error) {
	e, err := m.store.Get(executionID)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(e.Screenshots))
	for _, key := range e.Screenshots {
		url, resolveErr := m.resolver.Resolve(key)
		if resolveErr != nil {
			m.log.Warnw("skipping unresolvable screenshot",
				logger.FieldExecutionID, e.ID,
				"screenshot_key", key,
				logger.FieldError, resolveErr,
			)
			continue
		}
		urls = append(urls, url)
	}

	return &Results{Execution: e, ScreenshotURLs: urls}, nil
}
