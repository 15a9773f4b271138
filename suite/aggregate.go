// Package suite computes aggregate status, result, and statistics over the
// child executions of one suite execution (fan-in). The aggregate is a pure
// function of the current child set; the persisted copy on the parent record
// is a best-effort cache only.
package suite

import (
	"time"

	"go.uber.org/zap"

	"github.com/testflow/testflow/errors"
	"github.com/testflow/testflow/execution"
)

// Aggregate is the suite-level view over one suite execution's children
type Aggregate struct {
	SuiteExecutionID string                 `json:"suite_execution_id"`
	TestSuiteID      string                 `json:"test_suite_id,omitempty"`
	ProjectID        string                 `json:"project_id,omitempty"`
	Stats            execution.SuiteStats   `json:"stats"`
	Status           execution.Status       `json:"status"`
	Result           execution.Result       `json:"result,omitempty"` // set only once status is terminal
	StartTime        time.Time              `json:"start_time"`
	EndTime          *time.Time             `json:"end_time,omitempty"`
	DurationMS       int64                  `json:"duration_ms,omitempty"` // endTime − startTime when endTime is known
	Children         []*execution.Execution `json:"children"`
}

// Aggregator recomputes suite aggregates from the execution store
type Aggregator struct {
	store  *execution.Store
	logger *zap.SugaredLogger
}

// NewAggregator creates a suite aggregator over the given store
func NewAggregator(store *execution.Store, logger *zap.SugaredLogger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Compute re-reads all children for the suite execution and derives the
// aggregate. No cached state is consulted: two calls with no intervening
// child mutation return identical results. Zero children unambiguously
// means the suite trigger never happened (creation always produces at least
// one child before returning), so that case is ErrNotFound.
func (a *Aggregator) Compute(suiteExecutionID string) (*Aggregate, error) {
	children, err := a.store.ListBySuiteExecution(suiteExecutionID)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, errors.NewNotFoundError("suite execution not found: %s", suiteExecutionID)
	}

	agg := &Aggregate{
		SuiteExecutionID: suiteExecutionID,
		TestSuiteID:      children[0].TestSuiteID,
		ProjectID:        children[0].ProjectID,
		Children:         children,
	}

	aggregateStats(agg, children)
	aggregateStatus(agg, children)
	aggregateTiming(agg, children)

	return agg, nil
}

// Refresh recomputes the aggregate and persists it onto the parent record.
// The write-back is best effort: a failure is logged and the computed
// aggregate is still returned, because recomputation from children is
// always authoritative.
func (a *Aggregator) Refresh(suiteExecutionID string) (*Aggregate, error) {
	agg, err := a.Compute(suiteExecutionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stats := agg.Stats
	parent := &execution.Execution{
		ID:          agg.SuiteExecutionID,
		ProjectID:   agg.ProjectID,
		TestSuiteID: agg.TestSuiteID,
		Status:      agg.Status,
		Result:      agg.Result,
		StartTime:   agg.StartTime,
		EndTime:     agg.EndTime,
		DurationMS:  agg.DurationMS,
		SuiteStats:  &stats,
		TriggeredBy: agg.Children[0].TriggeredBy,
		CreatedAt:   agg.Children[0].CreatedAt,
		UpdatedAt:   now,
	}

	if err := a.store.SaveSuiteAggregate(parent); err != nil {
		a.logger.Warnw("Suite aggregate write-back failed",
			"suite_execution_id", suiteExecutionID,
			"error", err)
	}

	return agg, nil
}

// aggregateStats derives the result-based counts. A child in status error
// counts toward errors even when no result was ever recorded.
func aggregateStats(agg *Aggregate, children []*execution.Execution) {
	agg.Stats.Total = len(children)
	for _, c := range children {
		switch {
		case c.Result == execution.ResultError || c.Status == execution.StatusError:
			agg.Stats.Errors++
		case c.Result == execution.ResultPass:
			agg.Stats.Passed++
		case c.Result == execution.ResultFail:
			agg.Stats.Failed++
		}
		agg.Stats.DurationMS += c.DurationMS
	}
}

// aggregateStatus derives suite status and result. Outstanding work
// dominates: any queued or running child keeps the suite running. Among an
// all-terminal set, any error child makes the suite error even if the
// majority passed; severity is surfaced, not averaged away.
func aggregateStatus(agg *Aggregate, children []*execution.Execution) {
	anyError := false
	for _, c := range children {
		if !c.Status.IsTerminal() {
			agg.Status = execution.StatusRunning
			return
		}
		if c.Status == execution.StatusError {
			anyError = true
		}
	}

	if anyError {
		agg.Status = execution.StatusError
		agg.Result = execution.ResultError
		return
	}

	agg.Status = execution.StatusCompleted
	if agg.Stats.Failed > 0 || agg.Stats.Errors > 0 {
		agg.Result = execution.ResultFail
	} else {
		agg.Result = execution.ResultPass
	}
}

// aggregateTiming derives suite-level timing: earliest child start, latest
// child end among children that have one.
func aggregateTiming(agg *Aggregate, children []*execution.Execution) {
	agg.StartTime = children[0].StartTime
	for _, c := range children {
		if !c.StartTime.IsZero() && c.StartTime.Before(agg.StartTime) {
			agg.StartTime = c.StartTime
		}
		if c.EndTime != nil && (agg.EndTime == nil || c.EndTime.After(*agg.EndTime)) {
			end := *c.EndTime
			agg.EndTime = &end
		}
	}
	if agg.EndTime != nil {
		agg.DurationMS = agg.EndTime.Sub(agg.StartTime).Milliseconds()
	}
}
