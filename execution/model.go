// Package execution defines the execution record data model and its
// SQLite-backed store. An execution is one attempt to run one test case,
// tracked through a queued → running → {completed, error} lifecycle.
package execution

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/testflow/testflow/errors"
)

// Status represents the lifecycle state of an execution
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusQueued, StatusRunning, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for completed and error. No execution transitions
// out of a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. Permitted: queued→running, running→completed, running→error,
// queued→error.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusError
	case StatusRunning:
		return next == StatusCompleted || next == StatusError
	default:
		return false
	}
}

// Result represents the terminal outcome of an execution. The zero value
// means no terminal outcome is known yet.
type Result string

const (
	ResultPass  Result = "pass"
	ResultFail  Result = "fail"
	ResultError Result = "error"
)

// IsValidResult returns true if the result string is a valid Result
func IsValidResult(r string) bool {
	switch Result(r) {
	case ResultPass, ResultFail, ResultError:
		return true
	default:
		return false
	}
}

// StepStatus is the per-step outcome
type StepStatus string

const (
	StepPass  StepStatus = "pass"
	StepFail  StepStatus = "fail"
	StepError StepStatus = "error"
)

// IsValidStepStatus reports whether s is a recognized per-step status
func IsValidStepStatus(s string) bool {
	switch StepStatus(s) {
	case StepPass, StepFail, StepError:
		return true
	default:
		return false
	}
}

// Step records the outcome of one action within an execution
type Step struct {
	Index      int        `json:"index"`
	Action     string     `json:"action"`
	Status     StepStatus `json:"status"`
	DurationMS int64      `json:"duration_ms,omitempty"`
	Error      string     `json:"error,omitempty"`
	Screenshot string     `json:"screenshot,omitempty"` // artifact key, resolved externally
}

// SuiteStats are the aggregate counts computed over the children of one
// suite execution. Persisted (best effort) onto the parent record only as a
// cache; recomputation from children is always the source of truth.
type SuiteStats struct {
	Total      int   `json:"total"`
	Passed     int   `json:"passed"`
	Failed     int   `json:"failed"`
	Errors     int   `json:"errors"`
	DurationMS int64 `json:"duration_ms"`
}

// Execution is one attempt to run one test case
type Execution struct {
	ID               string      `json:"id"`
	ProjectID        string      `json:"project_id,omitempty"`
	TestCaseID       string      `json:"test_case_id,omitempty"`
	TestSuiteID      string      `json:"test_suite_id,omitempty"`
	SuiteExecutionID string      `json:"suite_execution_id,omitempty"`
	Status           Status      `json:"status"`
	Result           Result      `json:"result,omitempty"`
	StartTime        time.Time   `json:"start_time"`
	EndTime          *time.Time  `json:"end_time,omitempty"`
	DurationMS       int64       `json:"duration_ms,omitempty"`
	Steps            []Step      `json:"steps"`
	Screenshots      []string    `json:"screenshots"`
	SuiteStats       *SuiteStats `json:"suite_stats,omitempty"` // parent records only
	TriggeredBy      string      `json:"triggered_by"`
	Environment      string      `json:"environment,omitempty"`
	Error            string      `json:"error,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// NewExecutionID generates a fresh execution identifier
func NewExecutionID() string {
	return "ex_" + uuid.NewString()
}

// NewSuiteExecutionID generates a fresh suite-execution identifier, shared
// by all members of one suite trigger
func NewSuiteExecutionID() string {
	return "sx_" + uuid.NewString()
}

// New constructs a queued execution for a test case trigger
func New(projectID, testCaseID, triggeredBy, environment string) *Execution {
	now := time.Now().UTC()
	return &Execution{
		ID:          NewExecutionID(),
		ProjectID:   projectID,
		TestCaseID:  testCaseID,
		Status:      StatusQueued,
		StartTime:   now,
		Steps:       []Step{},
		Screenshots: []string{},
		TriggeredBy: triggeredBy,
		Environment: environment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Start marks the execution as running
func (e *Execution) Start() error {
	if !e.Status.CanTransition(StatusRunning) {
		return errors.NewInvalidRequestError("cannot start execution %s from status %s", e.ID, e.Status)
	}
	e.Status = StatusRunning
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Finish moves the execution into its terminal state. A pass or fail result
// completes the execution; an error result moves it to status error (which
// is also legal straight from queued, for executions that die before
// starting).
func (e *Execution) Finish(result Result, errMsg string) error {
	target := StatusCompleted
	if result == ResultError {
		target = StatusError
	}
	if !e.Status.CanTransition(target) {
		return errors.NewInvalidRequestError("cannot finish execution %s: illegal transition %s -> %s", e.ID, e.Status, target)
	}

	now := time.Now().UTC()
	e.Status = target
	e.Result = result
	e.Error = errMsg
	e.EndTime = &now
	e.DurationMS = now.Sub(e.StartTime).Milliseconds()
	e.UpdatedAt = now
	return nil
}

// AppendStep records one step outcome. The step's screenshot key, if any,
// is also tracked on the execution's screenshot list.
func (e *Execution) AppendStep(step Step) error {
	if e.Status.IsTerminal() {
		return errors.NewInvalidRequestError("cannot append step to execution %s in terminal status %s", e.ID, e.Status)
	}
	step.Index = len(e.Steps)
	e.Steps = append(e.Steps, step)
	if step.Screenshot != "" {
		e.Screenshots = append(e.Screenshots, step.Screenshot)
	}
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// CompletedSteps counts steps that reached a terminal per-step status
func (e *Execution) CompletedSteps() int {
	n := 0
	for _, s := range e.Steps {
		switch s.Status {
		case StepPass, StepFail, StepError:
			n++
		}
	}
	return n
}

// LiveDuration returns the stored duration for finished executions, or a
// live estimate (now − startTime) for in-flight ones.
func (e *Execution) LiveDuration(now time.Time) int64 {
	if e.EndTime != nil {
		return e.DurationMS
	}
	return now.Sub(e.StartTime).Milliseconds()
}

func marshalSteps(steps []Step) (string, error) {
	if len(steps) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal steps")
	}
	return string(data), nil
}

func unmarshalSteps(data string) ([]Step, error) {
	if data == "" {
		return []Step{}, nil
	}
	var steps []Step
	if err := json.Unmarshal([]byte(data), &steps); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal steps")
	}
	return steps, nil
}

func marshalScreenshots(keys []string) (string, error) {
	if len(keys) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal screenshots")
	}
	return string(data), nil
}

func unmarshalScreenshots(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal screenshots")
	}
	return keys, nil
}

func marshalSuiteStats(stats *SuiteStats) (string, error) {
	if stats == nil {
		return "", nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal suite stats")
	}
	return string(data), nil
}

func unmarshalSuiteStats(data string) (*SuiteStats, error) {
	if data == "" {
		return nil, nil
	}
	var stats SuiteStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal suite stats")
	}
	return &stats, nil
}
