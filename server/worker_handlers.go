package server

import (
	"net/http"

	"github.com/testflow/testflow/execution"
	"github.com/testflow/testflow/logger"
)

// The worker callback surface. The automation worker that consumes work
// messages reports progress back through these endpoints; every mutation
// goes through the store's monotonic transition guards, so an out-of-order
// or duplicate callback gets a 400, never a silent overwrite.

// StepRequest is the body of POST /api/executions/{id}/steps
type StepRequest struct {
	Action     string `json:"action"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

// FinishRequest is the body of POST /api/executions/{id}/finish
type FinishRequest struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// handleWorkerStart handles POST /api/executions/{id}/start
func (s *Server) handleWorkerStart(w http.ResponseWriter, r *http.Request, executionID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	e, err := s.store.MarkRunning(executionID)
	if err != nil {
		writeErrorKind(w, err)
		return
	}

	s.log.Infow("execution started",
		logger.FieldExecutionID, executionID,
		logger.FieldStatus, e.Status,
	)
	writeJSON(w, http.StatusOK, e)
}

// handleWorkerStep handles POST /api/executions/{id}/steps
func (s *Server) handleWorkerStep(w http.ResponseWriter, r *http.Request, executionID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req StepRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	if req.Status != "" && !execution.IsValidStepStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid step status: "+req.Status)
		return
	}

	e, err := s.store.AppendStep(executionID, execution.Step{
		Action:     req.Action,
		Status:     execution.StepStatus(req.Status),
		DurationMS: req.DurationMS,
		Error:      req.Error,
		Screenshot: req.Screenshot,
	})
	if err != nil {
		writeErrorKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleWorkerFinish handles POST /api/executions/{id}/finish. After a
// suite member finishes, the suite aggregate is refreshed so parents stay
// close to their children without waiting for the next results read.
func (s *Server) handleWorkerFinish(w http.ResponseWriter, r *http.Request, executionID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req FinishRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if !execution.IsValidResult(req.Result) {
		writeError(w, http.StatusBadRequest, "invalid result: "+req.Result)
		return
	}

	e, err := s.store.Finish(executionID, execution.Result(req.Result), req.Error)
	if err != nil {
		writeErrorKind(w, err)
		return
	}

	s.log.Infow("execution finished",
		logger.FieldExecutionID, executionID,
		logger.FieldStatus, e.Status,
		logger.FieldResult, e.Result,
		logger.FieldDurationMS, e.DurationMS,
	)

	if e.SuiteExecutionID != "" {
		if _, refreshErr := s.aggregator.Refresh(e.SuiteExecutionID); refreshErr != nil {
			s.log.Warnw("suite aggregate refresh failed",
				logger.FieldSuiteExecutionID, e.SuiteExecutionID,
				logger.FieldError, refreshErr,
			)
		}
	}

	writeJSON(w, http.StatusOK, e)
}
