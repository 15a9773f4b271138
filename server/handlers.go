package server

import (
	"net/http"
	"time"

	"github.com/testflow/testflow/history"
	"github.com/testflow/testflow/internal/version"
	"github.com/testflow/testflow/logger"
)

// TriggerCaseRequest is the body of POST /api/runs/case
type TriggerCaseRequest struct {
	TestCaseID  string `json:"test_case_id"`
	TriggeredBy string `json:"triggered_by"`
	Environment string `json:"environment,omitempty"`
}

// TriggerSuiteRequest is the body of POST /api/runs/suite
type TriggerSuiteRequest struct {
	TestSuiteID string `json:"test_suite_id"`
	TriggeredBy string `json:"triggered_by"`
	Environment string `json:"environment,omitempty"`
}

// HandleTriggerCase handles POST /api/runs/case
func (s *Server) HandleTriggerCase(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req TriggerCaseRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	trigger, err := s.manager.TriggerCase(req.TestCaseID, req.TriggeredBy, req.Environment)
	if err != nil {
		s.logTriggerFailure("case", req.TestCaseID, err)
		writeErrorKind(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, trigger)
}

// HandleTriggerSuite handles POST /api/runs/suite
func (s *Server) HandleTriggerSuite(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req TriggerSuiteRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	trigger, err := s.manager.TriggerSuite(req.TestSuiteID, req.TriggeredBy, req.Environment)
	if err != nil {
		s.logTriggerFailure("suite", req.TestSuiteID, err)
		writeErrorKind(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, trigger)
}

func (s *Server) logTriggerFailure(kind, id string, err error) {
	s.log.Errorw("trigger failed",
		logger.FieldOperation, "trigger_"+kind,
		"target_id", id,
		logger.FieldError, err,
	)
}

// HandleExecution routes /api/executions/{id}/{action}: status and results
// reads plus the worker callback surface (start, steps, finish)
func (s *Server) HandleExecution(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/executions/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	executionID := parts[0]

	switch parts[1] {
	case "status":
		s.handleStatus(w, r, executionID)
	case "results":
		s.handleResults(w, r, executionID)
	case "start":
		s.handleWorkerStart(w, r, executionID)
	case "steps":
		s.handleWorkerStep(w, r, executionID)
	case "finish":
		s.handleWorkerFinish(w, r, executionID)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// handleStatus handles GET /api/executions/{id}/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, executionID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	view, err := s.manager.GetStatus(executionID)
	if err != nil {
		writeErrorKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleResults handles GET /api/executions/{id}/results
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request, executionID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	results, err := s.manager.GetResults(executionID)
	if err != nil {
		writeErrorKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// HandleSuiteResults handles GET /api/suites/{suiteExecutionId}/results.
// The aggregate is recomputed from the children on every read.
func (s *Server) HandleSuiteResults(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/suites/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "results" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	aggregate, err := s.aggregator.Refresh(parts[0])
	if err != nil {
		writeErrorKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, aggregate)
}

// HandleHistory handles GET /api/history with identifier, time range, limit,
// and page token query parameters
func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		ProjectID:        q.Get("projectId"),
		TestCaseID:       q.Get("testCaseId"),
		TestSuiteID:      q.Get("testSuiteId"),
		SuiteExecutionID: q.Get("suiteExecutionId"),
		PageToken:        q.Get("pageToken"),
	}

	if raw := q.Get("startDate"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid startDate, expected RFC3339")
			return
		}
		filter.StartDate = &ts
	}
	if raw := q.Get("endDate"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid endDate, expected RFC3339")
			return
		}
		filter.EndDate = &ts
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := parseIntParam(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	page, err := s.history.Query(filter)
	if err != nil {
		writeErrorKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleHealth handles GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	ready, inflight, err := s.queue.Depth()
	if err != nil {
		s.log.Errorw("health check queue probe failed", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
		"queue": map[string]int{
			"ready":    ready,
			"inflight": inflight,
		},
	})
}
