package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/umputun/wellscope/pkg/domain"
	"github.com/umputun/wellscope/pkg/feed"
	"github.com/umputun/wellscope/pkg/report"
	"github.com/umputun/wellscope/pkg/repository"
)

// reportRequest is the body for report creation and synchronous analysis
type reportRequest struct {
	Token    string `json:"token"`
	MaxItems int    `json:"max_items,omitempty"`
}

// createReportHandler queues a new report and returns its ID immediately
func (s *Server) createReportHandler(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		renderError(w, r, report.ErrNoToken, http.StatusBadRequest)
		return
	}
	if req.MaxItems < 0 {
		renderError(w, r, fmt.Errorf("max_items can't be negative"), http.StatusBadRequest)
		return
	}

	rep := &domain.Report{
		ID:       uuid.NewString(),
		Token:    req.Token,
		MaxItems: req.MaxItems,
		Status:   domain.ReportPending,
	}

	if err := s.store.Create(r.Context(), rep); err != nil {
		lgr.Printf("[ERROR] failed to create report: %v", err)
		renderError(w, r, fmt.Errorf("failed to create report"), http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusAccepted, map[string]string{
		"report_id": rep.ID,
		"status":    string(rep.Status),
	})
}

// getReportHandler returns a single report with its current lifecycle state
func (s *Server) getReportHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rep, err := s.store.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		renderError(w, r, err, http.StatusNotFound)
		return
	}
	if err != nil {
		lgr.Printf("[ERROR] failed to get report %s: %v", id, err)
		renderError(w, r, fmt.Errorf("failed to get report"), http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, rep)
}

// listReportsHandler returns reports, newest first, with optional status filter
func (s *Server) listReportsHandler(w http.ResponseWriter, r *http.Request) {
	status := domain.ReportStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.ReportPending, domain.ReportProcessing, domain.ReportCompleted, domain.ReportFailed:
	default:
		renderError(w, r, fmt.Errorf("invalid status %q", status), http.StatusBadRequest)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		val, err := strconv.Atoi(limitStr)
		if err != nil || val <= 0 {
			renderError(w, r, fmt.Errorf("invalid limit"), http.StatusBadRequest)
			return
		}
		limit = val
	}

	reports, err := s.store.List(r.Context(), status, limit)
	if err != nil {
		lgr.Printf("[ERROR] failed to list reports: %v", err)
		renderError(w, r, fmt.Errorf("failed to list reports"), http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, map[string]interface{}{"reports": reports, "count": len(reports)})
}

// analyzeHandler runs a full analysis synchronously and returns the result.
// Useful for small feeds and debugging, big runs should go through /reports.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}

	result, err := s.runner.Analyze(r.Context(), report.Request{Token: req.Token, MaxItems: req.MaxItems})
	switch {
	case errors.Is(err, report.ErrNoToken):
		renderError(w, r, err, http.StatusBadRequest)
		return
	case errors.Is(err, feed.ErrAuth):
		renderError(w, r, err, http.StatusUnauthorized)
		return
	case err != nil:
		lgr.Printf("[ERROR] analysis failed: %v", err)
		renderError(w, r, fmt.Errorf("analysis failed"), http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, map[string]interface{}{
		"profile":         result.Profile,
		"insights":        result.Insights,
		"metrics":         result.Metrics,
		"recommendations": result.Recommendations,
	})
}

// statusHandler returns server status and report counts per lifecycle state
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}

	if stats, err := s.store.Stats(r.Context()); err == nil {
		status["reports"] = stats
	} else {
		lgr.Printf("[WARN] failed to get report stats: %v", err)
	}

	renderJSON(w, r, http.StatusOK, status)
}
