package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pushgate/internal/audit"
	"pushgate/internal/security"

	"github.com/go-chi/chi/v5"
)

const (
	// DefaultAttemptsLimit bounds list responses unless ?limit= is given.
	DefaultAttemptsLimit = 20
	MaxAttemptsLimit     = 200
)

// attemptView is the JSON shape of one audit record.
type attemptView struct {
	ID            int64  `json:"id"`
	Branch        string `json:"branch"`
	Remote        string `json:"remote"`
	Version       string `json:"version,omitempty"`
	AttemptNumber int    `json:"attempt_number"`
	Phase         string `json:"phase"`
	Outcome       string `json:"outcome,omitempty"`
	Detail        string `json:"detail,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toViews(records []audit.AttemptRecord) []attemptView {
	views := make([]attemptView, len(records))
	for i, rec := range records {
		views[i] = attemptView{
			ID:            rec.ID,
			Branch:        rec.Branch,
			Remote:        rec.Remote,
			Version:       rec.Version,
			AttemptNumber: rec.AttemptNumber,
			Phase:         string(rec.Phase),
			Outcome:       string(rec.Outcome),
			Detail:        rec.Detail,
			CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return views
}

// HandleHealth handles health check requests.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status": "ok",
		"audit":  s.Audit.Path(),
	}
	s.respondJSON(w, http.StatusOK, response)
}

// HandleAttempts lists the most recent push attempts across all branches.
func (s *Server) HandleAttempts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	records, err := s.Audit.RecentAttempts(r.Context(), limit)
	if err != nil {
		s.Logger.Error("Failed to read attempts", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read audit trail"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"attempts": toViews(records),
		"count":    len(records),
	})
}

// HandleBranchAttempts lists recent push attempts for one branch.
func (s *Server) HandleBranchAttempts(w http.ResponseWriter, r *http.Request) {
	branch := chi.URLParam(r, "branch")

	if err := security.ValidateBranchName(branch); err != nil {
		s.Logger.Warn("Invalid branch name in status request", "branch", branch, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid branch name: %v", err)})
		return
	}

	records, err := s.Audit.AttemptsForBranch(r.Context(), branch, parseLimit(r))
	if err != nil {
		s.Logger.Error("Failed to read attempts", "error", err, "branch", branch)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read audit trail"})
		return
	}
	if len(records) == 0 {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "No attempts recorded for branch"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"branch":   branch,
		"attempts": toViews(records),
	})
}

// HandleMetrics returns aggregated outcome counters.
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Audit.Summarize(r.Context())
	if err != nil {
		s.Logger.Error("Failed to aggregate metrics", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to aggregate metrics"})
		return
	}

	s.respondJSON(w, http.StatusOK, summary)
}

func parseLimit(r *http.Request) int {
	limit := DefaultAttemptsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > MaxAttemptsLimit {
		limit = MaxAttemptsLimit
	}
	return limit
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}
