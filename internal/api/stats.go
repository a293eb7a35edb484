package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/ripq/internal/model"
	"github.com/seantiz/ripq/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// statsResponse is the JSON response for GET /stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByProfile     map[string]int `json:"by_profile"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	AvgRatio      float64        `json:"avg_ratio"`
}

// historyResponse wraps the paginated archive listing.
type historyResponse struct {
	Jobs   []*model.Summary `json:"jobs"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.history.GetJobStats(r.Context())
	if err != nil {
		s.logger.Error("get job stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		ByProfile:     stats.CountByProfile,
		AvgDurationMS: stats.AvgDurationMS,
		AvgRatio:      stats.AvgRatio,
	})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := s.history.ListJobs(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list job history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	if jobs == nil {
		jobs = []*model.Summary{}
	}

	s.writeJSON(w, http.StatusOK, historyResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	summary, err := s.history.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job history", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}
