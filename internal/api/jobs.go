package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/ripq/internal/engine"
	"github.com/seantiz/ripq/internal/model"
)

// obfuscateRequest is the JSON body for POST /obfuscate.
type obfuscateRequest struct {
	Script  string          `json:"script"`
	Profile string          `json:"profile"`
	Options *requestOptions `json:"options"`
}

// requestOptions accepts features either as booleans or as a list.
type requestOptions struct {
	Preset     string   `json:"preset"`
	VM         bool     `json:"vm"`
	JunkYard   bool     `json:"junk_yard"`
	AntiTamper bool     `json:"anti_tamper"`
	Watermark  bool     `json:"watermark"`
	Features   []string `json:"features"`
}

type obfuscateResponse struct {
	Success       bool         `json:"success"`
	JobID         string       `json:"job_id"`
	Status        model.Status `json:"status"`
	StatusURL     string       `json:"status_url"`
	QueuePosition int          `json:"queue_position"`
}

// jobStatusResponse is the JSON response for GET /status/{id}. Timestamps
// are Unix milliseconds.
type jobStatusResponse struct {
	ID          string          `json:"id"`
	Status      model.Status    `json:"status"`
	SubmittedAt int64           `json:"submitted_at"`
	StartedAt   *int64          `json:"started_at,omitempty"`
	CompletedAt *int64          `json:"completed_at,omitempty"`
	Result      *resultResponse `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Position    int             `json:"position,omitempty"`
}

type resultResponse struct {
	Success bool          `json:"success"`
	URL     string        `json:"url"`
	Stats   resultMetrics `json:"stats"`
}

type resultMetrics struct {
	OriginalSize   int64   `json:"original_size"`
	ObfuscatedSize int64   `json:"obfuscated_size"`
	Ratio          string  `json:"ratio"`
	Time           float64 `json:"time"`
}

func (s *Server) handleObfuscate(w http.ResponseWriter, r *http.Request) {
	var req obfuscateRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			submissionsRejected.WithLabelValues("too_large").Inc()
			s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		submissionsRejected.WithLabelValues("invalid").Inc()
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	origin := requestOrigin(r)
	receipt, err := s.engine.Submit(model.Request{
		Script:  []byte(req.Script),
		Options: req.normalize(),
	}, origin)
	if errors.Is(err, engine.ErrValidation) {
		submissionsRejected.WithLabelValues("invalid").Inc()
		s.writeError(w, http.StatusBadRequest, "No script provided")
		return
	}
	if err != nil {
		s.logger.Error("submit job", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	s.writeJSON(w, http.StatusOK, obfuscateResponse{
		Success:       true,
		JobID:         receipt.ID,
		Status:        receipt.Status,
		StatusURL:     origin.BaseURL + "/status/" + receipt.ID,
		QueuePosition: receipt.Position,
	})
}

// normalize folds the request's profile and option fields into engine options.
func (req obfuscateRequest) normalize() model.Options {
	var preset string
	var features []string
	if o := req.Options; o != nil {
		preset = o.Preset
		features = append(features, o.Features...)
		if o.VM {
			features = append(features, string(model.FeatureVM))
		}
		if o.JunkYard {
			features = append(features, string(model.FeatureJunkYard))
		}
		if o.AntiTamper {
			features = append(features, string(model.FeatureAntiTamper))
		}
		if o.Watermark {
			features = append(features, string(model.FeatureWatermark))
		}
	}
	return model.NormalizeOptions(req.Profile, preset, features)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	v, err := s.engine.JobStatus(id)
	if errors.Is(err, engine.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Job not found or expired")
		return
	}
	if err != nil {
		s.logger.Error("get job status", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job status")
		return
	}

	resp := jobStatusResponse{
		ID:          v.ID,
		Status:      v.Status,
		SubmittedAt: v.SubmittedAt.UnixMilli(),
		StartedAt:   unixMilli(v.StartedAt),
		CompletedAt: unixMilli(v.CompletedAt),
		Error:       v.Error,
		Position:    v.Position,
	}
	if res := v.Result; res != nil {
		resp.Result = &resultResponse{
			Success: true,
			URL:     res.URL,
			Stats: resultMetrics{
				OriginalSize:   res.Metrics.InputSize,
				ObfuscatedSize: res.Metrics.OutputSize,
				Ratio:          fmt.Sprintf("%.2fx", res.Metrics.Ratio),
				Time:           res.Metrics.Duration.Seconds(),
			},
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// requestOrigin derives the public base URL, preferring forwarding headers
// set by a reverse proxy.
func requestOrigin(r *http.Request) model.Origin {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return model.Origin{BaseURL: scheme + "://" + host}
}

func unixMilli(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
