package model

import "time"

// Status is the lifecycle state of a job.
type Status string

// Job status constants.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusProcessing: true,
	},
	StatusProcessing: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to Status) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request is the transformation input: the raw script and the engine options.
type Request struct {
	Script  []byte
	Options Options
}

// Origin is what the submitter's request told us about how clients reach this
// service. It is captured once at submission.
type Origin struct {
	BaseURL string
}

// Metrics describes a successful transformation.
type Metrics struct {
	InputSize  int64         `json:"input_size"`
	OutputSize int64         `json:"output_size"`
	Ratio      float64       `json:"ratio"`
	Duration   time.Duration `json:"duration"`
}

// Result is attached to a completed job.
type Result struct {
	URL     string  `json:"url"`
	Metrics Metrics `json:"metrics"`
}

// Job is one submitted transformation and its lifecycle state.
//
// Token namespaces the on-disk artifacts and must never leave the process.
type Job struct {
	ID          string     `json:"id"`
	Token       string     `json:"-"`
	Status      Status     `json:"status"`
	Request     Request    `json:"-"`
	Origin      Origin     `json:"-"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobView is a read-only projection of a job for status polling. Fields are
// populated according to the job's status.
type JobView struct {
	ID          string
	Status      Status
	SubmittedAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Position    int
	Result      *Result
	Error       string
}

// QueueStats is the aggregate view over the backlog and the job store.
type QueueStats struct {
	Waiting int `json:"waiting"`
	Active  int `json:"active"`
	Stored  int `json:"total_jobs_stored"`
}

// Summary is the archived record of a finished job. It never carries the
// script or the artifact token.
type Summary struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Profile     Profile   `json:"profile"`
	Preset      string    `json:"preset,omitempty"`
	Features    []Feature `json:"features,omitempty"`
	InputSize   int64     `json:"input_size"`
	OutputSize  int64     `json:"output_size"`
	Ratio       float64   `json:"ratio"`
	DurationMS  int64     `json:"duration_ms"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Summarize builds the archive record for a terminal job.
func Summarize(j *Job) Summary {
	s := Summary{
		ID:          j.ID,
		Status:      j.Status,
		Profile:     j.Request.Options.Profile,
		Preset:      j.Request.Options.Preset,
		Features:    j.Request.Options.Features,
		InputSize:   int64(len(j.Request.Script)),
		ExitCode:    j.ExitCode,
		Error:       j.Error,
		SubmittedAt: j.SubmittedAt,
	}
	if j.CompletedAt != nil {
		s.CompletedAt = *j.CompletedAt
	}
	if j.StartedAt != nil {
		s.StartedAt = *j.StartedAt
		s.DurationMS = s.CompletedAt.Sub(s.StartedAt).Milliseconds()
	}
	if j.Result != nil {
		s.OutputSize = j.Result.Metrics.OutputSize
		s.Ratio = j.Result.Metrics.Ratio
		s.DurationMS = j.Result.Metrics.Duration.Milliseconds()
	}
	return s
}
