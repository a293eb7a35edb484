package store

import (
	"context"
	"errors"

	"github.com/seantiz/ripq/internal/model"
)

// ErrNotFound is returned when a job summary is not in the archive.
var ErrNotFound = errors.New("job not found")

// JobStats holds aggregate statistics over archived jobs.
type JobStats struct {
	Total          int            `json:"total"`
	CountByStatus  map[string]int `json:"count_by_status"`
	CountByProfile map[string]int `json:"count_by_profile"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
	AvgRatio       float64        `json:"avg_ratio"`
}

// Store archives summaries of finished jobs. It outlives the in-memory job
// records, which are purged after their retention delay.
type Store interface {
	RecordJob(ctx context.Context, s model.Summary) error
	GetJob(ctx context.Context, id string) (*model.Summary, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*model.Summary, int, error)
	GetJobStats(ctx context.Context) (*JobStats, error)
	Close() error
}
