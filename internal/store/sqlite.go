package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/seantiz/ripq/internal/model"

	_ "modernc.org/sqlite"
)

const createJobHistoryTable = `
CREATE TABLE IF NOT EXISTS job_history (
    id           TEXT PRIMARY KEY,
    status       TEXT NOT NULL,
    profile      TEXT NOT NULL,
    preset       TEXT NOT NULL DEFAULT '',
    features     TEXT NOT NULL DEFAULT '',
    input_size   INTEGER NOT NULL,
    output_size  INTEGER NOT NULL,
    ratio        REAL NOT NULL,
    duration_ms  INTEGER NOT NULL,
    exit_code    INTEGER,
    error        TEXT NOT NULL DEFAULT '',
    submitted_at DATETIME NOT NULL,
    started_at   DATETIME NOT NULL,
    completed_at DATETIME NOT NULL
)`

const createCompletedAtIndex = `
CREATE INDEX IF NOT EXISTS idx_job_history_completed_at ON job_history (completed_at)`

const selectColumns = `id, status, profile, preset, features, input_size, output_size,
	ratio, duration_ms, exit_code, error, submitted_at, started_at, completed_at`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serialises writers and keeps ":memory:" databases
	// from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createJobHistoryTable, createCompletedAtIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate job_history: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordJob inserts the summary of a finished job.
func (s *SQLiteStore) RecordJob(ctx context.Context, j model.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_history (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, string(j.Status), string(j.Profile), j.Preset, joinFeatures(j.Features),
		j.InputSize, j.OutputSize, j.Ratio, j.DurationMS, j.ExitCode, j.Error,
		j.SubmittedAt, j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job summary: %w", err)
	}
	return nil
}

// GetJob retrieves an archived job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM job_history WHERE id = ?`, id,
	)
	j, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job summary: %w", err)
	}
	return j, nil
}

// ListJobs returns a page of archived jobs ordered by completed_at DESC,
// along with the total count.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]*model.Summary, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_history").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count job summaries: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM job_history
		ORDER BY completed_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list job summaries: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Summary
	for rows.Next() {
		j, err := scanSummary(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job summary: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate job summaries: %w", err)
	}

	return jobs, total, nil
}

// GetJobStats aggregates counts by status and profile, the mean duration of
// all archived jobs, and the mean ratio of completed ones.
func (s *SQLiteStore) GetJobStats(ctx context.Context) (*JobStats, error) {
	stats := &JobStats{
		CountByStatus:  make(map[string]int),
		CountByProfile: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(duration_ms), 0) FROM job_history`,
	).Scan(&stats.Total, &stats.AvgDurationMS); err != nil {
		return nil, fmt.Errorf("count job summaries: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(ratio), 0) FROM job_history WHERE status = ?`, string(model.StatusCompleted),
	).Scan(&stats.AvgRatio); err != nil {
		return nil, fmt.Errorf("average ratio: %w", err)
	}

	if err := s.countBy(ctx, "status", stats.CountByStatus); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "profile", stats.CountByProfile); err != nil {
		return nil, err
	}

	return stats, nil
}

// countBy fills dst with row counts grouped by column. column is always a
// constant from this file.
func (s *SQLiteStore) countBy(ctx context.Context, column string, dst map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM job_history GROUP BY `+column,
	)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan count by %s: %w", column, err)
		}
		dst[key] = n
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(sc scanner) (*model.Summary, error) {
	j := &model.Summary{}
	var status, profile, features string
	if err := sc.Scan(
		&j.ID, &status, &profile, &j.Preset, &features, &j.InputSize, &j.OutputSize,
		&j.Ratio, &j.DurationMS, &j.ExitCode, &j.Error, &j.SubmittedAt, &j.StartedAt, &j.CompletedAt,
	); err != nil {
		return nil, err
	}
	j.Status = model.Status(status)
	j.Profile = model.Profile(profile)
	j.Features = splitFeatures(features)
	return j, nil
}

func joinFeatures(fs []model.Feature) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

func splitFeatures(s string) []model.Feature {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	fs := make([]model.Feature, len(parts))
	for i, p := range parts {
		fs[i] = model.Feature(p)
	}
	return fs
}
