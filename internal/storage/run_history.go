package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RunStatus is the outcome of a horizon-extender run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusPartial   RunStatus = "PARTIAL"
	RunStatusFailed    RunStatus = "FAILED"
)

// ExtenderRun is one execution of the horizon extender
type ExtenderRun struct {
	ID            string        `json:"id"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
	TasksSelected int           `json:"tasks_selected"`
	TasksExtended int           `json:"tasks_extended"`
	TasksFailed   int           `json:"tasks_failed"`
	Status        RunStatus     `json:"status"`
	Error         string        `json:"error,omitempty"`
}

// RunHistoryStorage defines the interface for extender run history
type RunHistoryStorage interface {
	// Store records the start of a run
	Store(ctx context.Context, run *ExtenderRun) error

	// Update records the outcome of a run
	Update(ctx context.Context, run *ExtenderRun) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id string) (*ExtenderRun, error)

	// List retrieves runs, newest first
	List(ctx context.Context, status RunStatus, offset, limit int) ([]*ExtenderRun, error)

	// Count returns the number of runs, optionally filtered by status
	Count(ctx context.Context, status RunStatus) (int, error)

	// DeleteBefore deletes runs started before the given time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// RunHistory implements RunHistoryStorage on the store's SQLite database
type RunHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

var _ RunHistoryStorage = (*RunHistory)(nil)

// NewRunHistory creates run history storage over an open database
func NewRunHistory(logger *zap.Logger, db *sql.DB) *RunHistory {
	return &RunHistory{
		logger: logger.Named("run_history"),
		db:     db,
	}
}

// initialize creates the necessary tables if they don't exist
func (h *RunHistory) initialize(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS extender_runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration INTEGER,
			tasks_selected INTEGER NOT NULL DEFAULT 0,
			tasks_extended INTEGER NOT NULL DEFAULT 0,
			tasks_failed INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_extender_runs_status ON extender_runs(status);
		CREATE INDEX IF NOT EXISTS idx_extender_runs_started_at ON extender_runs(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize run history: %w", err)
	}
	return nil
}

// Store implements RunHistoryStorage.Store
func (h *RunHistory) Store(ctx context.Context, run *ExtenderRun) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO extender_runs (
			id, started_at, tasks_selected, status
		) VALUES (?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC(),
		run.TasksSelected,
		run.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to store extender run: %w", err)
	}
	return nil
}

// Update implements RunHistoryStorage.Update
func (h *RunHistory) Update(ctx context.Context, run *ExtenderRun) error {
	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: run.CompletedAt.UTC(), Valid: true}
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE extender_runs SET
			completed_at = ?,
			duration = ?,
			tasks_selected = ?,
			tasks_extended = ?,
			tasks_failed = ?,
			status = ?,
			error = ?
		WHERE id = ?`,
		completedAt,
		sql.NullInt64{Int64: int64(run.Duration), Valid: run.Duration != 0},
		run.TasksSelected,
		run.TasksExtended,
		run.TasksFailed,
		run.Status,
		sql.NullString{String: run.Error, Valid: run.Error != ""},
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update extender run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("extender run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, started_at, completed_at, duration, tasks_selected,
	tasks_extended, tasks_failed, status, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*ExtenderRun, error) {
	var (
		run           ExtenderRun
		completedAt   sql.NullTime
		durationNanos sql.NullInt64
		errorStr      sql.NullString
	)
	if err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&completedAt,
		&durationNanos,
		&run.TasksSelected,
		&run.TasksExtended,
		&run.TasksFailed,
		&run.Status,
		&errorStr,
	); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		run.CompletedAt = &t
	}
	if durationNanos.Valid {
		run.Duration = time.Duration(durationNanos.Int64)
	}
	if errorStr.Valid {
		run.Error = errorStr.String
	}
	run.StartedAt = run.StartedAt.UTC()
	return &run, nil
}

// Get implements RunHistoryStorage.Get
func (h *RunHistory) Get(ctx context.Context, id string) (*ExtenderRun, error) {
	run, err := scanRun(h.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM extender_runs WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("extender run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan extender run: %w", err)
	}
	return run, nil
}

// List implements RunHistoryStorage.List. An empty status lists every run.
func (h *RunHistory) List(ctx context.Context, status RunStatus, offset, limit int) ([]*ExtenderRun, error) {
	query := "SELECT " + runColumns + " FROM extender_runs"
	args := make([]any, 0, 3)
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list extender runs: %w", err)
	}
	defer rows.Close()

	var runs []*ExtenderRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extender run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// Count implements RunHistoryStorage.Count
func (h *RunHistory) Count(ctx context.Context, status RunStatus) (int, error) {
	query := "SELECT COUNT(*) FROM extender_runs"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}

	var count int
	if err := h.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count extender runs: %w", err)
	}
	return count, nil
}

// DeleteBefore implements RunHistoryStorage.DeleteBefore
func (h *RunHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := h.db.ExecContext(ctx, "DELETE FROM extender_runs WHERE started_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete extender runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	h.logger.Info("Deleted old extender runs",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}
