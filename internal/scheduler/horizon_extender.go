package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/storage"
)

// ExtenderConfig configures the horizon extender
type ExtenderConfig struct {
	// StaleAfter is how old a task's lastGenerated may be before it is
	// extended. It must be shorter than MaxStaleAfter.
	StaleAfter time.Duration

	// RetryAttempts is how many extra tries a task gets on contention
	RetryAttempts int
	RetryDelay    time.Duration
}

// HorizonExtender keeps every recurring task's horizon populated and
// applies each task's roster to the occurrences it adds
type HorizonExtender struct {
	logger  *zap.Logger
	engine  *Engine
	history storage.RunHistoryStorage
	cfg     ExtenderConfig
	retry   *RetryPolicy
}

// NewHorizonExtender creates a new extender
func NewHorizonExtender(engine *Engine, cfg ExtenderConfig, logger *zap.Logger) (*HorizonExtender, error) {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.StaleAfter >= MaxStaleAfter {
		return nil, fmt.Errorf("stale threshold %s must be shorter than %s", cfg.StaleAfter, MaxStaleAfter)
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	logger = logger.Named("extender")
	return &HorizonExtender{
		logger:  logger,
		engine:  engine,
		history: engine.Store().History(),
		cfg:     cfg,
		retry: NewRetryPolicy(cfg.RetryAttempts, &ExponentialBackoff{
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
		}, logger),
	}, nil
}

// Run extends every stale recurring task once. Per-task failures are logged
// and counted; only a failure to select tasks or record the run is returned.
func (x *HorizonExtender) Run(ctx context.Context) (*storage.ExtenderRun, error) {
	started := x.engine.Now()
	run := &storage.ExtenderRun{
		ID:        uuid.NewString(),
		StartedAt: started,
		Status:    storage.RunStatusRunning,
	}
	if err := x.history.Store(ctx, run); err != nil {
		return nil, err
	}

	tasks, err := x.engine.Store().Queries(ctx).ListStaleRecurring(started.Add(-x.cfg.StaleAfter))
	if err != nil {
		return run, x.finish(ctx, run, fmt.Errorf("failed to select stale tasks: %w", err))
	}
	run.TasksSelected = len(tasks)

	x.logger.Info("Extending horizons",
		zap.String("run_id", run.ID),
		zap.Int("tasks", len(tasks)))

	for _, task := range tasks {
		if ctx.Err() != nil {
			return run, x.finish(ctx, run, ctx.Err())
		}

		err := x.retry.Do(ctx, "extend", func(ctx context.Context) error {
			return x.extendTask(ctx, task.ID)
		})
		if err != nil {
			run.TasksFailed++
			x.logger.Error("Failed to extend task",
				zap.String("run_id", run.ID),
				zap.String("task_id", task.ID),
				zap.Bool("retryable", IsRetryable(err)),
				zap.Error(err))
			continue
		}
		run.TasksExtended++
	}

	return run, x.finish(ctx, run, nil)
}

// extendTask generates the next window for one task and assigns the new
// occurrences to its current roster
func (x *HorizonExtender) extendTask(ctx context.Context, taskID string) error {
	res, err := x.engine.GenerateOccurrences(ctx, taskID)
	if err != nil && !errors.Is(err, ErrNoOccurrencesProduced) {
		return err
	}
	if res != nil && !res.Skipped && len(res.Created) == 0 {
		x.logger.Warn("Extension produced no occurrences",
			zap.String("task_id", taskID),
			zap.Time("window_start", res.WindowStart))
	}

	group, err := x.engine.Store().Queries(ctx).GetGroup(taskID)
	if err != nil {
		return storeError(err)
	}
	if group == nil || len(group.UserIDs) == 0 {
		return nil
	}

	_, err = x.engine.AssignToAllPendingOccurrences(ctx, taskID, group.UserIDs, group.AssignedBy)
	return err
}

func (x *HorizonExtender) finish(ctx context.Context, run *storage.ExtenderRun, runErr error) error {
	completed := x.engine.Now()
	run.CompletedAt = &completed
	run.Duration = completed.Sub(run.StartedAt)

	switch {
	case runErr != nil:
		run.Status = storage.RunStatusFailed
		run.Error = runErr.Error()
	case run.TasksFailed > 0:
		run.Status = storage.RunStatusPartial
		run.Error = fmt.Sprintf("%d of %d tasks failed", run.TasksFailed, run.TasksSelected)
	default:
		run.Status = storage.RunStatusCompleted
	}

	x.engine.metrics.ExtenderRun(run.Status, run.Duration, run.TasksExtended, run.TasksFailed)

	// Record the outcome even if the run's context is already done.
	if err := x.history.Update(context.WithoutCancel(ctx), run); err != nil {
		x.logger.Error("Failed to record extender run", zap.String("run_id", run.ID), zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		x.logger.Error("Extender run failed",
			zap.String("run_id", run.ID),
			zap.Error(runErr))
		return runErr
	}

	x.logger.Info("Extender run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("selected", run.TasksSelected),
		zap.Int("extended", run.TasksExtended),
		zap.Int("failed", run.TasksFailed),
		zap.Duration("duration", run.Duration))
	return nil
}

// PruneHistory deletes extender runs older than retention
func (x *HorizonExtender) PruneHistory(ctx context.Context, retention time.Duration) (int64, error) {
	return x.history.DeleteBefore(ctx, x.engine.Now().Add(-retention))
}
