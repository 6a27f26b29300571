package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/model"
	"github.com/t77yq/task-roster/internal/recurrence"
	"github.com/t77yq/task-roster/internal/storage"
)

// GenerationResult describes one generation pass over a task
type GenerationResult struct {
	TaskID      string
	WindowStart time.Time
	HorizonEnd  time.Time
	Created     []time.Time
	GeneratedAt time.Time

	// Skipped is set when the materialized horizon already reaches a month
	// past now, so no window was expanded.
	Skipped bool
}

// GenerateOccurrences extends a recurring task's horizon by one window and
// persists the new occurrences as pending. Dates that already exist are
// left alone, so retries and overlapping calls never duplicate.
//
// When the horizon already reaches a month ahead the pass is skipped: it
// commits, creates nothing and returns a result with Skipped set. When a
// window was generated but yielded nothing new, the returned error wraps
// ErrNoOccurrencesProduced alongside a non-nil result.
func (e *Engine) GenerateOccurrences(ctx context.Context, taskID string) (*GenerationResult, error) {
	var res *GenerationResult
	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		res, err = e.GenerateIn(q, taskID)
		return err
	})
	if err != nil {
		return nil, e.fail("generate", storeError(err))
	}
	return res, e.ReportGeneration(ctx, res)
}

// GenerateIn runs a generation pass inside an open transaction. Callers
// must pass the result to ReportGeneration once the transaction commits.
func (e *Engine) GenerateIn(q *storage.Queries, taskID string) (*GenerationResult, error) {
	task, err := q.GetTask(taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, err
	}
	if !task.IsRecurring() {
		return nil, fmt.Errorf("%w: %s", ErrNotRecurring, taskID)
	}
	rule := task.Rule()
	if rule == nil {
		return nil, fmt.Errorf("%w: task %s has no repetition config", ErrInvalidRule, taskID)
	}

	var since time.Time
	if task.RuleSince != nil {
		since = *task.RuleSince
	}
	last, err := q.LastOccurrence(taskID, since)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	start := windowStart(task, rule, last)
	res := &GenerationResult{
		TaskID:      taskID,
		WindowStart: start,
		HorizonEnd:  recurrence.HorizonEnd(start),
		GeneratedAt: now,
	}

	if !start.Before(recurrence.AddMonths(now, 1)) {
		res.Skipped = true
		res.HorizonEnd = start
		if task.GeneratedUntil != nil && task.GeneratedUntil.After(start) {
			res.HorizonEnd = task.GeneratedUntil.UTC()
		}
		return res, e.saveHorizon(q, res)
	}

	candidates, err := recurrence.Generate(rule, start)
	if err != nil {
		return nil, err
	}

	existing, err := q.ExistingOccurrenceDates(taskID, candidates)
	if err != nil {
		return nil, err
	}

	occs := make([]model.Occurrence, 0, len(candidates))
	for _, d := range candidates {
		if _, ok := existing[d.Unix()]; ok {
			continue
		}
		occs = append(occs, model.Occurrence{
			ID:            uuid.NewString(),
			TaskID:        taskID,
			ScheduledDate: d,
			Status:        model.OccurrenceStatusPending,
		})
		res.Created = append(res.Created, d)
	}

	created, err := q.CreateOccurrences(occs)
	if err != nil {
		return nil, err
	}
	if created != int64(len(occs)) {
		return nil, fmt.Errorf("%w: %d of %d occurrences inserted", storage.ErrConflict, created, len(occs))
	}

	return res, e.saveHorizon(q, res)
}

// ReportGeneration logs, measures and announces a committed generation
// pass. It returns ErrNoOccurrencesProduced when a generated window added
// nothing; a skipped pass is not an error.
func (e *Engine) ReportGeneration(ctx context.Context, res *GenerationResult) error {
	if res == nil {
		return nil
	}
	if res.Skipped {
		e.metrics.GenerationSkipped()
		e.logger.Debug("Horizon already materialized",
			zap.String("task_id", res.TaskID),
			zap.Time("generated_until", res.HorizonEnd))
		return nil
	}
	e.metrics.OccurrencesGenerated(len(res.Created))

	if len(res.Created) == 0 {
		e.logger.Warn("Generation produced no occurrences",
			zap.String("task_id", res.TaskID),
			zap.Time("window_start", res.WindowStart),
			zap.Time("horizon_end", res.HorizonEnd))
		return fmt.Errorf("%w: task %s", ErrNoOccurrencesProduced, res.TaskID)
	}

	e.logger.Info("Generated occurrences",
		zap.String("task_id", res.TaskID),
		zap.Int("created", len(res.Created)),
		zap.Time("window_start", res.WindowStart),
		zap.Time("horizon_end", res.HorizonEnd))

	e.events.Publish(ctx, SubjectOccurrencesGenerated, OccurrencesGeneratedEvent{
		TaskID:         res.TaskID,
		ScheduledDates: res.Created,
		GeneratedUntil: res.HorizonEnd,
		GeneratedAt:    res.GeneratedAt,
	})
	return nil
}

func (e *Engine) saveHorizon(q *storage.Queries, res *GenerationResult) error {
	update := storage.HorizonUpdate{
		LastGenerated:  res.GeneratedAt,
		GeneratedUntil: res.HorizonEnd,
	}
	next, err := q.UpcomingOccurrences(res.TaskID, res.GeneratedAt, 1)
	if err != nil {
		return err
	}
	if len(next) > 0 {
		update.NextDueDate = &next[0].ScheduledDate
	}
	return q.SaveTaskHorizon(res.TaskID, update)
}

// windowStart resumes one natural step after the latest occurrence, but
// never before the end of the last generated window. A task that has never
// been generated starts at its creation time.
func windowStart(task *model.Task, rule recurrence.Rule, last *model.Occurrence) time.Time {
	var start time.Time
	if last != nil {
		start = recurrence.NextWindowStart(rule, last.ScheduledDate)
	}
	if task.GeneratedUntil != nil && task.GeneratedUntil.After(start) {
		start = *task.GeneratedUntil
	}
	if start.IsZero() {
		start = task.CreatedAt
	}
	return start.UTC()
}
