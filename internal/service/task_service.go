package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/model"
	"github.com/t77yq/task-roster/internal/recurrence"
	"github.com/t77yq/task-roster/internal/scheduler"
	"github.com/t77yq/task-roster/internal/storage"
)

// TaskInput is what an administrator supplies to create or edit a task
type TaskInput struct {
	Title         string
	Description   string
	Type          model.TaskType
	CategoryID    *string
	SubcategoryID *string

	Rule    recurrence.Rule
	DueDate *time.Time

	ParameterType     model.ParameterType
	ParameterLabel    string
	ParameterUnit     *string
	ParameterRequired bool
	DropdownOptions   []string
}

// TaskDetails is a task with its upcoming schedule and roster
type TaskDetails struct {
	Task      *model.Task        `json:"task"`
	Upcoming  []model.Occurrence `json:"upcoming"`
	Assignees []string           `json:"assignees"`
}

// TaskService owns the task lifecycle and keeps recurring schedules in step
// with task edits
type TaskService struct {
	logger *zap.Logger
	engine *scheduler.Engine
	store  *storage.Store
}

// NewTaskService creates a new task service
func NewTaskService(engine *scheduler.Engine, logger *zap.Logger) *TaskService {
	return &TaskService{
		logger: logger.Named("tasks"),
		engine: engine,
		store:  engine.Store(),
	}
}

// CreateUser registers a user that tasks can be assigned to
func (s *TaskService) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = model.UserRoleMember
	}
	return s.store.Queries(ctx).CreateUser(u)
}

// CreateTask stores a task and, for recurring tasks, generates its first
// window of occurrences in the same transaction
func (s *TaskService) CreateTask(ctx context.Context, in TaskInput, createdBy string) (*TaskDetails, error) {
	if err := validateTask(in); err != nil {
		return nil, err
	}

	task := &model.Task{
		ID:        uuid.NewString(),
		CreatedBy: createdBy,
		CreatedAt: s.engine.Now(),
	}
	apply(task, in)

	var gen *scheduler.GenerationResult
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.CreateTask(task); err != nil {
			return err
		}
		if !task.IsRecurring() {
			return nil
		}
		var err error
		gen, err = s.engine.GenerateIn(q, task.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	s.report(ctx, gen)

	s.logger.Info("Created task",
		zap.String("task_id", task.ID),
		zap.String("type", string(task.Type)),
		zap.String("created_by", createdBy))

	return s.GetTask(ctx, task.ID)
}

// UpdateTask edits a task. When a recurring task's rule changes, the
// schedule is rebuilt from scratch: future occurrences with their
// assignments, past occurrences nobody was bound to, and the roster are
// dropped, and the new rule starts at its first slot from now. Past
// occurrences that were already assigned are kept as history.
func (s *TaskService) UpdateTask(ctx context.Context, id string, in TaskInput) (*TaskDetails, error) {
	if err := validateTask(in); err != nil {
		return nil, err
	}

	var (
		gen         *scheduler.GenerationResult
		ruleChanged bool
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		task, err := q.GetTask(id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %s", scheduler.ErrTaskNotFound, id)
			}
			return err
		}
		if task.Type != in.Type {
			return fmt.Errorf("%w: task type cannot change from %s to %s", scheduler.ErrInvalidTask, task.Type, in.Type)
		}

		ruleChanged, err = rulesDiffer(task.Rule(), in.Rule)
		if err != nil {
			return err
		}
		apply(task, in)

		now := s.engine.Now()
		if ruleChanged && task.IsRecurring() {
			since := recurrence.FirstSlot(in.Rule, now)
			task.RuleSince = &since
			task.LastGenerated = nil
			task.GeneratedUntil = &since
			task.NextDueDate = nil
		}
		if err := q.UpdateTask(task); err != nil {
			return err
		}
		if !task.IsRecurring() {
			return nil
		}

		if ruleChanged {
			future, err := q.DeleteOccurrencesFrom(id, now)
			if err != nil {
				return err
			}
			unbound, err := q.DeletePendingOccurrences(id)
			if err != nil {
				return err
			}
			if err := q.DeleteGroup(id); err != nil {
				return err
			}
			s.logger.Info("Repetition changed, regenerating schedule",
				zap.String("task_id", id),
				zap.Time("rule_since", *task.RuleSince),
				zap.Int64("removed_future", future),
				zap.Int64("removed_unassigned", unbound))
		}

		gen, err = s.engine.GenerateIn(q, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	s.report(ctx, gen)

	return s.GetTask(ctx, id)
}

// DeleteTask removes a task with its occurrences, assignments and roster
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		return q.DeleteTask(id)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", scheduler.ErrTaskNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.logger.Info("Deleted task", zap.String("task_id", id))
	return nil
}

// GetTask returns a task with its next occurrences and current roster
func (s *TaskService) GetTask(ctx context.Context, id string) (*TaskDetails, error) {
	q := s.store.Queries(ctx)
	task, err := q.GetTask(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", scheduler.ErrTaskNotFound, id)
		}
		return nil, err
	}

	details := &TaskDetails{Task: task}
	if task.IsRecurring() {
		details.Upcoming, err = q.UpcomingOccurrences(id, s.engine.Now(), 10)
		if err != nil {
			return nil, err
		}
	}

	group, err := q.GetGroup(id)
	if err != nil {
		return nil, err
	}
	if group != nil {
		details.Assignees = group.UserIDs
	}
	return details, nil
}

func (s *TaskService) report(ctx context.Context, gen *scheduler.GenerationResult) {
	if gen == nil {
		return
	}
	// An empty first window is already logged as a warning.
	if err := s.engine.ReportGeneration(ctx, gen); err != nil && !errors.Is(err, scheduler.ErrNoOccurrencesProduced) {
		s.logger.Error("Failed to report generation", zap.String("task_id", gen.TaskID), zap.Error(err))
	}
}

func apply(task *model.Task, in TaskInput) {
	task.Title = strings.TrimSpace(in.Title)
	task.Description = in.Description
	task.Type = in.Type
	task.CategoryID = in.CategoryID
	task.SubcategoryID = in.SubcategoryID
	task.DueDate = nil
	task.Repetition = nil
	if in.Rule != nil {
		task.Repetition = &recurrence.Config{Rule: in.Rule}
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		task.DueDate = &due
	}
	task.ParameterType = in.ParameterType
	task.ParameterLabel = in.ParameterLabel
	task.ParameterUnit = in.ParameterUnit
	task.ParameterRequired = in.ParameterRequired
	task.DropdownOptions = in.DropdownOptions
}

func validateTask(in TaskInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", scheduler.ErrInvalidTask)
	}

	switch in.Type {
	case model.TaskTypeRecurring:
		if in.Rule == nil {
			return fmt.Errorf("%w: recurring tasks need a repetition config", scheduler.ErrInvalidTask)
		}
		if err := in.Rule.Validate(); err != nil {
			return err
		}
		if in.DueDate != nil {
			return fmt.Errorf("%w: recurring tasks have no due date", scheduler.ErrInvalidTask)
		}
		if in.CategoryID == nil || *in.CategoryID == "" {
			return fmt.Errorf("%w: recurring tasks need a category", scheduler.ErrInvalidTask)
		}
	case model.TaskTypeAdHoc:
		if in.DueDate == nil {
			return fmt.Errorf("%w: ad-hoc tasks need a due date", scheduler.ErrInvalidTask)
		}
		if in.Rule != nil {
			return fmt.Errorf("%w: ad-hoc tasks have no repetition config", scheduler.ErrInvalidTask)
		}
	default:
		return fmt.Errorf("%w: unknown task type %q", scheduler.ErrInvalidTask, in.Type)
	}

	switch in.ParameterType {
	case model.ParameterNumber, model.ParameterText, model.ParameterDateTime,
		model.ParameterBoolean, model.ParameterComment:
	case model.ParameterDropdown:
		if len(in.DropdownOptions) == 0 {
			return fmt.Errorf("%w: dropdown parameters need options", scheduler.ErrInvalidTask)
		}
	default:
		return fmt.Errorf("%w: unknown parameter type %q", scheduler.ErrInvalidTask, in.ParameterType)
	}
	return nil
}

func rulesDiffer(current, next recurrence.Rule) (bool, error) {
	if current == nil || next == nil {
		return current != next, nil
	}
	a, err := recurrence.Encode(current)
	if err != nil {
		return false, err
	}
	b, err := recurrence.Encode(next)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(a, b), nil
}
