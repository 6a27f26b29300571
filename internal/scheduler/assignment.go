package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/model"
	"github.com/t77yq/task-roster/internal/storage"
)

const (
	maxParameterLength = 2000
	maxCommentLength   = 500
)

// AssignToUsers adds users to a task's roster and binds them to the task:
// directly for ad-hoc tasks, or to every pending occurrence for recurring
// ones. It returns the newly bound users.
func (e *Engine) AssignToUsers(ctx context.Context, taskID string, userIDs []string, assignedBy string) ([]string, error) {
	users := dedupe(userIDs)
	if len(users) == 0 {
		return nil, e.fail("assign", ErrNoUsers)
	}

	var (
		created     int
		occurrences []string
	)
	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		if err := checkUsers(q, users); err != nil {
			return err
		}

		task, err := loadTask(q, taskID)
		if err != nil {
			return err
		}

		group, err := q.GetGroup(taskID)
		if err != nil {
			return err
		}
		var taken []string
		for _, id := range users {
			if group.Has(id) {
				taken = append(taken, id)
			}
		}
		if len(taken) > 0 {
			return &UserIDsError{Err: ErrAlreadyAssigned, UserIDs: taken}
		}

		members := users
		if group != nil {
			members = append(append([]string{}, group.UserIDs...), users...)
		}
		if err := q.SaveGroup(&model.AssignmentGroup{
			TaskID:     taskID,
			UserIDs:    members,
			AssignedBy: assignedBy,
		}); err != nil {
			return err
		}

		if !task.IsRecurring() {
			as := make([]model.Assignment, 0, len(users))
			for _, id := range users {
				as = append(as, newAssignment(taskID, nil, id, assignedBy))
			}
			created = len(as)
			return q.CreateAssignments(as)
		}

		pending, err := q.PendingOccurrences(taskID)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return fmt.Errorf("%w: task %s", ErrNoPendingOccurrences, taskID)
		}
		occurrences, created, err = bindOccurrences(q, taskID, pending, users, assignedBy)
		return err
	})
	if err != nil {
		return nil, e.fail("assign", storeError(err))
	}

	now := e.Now()
	e.metrics.AssignmentsCreated(created)
	e.logger.Info("Assigned users to task",
		zap.String("task_id", taskID),
		zap.Strings("user_ids", users),
		zap.Int("assignments", created),
		zap.Int("occurrences", len(occurrences)))

	e.events.Publish(ctx, SubjectGroupUpdated, GroupUpdatedEvent{
		TaskID:     taskID,
		UserIDs:    users,
		AssignedBy: assignedBy,
		UpdatedAt:  now,
	})
	e.events.Publish(ctx, SubjectAssignmentsCreated, AssignmentsCreatedEvent{
		TaskID:        taskID,
		UserIDs:       users,
		OccurrenceIDs: occurrences,
		Assignments:   created,
		AssignedBy:    assignedBy,
		CreatedAt:     now,
	})
	return users, nil
}

// AssignToAllPendingOccurrences binds users to every occurrence of the task
// that is still pending when the transaction runs. Occurrences assigned by a
// concurrent caller are no longer pending and are left alone. It returns the
// number of occurrences bound.
func (e *Engine) AssignToAllPendingOccurrences(ctx context.Context, taskID string, userIDs []string, assignedBy string) (int, error) {
	users := dedupe(userIDs)
	if len(users) == 0 {
		return 0, nil
	}

	var (
		occurrences []string
		created     int
	)
	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		pending, err := q.PendingOccurrences(taskID)
		if err != nil {
			return err
		}
		occurrences, created, err = bindOccurrences(q, taskID, pending, users, assignedBy)
		return err
	})
	if err != nil {
		return 0, e.fail("assign_pending", storeError(err))
	}
	if len(occurrences) == 0 {
		return 0, nil
	}

	e.metrics.AssignmentsCreated(created)
	e.logger.Info("Assigned pending occurrences",
		zap.String("task_id", taskID),
		zap.Int("occurrences", len(occurrences)),
		zap.Int("assignments", created))

	e.events.Publish(ctx, SubjectAssignmentsCreated, AssignmentsCreatedEvent{
		TaskID:        taskID,
		UserIDs:       users,
		OccurrenceIDs: occurrences,
		Assignments:   created,
		AssignedBy:    assignedBy,
		CreatedAt:     e.Now(),
	})
	return len(occurrences), nil
}

// ReassignTask replaces a recurring task's roster. Existing occurrences and
// assignments are untouched; the new roster applies from the next
// horizon extension on.
func (e *Engine) ReassignTask(ctx context.Context, taskID string, userIDs []string, assignedBy string) error {
	users := dedupe(userIDs)

	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		task, err := loadTask(q, taskID)
		if err != nil {
			return err
		}
		if !task.IsRecurring() {
			return fmt.Errorf("%w: %s", ErrNotRecurring, taskID)
		}
		if err := checkUsers(q, users); err != nil {
			return err
		}
		return q.SaveGroup(&model.AssignmentGroup{
			TaskID:     taskID,
			UserIDs:    users,
			AssignedBy: assignedBy,
		})
	})
	if err != nil {
		return e.fail("reassign", storeError(err))
	}

	e.logger.Info("Reassigned task",
		zap.String("task_id", taskID),
		zap.Strings("user_ids", users))

	e.events.Publish(ctx, SubjectGroupUpdated, GroupUpdatedEvent{
		TaskID:     taskID,
		UserIDs:    users,
		AssignedBy: assignedBy,
		Replaced:   true,
		UpdatedAt:  e.Now(),
	})
	return nil
}

// CompleteAssignment records an assignee's parameter value and closes the
// assignment. Completed assignments cannot be completed again.
func (e *Engine) CompleteAssignment(ctx context.Context, assignmentID, value string, comment *string) (*model.Assignment, error) {
	var done *model.Assignment
	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		a, err := q.GetAssignment(assignmentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrAssignmentNotFound, assignmentID)
			}
			return err
		}
		if a.Status != model.AssignmentStatusPending {
			return fmt.Errorf("%w: %s is %s", ErrAssignmentNotFound, assignmentID, a.Status)
		}

		task, err := loadTask(q, a.TaskID)
		if err != nil {
			return err
		}
		if err := ValidateParameter(task, value, comment); err != nil {
			return err
		}

		if err := q.CompletePendingAssignment(assignmentID, value, comment, e.Now()); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrAssignmentNotFound, assignmentID)
			}
			return err
		}
		done, err = q.GetAssignment(assignmentID)
		return err
	})
	if err != nil {
		return nil, e.fail("complete", storeError(err))
	}

	e.metrics.AssignmentCompleted()
	e.logger.Info("Completed assignment",
		zap.String("assignment_id", done.ID),
		zap.String("task_id", done.TaskID),
		zap.String("assignee_id", done.AssigneeID))

	e.events.Publish(ctx, SubjectAssignmentCompleted, AssignmentCompletedEvent{
		AssignmentID:   done.ID,
		TaskID:         done.TaskID,
		AssigneeID:     done.AssigneeID,
		ParameterValue: value,
		CompletedAt:    *done.CompletedAt,
	})
	return done, nil
}

// ValidateParameter checks a completion value against the task's parameter
// definition. An empty value is accepted only when the parameter is optional.
func ValidateParameter(task *model.Task, value string, comment *string) error {
	if comment != nil && utf8.RuneCountInString(*comment) > maxCommentLength {
		return fmt.Errorf("%w: comment longer than %d characters", ErrInvalidParameter, maxCommentLength)
	}
	if strings.TrimSpace(value) == "" {
		if task.ParameterRequired {
			return fmt.Errorf("%w: %s is required", ErrInvalidParameter, task.ParameterLabel)
		}
		return nil
	}
	if utf8.RuneCountInString(value) > maxParameterLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidParameter, maxParameterLength)
	}

	switch task.ParameterType {
	case model.ParameterDropdown:
		for _, opt := range task.DropdownOptions {
			if opt == value {
				return nil
			}
		}
		return fmt.Errorf("%w: %q is not one of %v", ErrInvalidParameter, value, task.DropdownOptions)
	case model.ParameterBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %q is not a boolean", ErrInvalidParameter, value)
		}
	case model.ParameterNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalidParameter, value)
		}
	}
	return nil
}

// CurrentAssignees returns the task's roster
func (e *Engine) CurrentAssignees(ctx context.Context, taskID string) ([]string, error) {
	q := e.store.Queries(ctx)
	if _, err := loadTask(q, taskID); err != nil {
		return nil, err
	}
	group, err := q.GetGroup(taskID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, nil
	}
	return group.UserIDs, nil
}

// AssignmentsByUser returns a user's assignments, newest first. An empty
// status returns every assignment.
func (e *Engine) AssignmentsByUser(ctx context.Context, userID string, status model.AssignmentStatus) ([]model.Assignment, error) {
	return e.store.Queries(ctx).AssignmentsByUser(userID, status)
}

// bindOccurrences creates one assignment per user and occurrence, then
// flips the occurrences to assigned. The flip only succeeds if every
// occurrence was still pending.
func bindOccurrences(q *storage.Queries, taskID string, pending []model.Occurrence, users []string, assignedBy string) ([]string, int, error) {
	if len(pending) == 0 {
		return nil, 0, nil
	}
	ids := make([]string, 0, len(pending))
	as := make([]model.Assignment, 0, len(pending)*len(users))
	for i := range pending {
		occID := pending[i].ID
		ids = append(ids, occID)
		for _, userID := range users {
			as = append(as, newAssignment(taskID, &occID, userID, assignedBy))
		}
	}
	if err := q.CreateAssignments(as); err != nil {
		return nil, 0, err
	}
	if err := q.MarkOccurrencesAssigned(ids); err != nil {
		return nil, 0, err
	}
	return ids, len(as), nil
}

func newAssignment(taskID string, occurrenceID *string, userID, assignedBy string) model.Assignment {
	return model.Assignment{
		ID:           uuid.NewString(),
		TaskID:       taskID,
		OccurrenceID: occurrenceID,
		AssigneeID:   userID,
		AssignedBy:   assignedBy,
		Status:       model.AssignmentStatusPending,
	}
}

func loadTask(q *storage.Queries, taskID string) (*model.Task, error) {
	task, err := q.GetTask(taskID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, err
}

func checkUsers(q *storage.Queries, ids []string) error {
	missing, err := q.MissingUsers(ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &UserIDsError{Err: ErrUnknownUser, UserIDs: missing}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
