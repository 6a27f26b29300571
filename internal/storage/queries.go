package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/t77yq/task-roster/internal/model"
)

// ErrConflict is returned when a conditional update matched fewer rows than
// expected because another writer got there first
var ErrConflict = errors.New("concurrent modification")

// Queries groups the store's statements. It is bound either to the plain
// connection or to an open transaction.
type Queries struct {
	db *gorm.DB
}

// CreateUser inserts a user
func (q *Queries) CreateUser(u *model.User) error {
	return translate("create user", q.db.Create(u).Error)
}

// FindUsers returns the users among ids that exist
func (q *Queries) FindUsers(ids []string) ([]model.User, error) {
	var users []model.User
	if len(ids) == 0 {
		return users, nil
	}
	err := q.db.Where("id IN ?", ids).Find(&users).Error
	return users, translate("find users", err)
}

// MissingUsers returns the ids that do not resolve to a user, in input order
func (q *Queries) MissingUsers(ids []string) ([]string, error) {
	users, err := q.FindUsers(ids)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(users))
	for _, u := range users {
		known[u.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// CreateTask inserts a task without touching associations
func (q *Queries) CreateTask(t *model.Task) error {
	return translate("create task", q.db.Omit(clause.Associations).Create(t).Error)
}

// GetTask loads a task by id
func (q *Queries) GetTask(id string) (*model.Task, error) {
	var t model.Task
	if err := q.db.First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(fmt.Sprintf("get task %s", id), err)
	}
	return &t, nil
}

// UpdateTask saves every column of t
func (q *Queries) UpdateTask(t *model.Task) error {
	res := q.db.Omit(clause.Associations).Save(t)
	return translate("update task", res.Error)
}

// DeleteTask removes a task; occurrences, assignments and the group cascade
func (q *Queries) DeleteTask(id string) error {
	res := q.db.Delete(&model.Task{}, "id = ?", id)
	if res.Error != nil {
		return translate("delete task", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete task %s: %w", id, ErrNotFound)
	}
	return nil
}

// HorizonUpdate is the bookkeeping written after a generation
type HorizonUpdate struct {
	LastGenerated  time.Time
	GeneratedUntil time.Time
	NextDueDate    *time.Time
}

// SaveTaskHorizon records the result of a generation on the task row
func (q *Queries) SaveTaskHorizon(taskID string, h HorizonUpdate) error {
	updates := map[string]any{
		"last_generated":  h.LastGenerated.UTC(),
		"generated_until": h.GeneratedUntil.UTC(),
	}
	if h.NextDueDate != nil {
		updates["next_due_date"] = h.NextDueDate.UTC()
	}
	res := q.db.Model(&model.Task{}).Where("id = ?", taskID).Updates(updates)
	if res.Error != nil {
		return translate("save task horizon", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("save task horizon %s: %w", taskID, ErrNotFound)
	}
	return nil
}

// ListStaleRecurring returns recurring tasks whose horizon was last extended
// before cutoff, or never
func (q *Queries) ListStaleRecurring(cutoff time.Time) ([]model.Task, error) {
	var tasks []model.Task
	err := q.db.
		Where("type = ?", model.TaskTypeRecurring).
		Where("last_generated IS NULL OR last_generated < ?", cutoff.UTC()).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, translate("list stale tasks", err)
}

// LastOccurrence returns the latest occurrence of a task scheduled at or
// after since, or nil if none. A zero since considers every occurrence.
func (q *Queries) LastOccurrence(taskID string, since time.Time) (*model.Occurrence, error) {
	var occ model.Occurrence
	tx := q.db.Where("task_id = ?", taskID)
	if !since.IsZero() {
		tx = tx.Where("scheduled_date >= ?", since.UTC())
	}
	err := tx.Order("scheduled_date DESC").Take(&occ).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("last occurrence", err)
	}
	return &occ, nil
}

// ExistingOccurrenceDates returns which of dates already have an occurrence,
// keyed by Unix seconds
func (q *Queries) ExistingOccurrenceDates(taskID string, dates []time.Time) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{})
	if len(dates) == 0 {
		return existing, nil
	}
	utc := make([]time.Time, len(dates))
	for i, d := range dates {
		utc[i] = d.UTC()
	}
	var found []time.Time
	err := q.db.Model(&model.Occurrence{}).
		Where("task_id = ? AND scheduled_date IN ?", taskID, utc).
		Pluck("scheduled_date", &found).Error
	if err != nil {
		return nil, translate("existing occurrences", err)
	}
	for _, d := range found {
		existing[d.Unix()] = struct{}{}
	}
	return existing, nil
}

// CreateOccurrences inserts occurrences, skipping any (task, date) that
// already exists. It returns the number of rows inserted.
func (q *Queries) CreateOccurrences(occs []model.Occurrence) (int64, error) {
	if len(occs) == 0 {
		return 0, nil
	}
	res := q.db.Clauses(clause.OnConflict{DoNothing: true}).Omit(clause.Associations).CreateInBatches(occs, 100)
	return res.RowsAffected, translate("create occurrences", res.Error)
}

// PendingOccurrences returns the task's pending occurrences in date order
func (q *Queries) PendingOccurrences(taskID string) ([]model.Occurrence, error) {
	var occs []model.Occurrence
	err := q.db.
		Where("task_id = ? AND status = ?", taskID, model.OccurrenceStatusPending).
		Order("scheduled_date ASC").
		Find(&occs).Error
	return occs, translate("pending occurrences", err)
}

// MarkOccurrencesAssigned flips pending occurrences to assigned. It fails
// with ErrConflict unless every id was still pending.
func (q *Queries) MarkOccurrencesAssigned(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	res := q.db.Model(&model.Occurrence{}).
		Where("id IN ? AND status = ?", ids, model.OccurrenceStatusPending).
		Update("status", model.OccurrenceStatusAssigned)
	if res.Error != nil {
		return translate("mark occurrences assigned", res.Error)
	}
	if res.RowsAffected != int64(len(ids)) {
		return fmt.Errorf("mark occurrences assigned: %d of %d still pending: %w",
			res.RowsAffected, len(ids), ErrConflict)
	}
	return nil
}

// UpcomingOccurrences returns up to limit occurrences at or after from
func (q *Queries) UpcomingOccurrences(taskID string, from time.Time, limit int) ([]model.Occurrence, error) {
	var occs []model.Occurrence
	err := q.db.
		Where("task_id = ? AND scheduled_date >= ?", taskID, from.UTC()).
		Order("scheduled_date ASC").
		Limit(limit).
		Find(&occs).Error
	return occs, translate("upcoming occurrences", err)
}

// CountOccurrences returns how many occurrences a task has
func (q *Queries) CountOccurrences(taskID string) (int64, error) {
	var n int64
	err := q.db.Model(&model.Occurrence{}).Where("task_id = ?", taskID).Count(&n).Error
	return n, translate("count occurrences", err)
}

// DeleteOccurrencesFrom removes occurrences at or after from together with
// their assignments
func (q *Queries) DeleteOccurrencesFrom(taskID string, from time.Time) (int64, error) {
	sub := q.db.Model(&model.Occurrence{}).Select("id").
		Where("task_id = ? AND scheduled_date >= ?", taskID, from.UTC())
	if err := q.db.Where("occurrence_id IN (?)", sub).Delete(&model.Assignment{}).Error; err != nil {
		return 0, translate("delete future assignments", err)
	}
	res := q.db.Where("task_id = ? AND scheduled_date >= ?", taskID, from.UTC()).Delete(&model.Occurrence{})
	return res.RowsAffected, translate("delete future occurrences", res.Error)
}

// DeletePendingOccurrences removes every occurrence of a task that was never
// bound to assignees, whatever its date
func (q *Queries) DeletePendingOccurrences(taskID string) (int64, error) {
	res := q.db.Where("task_id = ? AND status = ?", taskID, model.OccurrenceStatusPending).Delete(&model.Occurrence{})
	return res.RowsAffected, translate("delete pending occurrences", res.Error)
}
