package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/t77yq/task-roster/internal/model"
)

// CreateAssignments inserts assignments. A second assignment of the same
// user to the same occurrence fails with ErrDuplicate.
func (q *Queries) CreateAssignments(as []model.Assignment) error {
	if len(as) == 0 {
		return nil
	}
	return translate("create assignments", q.db.CreateInBatches(as, 100).Error)
}

// GetAssignment loads an assignment by id
func (q *Queries) GetAssignment(id string) (*model.Assignment, error) {
	var a model.Assignment
	if err := q.db.First(&a, "id = ?", id).Error; err != nil {
		return nil, translate(fmt.Sprintf("get assignment %s", id), err)
	}
	return &a, nil
}

// CompletePendingAssignment moves a pending assignment to completed. It
// fails with ErrNotFound when the id is unknown or no longer pending.
func (q *Queries) CompletePendingAssignment(id, value string, comment *string, at time.Time) error {
	res := q.db.Model(&model.Assignment{}).
		Where("id = ? AND status = ?", id, model.AssignmentStatusPending).
		Updates(map[string]any{
			"status":          model.AssignmentStatusCompleted,
			"parameter_value": value,
			"comment":         comment,
			"completed_at":    at.UTC(),
		})
	if res.Error != nil {
		return translate("complete assignment", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complete assignment %s: %w", id, ErrNotFound)
	}
	return nil
}

// AssignmentsByTask returns a task's assignments, oldest first
func (q *Queries) AssignmentsByTask(taskID string) ([]model.Assignment, error) {
	var as []model.Assignment
	err := q.db.Where("task_id = ?", taskID).Order("created_at ASC, id ASC").Find(&as).Error
	return as, translate("assignments by task", err)
}

// AssignmentsByUser returns a user's assignments, newest first
func (q *Queries) AssignmentsByUser(userID string, status model.AssignmentStatus) ([]model.Assignment, error) {
	var as []model.Assignment
	tx := q.db.Where("assignee_id = ?", userID)
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	err := tx.Order("created_at DESC, id ASC").Find(&as).Error
	return as, translate("assignments by user", err)
}

// GetGroup returns the task's assignment group, or nil if it has none
func (q *Queries) GetGroup(taskID string) (*model.AssignmentGroup, error) {
	var g model.AssignmentGroup
	err := q.db.Take(&g, "task_id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("get group", err)
	}
	return &g, nil
}

// SaveGroup inserts or replaces the task's assignment group
func (q *Queries) SaveGroup(g *model.AssignmentGroup) error {
	err := q.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_ids", "assigned_by", "updated_at"}),
	}).Create(g).Error
	return translate("save group", err)
}

// DeleteGroup removes the task's assignment group if present
func (q *Queries) DeleteGroup(taskID string) error {
	return translate("delete group", q.db.Delete(&model.AssignmentGroup{}, "task_id = ?", taskID).Error)
}
