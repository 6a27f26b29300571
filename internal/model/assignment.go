package model

import "time"

// AssignmentStatus represents the progress of an assignment
type AssignmentStatus string

const (
	AssignmentStatusPending   AssignmentStatus = "PENDING"
	AssignmentStatusCompleted AssignmentStatus = "COMPLETED"
)

// Assignment binds one assignee to a task, and for recurring tasks to one
// occurrence of it.
type Assignment struct {
	ID             string           `gorm:"primaryKey;type:text" json:"id"`
	TaskID         string           `gorm:"not null;index" json:"taskId"`
	OccurrenceID   *string          `gorm:"uniqueIndex:idx_assignment_occurrence_assignee" json:"scheduleId,omitempty"`
	AssigneeID     string           `gorm:"not null;index;uniqueIndex:idx_assignment_occurrence_assignee" json:"assignedTo"`
	AssignedBy     string           `gorm:"not null" json:"assignedBy"`
	Status         AssignmentStatus `gorm:"not null;index" json:"status"`
	ParameterValue *string          `json:"parameterValue,omitempty"`
	Comment        *string          `json:"comment,omitempty"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// TableName specifies the table name for Assignment
func (Assignment) TableName() string { return "task_assignments" }

// AssignmentGroup is the roster that future occurrences of a recurring task
// are assigned to. Members are user ids; the group does not own the users.
type AssignmentGroup struct {
	TaskID     string    `gorm:"primaryKey;type:text" json:"taskId"`
	UserIDs    []string  `gorm:"serializer:json;not null" json:"assignedToIds"`
	AssignedBy string    `gorm:"not null" json:"assignedBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName specifies the table name for AssignmentGroup
func (AssignmentGroup) TableName() string { return "task_assignment_groups" }

// Has reports whether userID is a member of the group
func (g *AssignmentGroup) Has(userID string) bool {
	if g == nil {
		return false
	}
	for _, id := range g.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
