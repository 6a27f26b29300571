package model

import "time"

// OccurrenceStatus tracks whether an occurrence has been bound to assignees
type OccurrenceStatus string

const (
	OccurrenceStatusPending  OccurrenceStatus = "PENDING"
	OccurrenceStatusAssigned OccurrenceStatus = "ASSIGNED"
)

// Occurrence is one concrete due instant of a recurring task
type Occurrence struct {
	ID            string           `gorm:"primaryKey;type:text" json:"id"`
	TaskID        string           `gorm:"not null;uniqueIndex:idx_occurrence_task_date" json:"taskId"`
	ScheduledDate time.Time        `gorm:"not null;uniqueIndex:idx_occurrence_task_date;index" json:"scheduledDate"`
	Status        OccurrenceStatus `gorm:"not null;index" json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`

	Assignments []Assignment `gorm:"foreignKey:OccurrenceID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Occurrence
func (Occurrence) TableName() string { return "recurring_task_schedules" }
