package model

import (
	"time"

	"github.com/t77yq/task-roster/internal/recurrence"
)

// TaskType distinguishes one-off tasks from scheduled ones
type TaskType string

const (
	TaskTypeAdHoc     TaskType = "ADHOC"
	TaskTypeRecurring TaskType = "RECURRING"
)

// ParameterType is the kind of value a member reports on completion
type ParameterType string

const (
	ParameterNumber   ParameterType = "NUMBER"
	ParameterText     ParameterType = "TEXT"
	ParameterDateTime ParameterType = "DATETIME"
	ParameterDropdown ParameterType = "DROPDOWN"
	ParameterBoolean  ParameterType = "BOOLEAN"
	ParameterComment  ParameterType = "COMMENT"
)

// Task represents a unit of work defined by an administrator
type Task struct {
	ID            string   `gorm:"primaryKey;type:text" json:"id"`
	Title         string   `gorm:"not null" json:"title"`
	Description   string   `json:"description,omitempty"`
	Type          TaskType `gorm:"not null;index" json:"taskType"`
	CategoryID    *string  `gorm:"index" json:"categoryId,omitempty"`
	SubcategoryID *string  `json:"subcategoryId,omitempty"`
	CreatedBy     string   `gorm:"not null" json:"createdBy"`

	// Exactly one of Repetition (recurring) or DueDate (ad-hoc) is set.
	Repetition *recurrence.Config `gorm:"column:repetition_config;type:text" json:"repetitionConfig,omitempty"`
	DueDate    *time.Time         `json:"dueDate,omitempty"`

	// Parameter reported on completion
	ParameterType     ParameterType `gorm:"not null" json:"parameterType"`
	ParameterLabel    string        `json:"parameterLabel"`
	ParameterUnit     *string       `json:"parameterUnit,omitempty"`
	ParameterRequired bool          `json:"parameterIsRequired"`
	DropdownOptions   []string      `gorm:"serializer:json" json:"dropdownOptions,omitempty"`

	// Horizon bookkeeping, written only by generation
	LastGenerated  *time.Time `gorm:"index" json:"lastGenerated,omitempty"`
	GeneratedUntil *time.Time `json:"generatedUntil,omitempty"`
	NextDueDate    *time.Time `json:"nextDueDate,omitempty"`

	// RuleSince is when the current rule took effect. Occurrences before it
	// were generated by an earlier rule.
	RuleSince *time.Time `json:"ruleSince,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Occurrences []Occurrence     `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"occurrences,omitempty"`
	Assignments []Assignment     `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
	Group       *AssignmentGroup `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Task
func (Task) TableName() string { return "tasks" }

// Rule returns the task's recurrence rule, or nil for ad-hoc tasks
func (t *Task) Rule() recurrence.Rule {
	if t.Repetition == nil {
		return nil
	}
	return t.Repetition.Rule
}

// IsRecurring reports whether the task follows a recurrence rule
func (t *Task) IsRecurring() bool {
	return t.Type == TaskTypeRecurring
}
