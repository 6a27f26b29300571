package scheduler

import "time"

// OccurrencesGeneratedEvent is published when generation persisted new occurrences
type OccurrencesGeneratedEvent struct {
	TaskID         string      `json:"taskId"`
	ScheduledDates []time.Time `json:"scheduledDates"`
	GeneratedUntil time.Time   `json:"generatedUntil"`
	GeneratedAt    time.Time   `json:"generatedAt"`
}

// AssignmentsCreatedEvent is published when assignees were bound to a task
type AssignmentsCreatedEvent struct {
	TaskID        string    `json:"taskId"`
	UserIDs       []string  `json:"userIds"`
	OccurrenceIDs []string  `json:"occurrenceIds,omitempty"`
	Assignments   int       `json:"assignments"`
	AssignedBy    string    `json:"assignedBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AssignmentCompletedEvent is published when an assignee reported completion
type AssignmentCompletedEvent struct {
	AssignmentID   string    `json:"assignmentId"`
	TaskID         string    `json:"taskId"`
	AssigneeID     string    `json:"assigneeId"`
	ParameterValue string    `json:"parameterValue"`
	CompletedAt    time.Time `json:"completedAt"`
}

// GroupUpdatedEvent is published when a task's roster changed
type GroupUpdatedEvent struct {
	TaskID     string    `json:"taskId"`
	UserIDs    []string  `json:"userIds"`
	AssignedBy string    `json:"assignedBy"`
	Replaced   bool      `json:"replaced"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
