package scheduler

import "time"

// Event subjects published after commit
const (
	SubjectOccurrencesGenerated = "roster.occurrences.generated"
	SubjectAssignmentsCreated   = "roster.assignments.created"
	SubjectAssignmentCompleted  = "roster.assignments.completed"
	SubjectGroupUpdated         = "roster.group.updated"

	// SubjectWildcard matches every roster event
	SubjectWildcard = "roster.>"
)

const (
	// DefaultStaleAfter is how old lastGenerated may get before the extender
	// picks a task up. It must stay below the shortest one-month horizon.
	DefaultStaleAfter = 21 * 24 * time.Hour

	// MaxStaleAfter is the shortest calendar month
	MaxStaleAfter = 28 * 24 * time.Hour

	// MinTxTimeout is the smallest transaction timeout the engine accepts
	MinTxTimeout = 10 * time.Second
)
