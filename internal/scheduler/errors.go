package scheduler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/t77yq/task-roster/internal/recurrence"
	"github.com/t77yq/task-roster/internal/storage"
)

var (
	// ErrInvalidRule is returned when a repetition config is malformed
	ErrInvalidRule = recurrence.ErrInvalidRule

	// ErrTaskNotFound is returned when a task is not found
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotRecurring is returned when a recurring-only operation targets an ad-hoc task
	ErrNotRecurring = errors.New("task is not recurring")

	// ErrUnknownUser is returned when assignees do not resolve to users
	ErrUnknownUser = errors.New("unknown user")

	// ErrNoUsers is returned when an assignment names nobody
	ErrNoUsers = errors.New("no users given")

	// ErrAlreadyAssigned is returned when a user is already in the task's group
	ErrAlreadyAssigned = errors.New("user already assigned")

	// ErrNoPendingOccurrences is returned when a recurring task has nothing left to assign
	ErrNoPendingOccurrences = errors.New("no pending occurrences")

	// ErrNoOccurrencesProduced is returned, after commit, when generation added nothing
	ErrNoOccurrencesProduced = errors.New("no occurrences produced")

	// ErrAssignmentNotFound is returned when an id does not resolve to a pending assignment
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrInvalidTask is returned when a task breaks the type, rule or due date constraints
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidParameter is returned when a completion value does not fit the task's parameter
	ErrInvalidParameter = errors.New("invalid parameter value")

	// ErrTransactionTimeout is returned when a transaction timed out or lost the write lock
	ErrTransactionTimeout = errors.New("transaction timed out")

	// ErrConflict is returned when a concurrent writer changed the rows a transaction relied on
	ErrConflict = errors.New("concurrent modification")
)

// UserIDsError carries the user ids that caused Err
type UserIDsError struct {
	Err     error
	UserIDs []string
}

func (e *UserIDsError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, strings.Join(e.UserIDs, ", "))
}

func (e *UserIDsError) Unwrap() error {
	return e.Err
}

// OffendingUsers returns the user ids attached to err, if any
func OffendingUsers(err error) []string {
	var uerr *UserIDsError
	if errors.As(err, &uerr) {
		return uerr.UserIDs
	}
	return nil
}

// IsRetryable reports whether err came from contention and the operation
// may succeed if tried again
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionTimeout) || errors.Is(err, ErrConflict)
}

// StatusCode maps engine errors onto HTTP status codes
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrAssignmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyAssigned), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRule),
		errors.Is(err, ErrInvalidTask),
		errors.Is(err, ErrInvalidParameter),
		errors.Is(err, ErrUnknownUser),
		errors.Is(err, ErrNoUsers),
		errors.Is(err, ErrNotRecurring),
		errors.Is(err, ErrNoPendingOccurrences):
		return http.StatusBadRequest
	case IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// storeError maps storage sentinels onto the engine taxonomy
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrBusy):
		return fmt.Errorf("%w: %w", ErrTransactionTimeout, err)
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}
