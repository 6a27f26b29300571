package scheduler_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/t77yq/task-roster/internal/scheduler"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("wrap: %w", scheduler.ErrTaskNotFound), http.StatusNotFound},
		{scheduler.ErrAssignmentNotFound, http.StatusNotFound},
		{&scheduler.UserIDsError{Err: scheduler.ErrAlreadyAssigned, UserIDs: []string{"u1"}}, http.StatusConflict},
		{scheduler.ErrConflict, http.StatusConflict},
		{&scheduler.UserIDsError{Err: scheduler.ErrUnknownUser, UserIDs: []string{"u1"}}, http.StatusBadRequest},
		{scheduler.ErrInvalidRule, http.StatusBadRequest},
		{scheduler.ErrInvalidTask, http.StatusBadRequest},
		{scheduler.ErrNotRecurring, http.StatusBadRequest},
		{scheduler.ErrNoPendingOccurrences, http.StatusBadRequest},
		{scheduler.ErrTransactionTimeout, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, scheduler.StatusCode(tt.err))
		})
	}
}

func TestUserIDsError(t *testing.T) {
	err := fmt.Errorf("assign: %w", &scheduler.UserIDsError{
		Err:     scheduler.ErrAlreadyAssigned,
		UserIDs: []string{"u1", "u2"},
	})

	assert.ErrorIs(t, err, scheduler.ErrAlreadyAssigned)
	assert.Equal(t, []string{"u1", "u2"}, scheduler.OffendingUsers(err))
	assert.Contains(t, err.Error(), "u1, u2")
	assert.Nil(t, scheduler.OffendingUsers(scheduler.ErrConflict))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, scheduler.IsRetryable(fmt.Errorf("x: %w", scheduler.ErrTransactionTimeout)))
	assert.True(t, scheduler.IsRetryable(scheduler.ErrConflict))
	assert.False(t, scheduler.IsRetryable(scheduler.ErrInvalidRule))
	assert.False(t, scheduler.IsRetryable(nil))
}
