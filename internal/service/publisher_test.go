package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/task-roster/internal/model"
	"github.com/t77yq/task-roster/internal/scheduler"
	"github.com/t77yq/task-roster/internal/service"
	"github.com/t77yq/task-roster/internal/testutil"
)

func TestNATSPublisher(t *testing.T) {
	_, _, js := testutil.StartJetStream(t)
	logger := zaptest.NewLogger(t)

	require.NoError(t, service.EnsureStream(js, "ROSTER", logger))
	require.NoError(t, testutil.WaitForStream(t, js, "ROSTER", 5*time.Second))
	// A second call finds the existing stream.
	require.NoError(t, service.EnsureStream(js, "ROSTER", logger))

	publisher := service.NewNATSPublisher(js, logger)
	h := newHarness(t, scheduler.WithPublisher(publisher))
	ctx := context.Background()

	require.NoError(t, h.tasks.CreateUser(ctx, &model.User{ID: "user-1"}))
	details, err := h.tasks.CreateTask(ctx, weeklyInput(t), "admin-1")
	require.NoError(t, err)
	_, err = h.engine.AssignToUsers(ctx, details.Task.ID, []string{"user-1"}, "admin-1")
	require.NoError(t, err)

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, publisher.Flush(flushCtx))

	msgs := testutil.StreamMessages(t, js, "ROSTER", 3, 5*time.Second)
	subjects := make([]string, 0, len(msgs))
	for _, m := range msgs {
		subjects = append(subjects, m.Subject)
	}
	assert.Equal(t, []string{
		scheduler.SubjectOccurrencesGenerated,
		scheduler.SubjectGroupUpdated,
		scheduler.SubjectAssignmentsCreated,
	}, subjects)

	var envelope service.Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &envelope))
	assert.NotEmpty(t, envelope.ID)
	assert.Equal(t, scheduler.SubjectOccurrencesGenerated, envelope.Subject)

	var generated scheduler.OccurrencesGeneratedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &generated))
	assert.Equal(t, details.Task.ID, generated.TaskID)
	assert.Len(t, generated.ScheduledDates, 14)

	var created scheduler.AssignmentsCreatedEvent
	require.NoError(t, json.Unmarshal(msgs[2].Data, &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, &created))
	assert.Equal(t, 14, created.Assignments)
	assert.Equal(t, []string{"user-1"}, created.UserIDs)
}

func TestLogPublisher(t *testing.T) {
	h := newHarness(t, scheduler.WithPublisher(service.NewLogPublisher(zap.NewNop())))
	_, err := h.tasks.CreateTask(context.Background(), adHocInput(), "admin-1")
	assert.NoError(t, err)
}
