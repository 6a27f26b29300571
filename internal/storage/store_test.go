package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/task-roster/internal/model"
	"github.com/t77yq/task-roster/internal/recurrence"
	"github.com/t77yq/task-roster/internal/storage"
	"github.com/t77yq/task-roster/internal/testutil"
)

func newRecurringTask(t *testing.T, q *storage.Queries) *model.Task {
	t.Helper()
	rule, err := recurrence.NewIntervalRule(1, "09:00")
	require.NoError(t, err)
	task := &model.Task{
		ID:            uuid.NewString(),
		Title:         "Check fridge temperature",
		Type:          model.TaskTypeRecurring,
		CreatedBy:     "admin",
		Repetition:    &recurrence.Config{Rule: rule},
		ParameterType: model.ParameterNumber,
	}
	require.NoError(t, q.CreateTask(task))
	return task
}

func occurrencesAt(taskID string, dates ...time.Time) []model.Occurrence {
	occs := make([]model.Occurrence, 0, len(dates))
	for _, d := range dates {
		occs = append(occs, model.Occurrence{
			ID:            uuid.NewString(),
			TaskID:        taskID,
			ScheduledDate: d,
			Status:        model.OccurrenceStatusPending,
		})
	}
	return occs
}

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 9, 0, 0, 0, time.UTC)
}

func TestTaskRoundTrip(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())
	task := newRecurringTask(t, q)

	got, err := q.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskTypeRecurring, got.Type)
	require.NotNil(t, got.Rule())
	assert.Equal(t, recurrence.KindInterval, got.Rule().Kind())

	_, err = q.GetTask("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateOccurrencesSkipsDuplicates(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())
	task := newRecurringTask(t, q)

	n, err := q.CreateOccurrences(occurrencesAt(task.ID, day(1), day(2)))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = q.CreateOccurrences(occurrencesAt(task.ID, day(2), day(3)))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	count, err := q.CountOccurrences(task.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	existing, err := q.ExistingOccurrenceDates(task.ID, []time.Time{day(1), day(3), day(4)})
	require.NoError(t, err)
	assert.Len(t, existing, 2)
	assert.Contains(t, existing, day(1).Unix())
	assert.Contains(t, existing, day(3).Unix())

	last, err := q.LastOccurrence(task.ID, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.ScheduledDate.Equal(day(3)))

	last, err = q.LastOccurrence(task.ID, day(4))
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestMarkOccurrencesAssignedIsConditional(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())
	task := newRecurringTask(t, q)

	occs := occurrencesAt(task.ID, day(1), day(2))
	_, err := q.CreateOccurrences(occs)
	require.NoError(t, err)

	require.NoError(t, q.MarkOccurrencesAssigned([]string{occs[0].ID}))

	err = q.MarkOccurrencesAssigned([]string{occs[0].ID, occs[1].ID})
	assert.ErrorIs(t, err, storage.ErrConflict)

	pending, err := q.PendingOccurrences(task.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, occs[1].ID, pending[0].ID)
}

func TestInTxRollsBack(t *testing.T) {
	store := testutil.NewStore(t)
	ctx := context.Background()
	task := newRecurringTask(t, store.Queries(ctx))

	err := store.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.CreateOccurrences(occurrencesAt(task.ID, day(1))); err != nil {
			return err
		}
		return q.MarkOccurrencesAssigned([]string{"missing"})
	})
	require.ErrorIs(t, err, storage.ErrConflict)

	count, err := store.Queries(ctx).CountOccurrences(task.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDuplicateAssignmentRejected(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())
	task := newRecurringTask(t, q)
	users := testutil.SeedUsers(t, store, 1)

	occs := occurrencesAt(task.ID, day(1))
	_, err := q.CreateOccurrences(occs)
	require.NoError(t, err)

	assign := func() model.Assignment {
		return model.Assignment{
			ID:           uuid.NewString(),
			TaskID:       task.ID,
			OccurrenceID: &occs[0].ID,
			AssigneeID:   users[0],
			AssignedBy:   "admin",
			Status:       model.AssignmentStatusPending,
		}
	}
	require.NoError(t, q.CreateAssignments([]model.Assignment{assign()}))
	err = q.CreateAssignments([]model.Assignment{assign()})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestCompletePendingAssignment(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())
	task := newRecurringTask(t, q)

	a := model.Assignment{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		AssigneeID: "user-1",
		AssignedBy: "admin",
		Status:     model.AssignmentStatusPending,
	}
	require.NoError(t, q.CreateAssignments([]model.Assignment{a}))

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, q.CompletePendingAssignment(a.ID, "4.5", nil, at))

	got, err := q.GetAssignment(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentStatusCompleted, got.Status)
	require.NotNil(t, got.ParameterValue)
	assert.Equal(t, "4.5", *got.ParameterValue)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(at))

	err = q.CompletePendingAssignment(a.ID, "5", nil, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGroupUpsert(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())
	task := newRecurringTask(t, q)

	g, err := q.GetGroup(task.ID)
	require.NoError(t, err)
	assert.Nil(t, g)

	require.NoError(t, q.SaveGroup(&model.AssignmentGroup{TaskID: task.ID, UserIDs: []string{"a"}, AssignedBy: "admin"}))
	require.NoError(t, q.SaveGroup(&model.AssignmentGroup{TaskID: task.ID, UserIDs: []string{"b", "c"}, AssignedBy: "other"}))

	g, err = q.GetGroup(task.ID)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, []string{"b", "c"}, g.UserIDs)
	assert.Equal(t, "other", g.AssignedBy)
}

func TestDeleteTaskCascades(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())
	task := newRecurringTask(t, q)

	occs := occurrencesAt(task.ID, day(1), day(2))
	_, err := q.CreateOccurrences(occs)
	require.NoError(t, err)
	require.NoError(t, q.CreateAssignments([]model.Assignment{{
		ID:           uuid.NewString(),
		TaskID:       task.ID,
		OccurrenceID: &occs[0].ID,
		AssigneeID:   "user-1",
		AssignedBy:   "admin",
		Status:       model.AssignmentStatusPending,
	}}))
	require.NoError(t, q.SaveGroup(&model.AssignmentGroup{TaskID: task.ID, UserIDs: []string{"user-1"}, AssignedBy: "admin"}))

	require.NoError(t, q.DeleteTask(task.ID))

	count, err := q.CountOccurrences(task.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	as, err := q.AssignmentsByTask(task.ID)
	require.NoError(t, err)
	assert.Empty(t, as)

	g, err := q.GetGroup(task.ID)
	require.NoError(t, err)
	assert.Nil(t, g)

	assert.ErrorIs(t, q.DeleteTask(task.ID), storage.ErrNotFound)
}

func TestListStaleRecurring(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())

	fresh := newRecurringTask(t, q)
	stale := newRecurringTask(t, q)
	never := newRecurringTask(t, q)

	now := time.Date(2024, 3, 30, 2, 0, 0, 0, time.UTC)
	require.NoError(t, q.SaveTaskHorizon(fresh.ID, storage.HorizonUpdate{LastGenerated: now.AddDate(0, 0, -1), GeneratedUntil: now}))
	require.NoError(t, q.SaveTaskHorizon(stale.ID, storage.HorizonUpdate{LastGenerated: now.AddDate(0, 0, -25), GeneratedUntil: now}))

	tasks, err := q.ListStaleRecurring(now.AddDate(0, 0, -21))
	require.NoError(t, err)

	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.ElementsMatch(t, []string{stale.ID, never.ID}, ids)
}

func TestDeleteOccurrencesFrom(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())
	task := newRecurringTask(t, q)

	occs := occurrencesAt(task.ID, day(1), day(2), day(3))
	_, err := q.CreateOccurrences(occs)
	require.NoError(t, err)
	require.NoError(t, q.CreateAssignments([]model.Assignment{{
		ID:           uuid.NewString(),
		TaskID:       task.ID,
		OccurrenceID: &occs[2].ID,
		AssigneeID:   "user-1",
		AssignedBy:   "admin",
		Status:       model.AssignmentStatusPending,
	}}))

	n, err := q.DeleteOccurrencesFrom(task.ID, day(2))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	upcoming, err := q.UpcomingOccurrences(task.ID, day(1), 10)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, occs[0].ID, upcoming[0].ID)

	as, err := q.AssignmentsByTask(task.ID)
	require.NoError(t, err)
	assert.Empty(t, as)
}

func TestDeletePendingOccurrences(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())
	task := newRecurringTask(t, q)

	occs := occurrencesAt(task.ID, day(1), day(2), day(3))
	_, err := q.CreateOccurrences(occs)
	require.NoError(t, err)
	require.NoError(t, q.MarkOccurrencesAssigned([]string{occs[1].ID}))

	n, err := q.DeletePendingOccurrences(task.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	left, err := q.UpcomingOccurrences(task.ID, day(1), 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, occs[1].ID, left[0].ID)
	assert.Equal(t, model.OccurrenceStatusAssigned, left[0].Status)
}

func TestMissingUsers(t *testing.T) {
	store := testutil.NewStore(t)
	q := store.Queries(context.Background())
	users := testutil.SeedUsers(t, store, 2)

	missing, err := q.MissingUsers([]string{users[0], "ghost", users[1], "phantom"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost", "phantom"}, missing)
}
