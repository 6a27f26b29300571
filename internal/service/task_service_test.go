package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/model"
	"github.com/t77yq/task-roster/internal/recurrence"
	"github.com/t77yq/task-roster/internal/scheduler"
	"github.com/t77yq/task-roster/internal/service"
	"github.com/t77yq/task-roster/internal/storage"
	"github.com/t77yq/task-roster/internal/testutil"
)

var jan1 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	store  *storage.Store
	engine *scheduler.Engine
	tasks  *service.TaskService
	now    time.Time
}

func newHarness(t *testing.T, opts ...scheduler.Option) *harness {
	t.Helper()
	h := &harness{store: testutil.NewStore(t), now: jan1}
	opts = append(opts, scheduler.WithClock(func() time.Time { return h.now }))
	h.engine = scheduler.NewEngine(h.store, zap.NewNop(), opts...)
	h.tasks = service.NewTaskService(h.engine, zap.NewNop())
	return h
}

func weeklyInput(t *testing.T) service.TaskInput {
	t.Helper()
	rule, err := recurrence.NewWeeklyRule([]string{"MON", "WED", "FRI"}, "10:30")
	require.NoError(t, err)
	category := "cleaning"
	return service.TaskInput{
		Title:          "Mop the floor",
		Type:           model.TaskTypeRecurring,
		CategoryID:     &category,
		Rule:           rule,
		ParameterType:  model.ParameterBoolean,
		ParameterLabel: "Done",
	}
}

func adHocInput() service.TaskInput {
	due := jan1.AddDate(0, 0, 3)
	return service.TaskInput{
		Title:          "Replace light bulb",
		Type:           model.TaskTypeAdHoc,
		DueDate:        &due,
		ParameterType:  model.ParameterComment,
		ParameterLabel: "Notes",
	}
}

func TestCreateTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("recurring generates first window", func(t *testing.T) {
		details, err := h.tasks.CreateTask(ctx, weeklyInput(t), "admin-1")
		require.NoError(t, err)

		assert.Equal(t, "admin-1", details.Task.CreatedBy)
		require.Len(t, details.Upcoming, 10)
		assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), details.Upcoming[0].ScheduledDate)
		assert.Equal(t, time.Date(2024, 1, 3, 10, 30, 0, 0, time.UTC), details.Upcoming[1].ScheduledDate)
		require.NotNil(t, details.Task.LastGenerated)
		require.NotNil(t, details.Task.NextDueDate)

		n, err := h.store.Queries(ctx).CountOccurrences(details.Task.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 14, n)
	})

	t.Run("ad-hoc has no schedule", func(t *testing.T) {
		details, err := h.tasks.CreateTask(ctx, adHocInput(), "admin-1")
		require.NoError(t, err)
		assert.Empty(t, details.Upcoming)
		require.NotNil(t, details.Task.DueDate)
	})

	t.Run("invalid input", func(t *testing.T) {
		recurringWithDue := weeklyInput(t)
		due := jan1
		recurringWithDue.DueDate = &due

		noCategory := weeklyInput(t)
		noCategory.CategoryID = nil

		adHocWithRule := adHocInput()
		adHocWithRule.Rule = weeklyInput(t).Rule

		adHocNoDue := adHocInput()
		adHocNoDue.DueDate = nil

		dropdown := adHocInput()
		dropdown.ParameterType = model.ParameterDropdown

		untitled := adHocInput()
		untitled.Title = " "

		for name, in := range map[string]service.TaskInput{
			"recurring with due date":    recurringWithDue,
			"recurring without category": noCategory,
			"ad-hoc with rule":           adHocWithRule,
			"ad-hoc without due date":    adHocNoDue,
			"dropdown without options":   dropdown,
			"untitled":                   untitled,
		} {
			t.Run(name, func(t *testing.T) {
				_, err := h.tasks.CreateTask(ctx, in, "admin-1")
				assert.ErrorIs(t, err, scheduler.ErrInvalidTask)
			})
		}
	})

	t.Run("invalid rule", func(t *testing.T) {
		in := weeklyInput(t)
		in.Rule = recurrence.IntervalRule{EveryNDays: 0, At: recurrence.MustTimeOfDay("09:00")}
		_, err := h.tasks.CreateTask(ctx, in, "admin-1")
		assert.ErrorIs(t, err, scheduler.ErrInvalidRule)
	})
}

func TestUpdateTask_RuleChangeRegenerates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.tasks.CreateUser(ctx, &model.User{ID: "user-1", FirstName: "Ada"}))
	details, err := h.tasks.CreateTask(ctx, weeklyInput(t), "admin-1")
	require.NoError(t, err)
	taskID := details.Task.ID

	_, err = h.engine.AssignToUsers(ctx, taskID, []string{"user-1"}, "admin-1")
	require.NoError(t, err)

	h.now = time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	daily, err := recurrence.NewIntervalRule(1, "09:00")
	require.NoError(t, err)
	in := weeklyInput(t)
	in.Title = "Mop the floor daily"
	in.Rule = daily

	details, err = h.tasks.UpdateTask(ctx, taskID, in)
	require.NoError(t, err)
	assert.Equal(t, "Mop the floor daily", details.Task.Title)
	assert.Empty(t, details.Assignees)
	require.NotEmpty(t, details.Upcoming)
	assert.Equal(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), details.Upcoming[0].ScheduledDate)
	for _, occ := range details.Upcoming {
		assert.Equal(t, model.OccurrenceStatusPending, occ.Status)
	}

	// Past occurrences keep their assignments.
	as, err := h.store.Queries(ctx).AssignmentsByTask(taskID)
	require.NoError(t, err)
	assert.Len(t, as, 4)
}

func intervalInput(t *testing.T, days int, at string) service.TaskInput {
	t.Helper()
	rule, err := recurrence.NewIntervalRule(days, at)
	require.NoError(t, err)
	in := weeklyInput(t)
	in.Rule = rule
	return in
}

func TestUpdateTask_RuleChangeStartsFromNow(t *testing.T) {
	midJan10 := time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)
	weekly, err := recurrence.NewWeeklyRule([]string{"WED", "SAT"}, "18:00")
	require.NoError(t, err)
	weeklyChange := weeklyInput(t)
	weeklyChange.Rule = weekly

	tests := []struct {
		name      string
		initial   service.TaskInput
		changed   service.TaskInput
		wantFirst []time.Time
	}{
		{
			// The old rule had an occurrence at 09:00 today; the new one
			// must not be anchored on it.
			name:    "interval 3 to interval 7",
			initial: intervalInput(t, 3, "09:00"),
			changed: intervalInput(t, 7, "09:00"),
			wantFirst: []time.Time{
				time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 18, 9, 0, 0, 0, time.UTC),
			},
		},
		{
			// Wednesday: the old 10:30 slot passed earlier today, the new
			// 18:00 slot is still ahead.
			name:    "weekly to weekly later the same day",
			initial: weeklyInput(t),
			changed: weeklyChange,
			wantFirst: []time.Time{
				time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 13, 18, 0, 0, 0, time.UTC),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			require.NoError(t, h.tasks.CreateUser(ctx, &model.User{ID: "user-1"}))

			details, err := h.tasks.CreateTask(ctx, tt.initial, "admin-1")
			require.NoError(t, err)
			taskID := details.Task.ID

			h.now = midJan10
			details, err = h.tasks.UpdateTask(ctx, taskID, tt.changed)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(details.Upcoming), len(tt.wantFirst))
			for i, want := range tt.wantFirst {
				assert.Equal(t, want, details.Upcoming[i].ScheduledDate)
			}
			require.NotNil(t, details.Task.NextDueDate)
			assert.True(t, details.Task.NextDueDate.Equal(tt.wantFirst[0]))

			// Unassigned occurrences of the old rule are gone, so a new
			// roster only binds the new schedule.
			q := h.store.Queries(ctx)
			total, err := q.CountOccurrences(taskID)
			require.NoError(t, err)
			upcoming, err := q.UpcomingOccurrences(taskID, midJan10, 100)
			require.NoError(t, err)
			assert.EqualValues(t, len(upcoming), total)

			_, err = h.engine.AssignToUsers(ctx, taskID, []string{"user-1"}, "admin-1")
			require.NoError(t, err)
			as, err := q.AssignmentsByTask(taskID)
			require.NoError(t, err)
			assert.Len(t, as, len(upcoming))

			bound := make(map[string]struct{}, len(upcoming))
			for _, occ := range upcoming {
				bound[occ.ID] = struct{}{}
			}
			for _, a := range as {
				require.NotNil(t, a.OccurrenceID)
				assert.Contains(t, bound, *a.OccurrenceID)
			}
		})
	}
}

func TestUpdateTask_RuleChangeExtendsOnNewRule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	details, err := h.tasks.CreateTask(ctx, intervalInput(t, 3, "09:00"), "admin-1")
	require.NoError(t, err)
	taskID := details.Task.ID

	h.now = time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)
	_, err = h.tasks.UpdateTask(ctx, taskID, intervalInput(t, 7, "09:00"))
	require.NoError(t, err)

	// Three weeks later the horizon is extended by the new rule only.
	h.now = time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	_, err = h.engine.GenerateOccurrences(ctx, taskID)
	require.NoError(t, err)

	upcoming, err := h.store.Queries(ctx).UpcomingOccurrences(taskID, time.Time{}, 100)
	require.NoError(t, err)
	require.NotEmpty(t, upcoming)
	assert.Equal(t, time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC), upcoming[0].ScheduledDate)
	for i := 1; i < len(upcoming); i++ {
		assert.Equal(t, 7*24*time.Hour, upcoming[i].ScheduledDate.Sub(upcoming[i-1].ScheduledDate))
	}
}

func TestUpdateTask_SameRuleKeepsSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	details, err := h.tasks.CreateTask(ctx, weeklyInput(t), "admin-1")
	require.NoError(t, err)
	before := details.Upcoming

	in := weeklyInput(t)
	in.Description = "Use the blue bucket"
	details, err = h.tasks.UpdateTask(ctx, details.Task.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Use the blue bucket", details.Task.Description)
	assert.Equal(t, before, details.Upcoming)
}

func TestUpdateTask_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.tasks.UpdateTask(ctx, "missing", adHocInput())
	assert.ErrorIs(t, err, scheduler.ErrTaskNotFound)

	details, err := h.tasks.CreateTask(ctx, adHocInput(), "admin-1")
	require.NoError(t, err)
	_, err = h.tasks.UpdateTask(ctx, details.Task.ID, weeklyInput(t))
	assert.ErrorIs(t, err, scheduler.ErrInvalidTask)
}

func TestDeleteTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.tasks.CreateUser(ctx, &model.User{ID: "user-1"}))
	details, err := h.tasks.CreateTask(ctx, weeklyInput(t), "admin-1")
	require.NoError(t, err)
	_, err = h.engine.AssignToUsers(ctx, details.Task.ID, []string{"user-1"}, "admin-1")
	require.NoError(t, err)

	require.NoError(t, h.tasks.DeleteTask(ctx, details.Task.ID))

	_, err = h.tasks.GetTask(ctx, details.Task.ID)
	assert.ErrorIs(t, err, scheduler.ErrTaskNotFound)

	mine, err := h.engine.AssignmentsByUser(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Empty(t, mine)

	assert.ErrorIs(t, h.tasks.DeleteTask(ctx, details.Task.ID), scheduler.ErrTaskNotFound)
}
