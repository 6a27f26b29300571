package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/task-roster/internal/storage"
	"github.com/t77yq/task-roster/internal/testutil"
)

func TestRunHistory(t *testing.T) {
	store := testutil.NewStore(t)
	history := store.History()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

	t.Run("store and update", func(t *testing.T) {
		run := &storage.ExtenderRun{
			ID:            "run-1",
			StartedAt:     base,
			TasksSelected: 3,
			Status:        storage.RunStatusRunning,
		}
		require.NoError(t, history.Store(ctx, run))

		completed := base.Add(2 * time.Second)
		run.CompletedAt = &completed
		run.Duration = 2 * time.Second
		run.TasksExtended = 2
		run.TasksFailed = 1
		run.Status = storage.RunStatusPartial
		run.Error = "1 task failed"
		require.NoError(t, history.Update(ctx, run))

		got, err := history.Get(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, storage.RunStatusPartial, got.Status)
		assert.Equal(t, 3, got.TasksSelected)
		assert.Equal(t, 2, got.TasksExtended)
		assert.Equal(t, 1, got.TasksFailed)
		assert.Equal(t, 2*time.Second, got.Duration)
		assert.Equal(t, "1 task failed", got.Error)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, got.CompletedAt.Equal(completed))
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := history.Get(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list and count", func(t *testing.T) {
		for i, id := range []string{"run-2", "run-3"} {
			require.NoError(t, history.Store(ctx, &storage.ExtenderRun{
				ID:        id,
				StartedAt: base.AddDate(0, 0, i+1),
				Status:    storage.RunStatusCompleted,
			}))
		}

		runs, err := history.List(ctx, "", 0, 10)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "run-3", runs[0].ID)

		n, err := history.Count(ctx, storage.RunStatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("delete before", func(t *testing.T) {
		deleted, err := history.DeleteBefore(ctx, base.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)

		n, err := history.Count(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
