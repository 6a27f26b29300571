package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/model"
	"github.com/t77yq/task-roster/internal/storage"
)

// NewStore opens a migrated store backed by a file in the test's temp dir
func NewStore(t *testing.T) *storage.Store {
	t.Helper()

	store, err := storage.Open(storage.Options{
		Path:      filepath.Join(t.TempDir(), "roster.db"),
		TxTimeout: 10 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// SeedUsers creates n member users and returns their ids
func SeedUsers(t *testing.T, store *storage.Store, n int) []string {
	t.Helper()

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		u := &model.User{
			ID:        uuid.NewString(),
			FirstName: "Member",
			LastName:  uuid.NewString()[:8],
			Role:      model.UserRoleMember,
		}
		require.NoError(t, store.Queries(context.Background()).CreateUser(u))
		ids = append(ids, u.ID)
	}
	return ids
}
