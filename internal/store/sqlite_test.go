package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSQLiteStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_AppendThenLoad(t *testing.T) {
	s := newTestSQLiteStore(t, filepath.Join(t.TempDir(), "users.db"))
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "alice", "pw1"))
	require.NoError(t, s.Append(ctx, "bob", "pw2"))

	users, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "pw1", "bob": "pw2"}, users)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")

	first := newTestSQLiteStore(t, path)
	require.NoError(t, first.Append(context.Background(), "alice", "pw"))
	require.NoError(t, first.Close())

	second := newTestSQLiteStore(t, path)
	users, err := second.Load()
	require.NoError(t, err)
	assert.Equal(t, "pw", users["alice"])
}

func TestSQLiteStore_DuplicateUsernameFails(t *testing.T) {
	s := newTestSQLiteStore(t, filepath.Join(t.TempDir(), "users.db"))
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "alice", "pw"))
	assert.Error(t, s.Append(ctx, "alice", "other"))
}

func TestSQLiteStore_ConcurrentAppends(t *testing.T) {
	s := newTestSQLiteStore(t, filepath.Join(t.TempDir(), "users.db"))
	ctx := context.Background()

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func(n int) {
			done <- s.Append(ctx, fmt.Sprintf("user-%d", n), "pw")
		}(i)
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-done)
	}

	users, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, users, 20)
}

func TestSQLiteStore_AppendAfterClose(t *testing.T) {
	s := newTestSQLiteStore(t, filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, s.Close())

	err := s.Append(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, ErrStoreClosed)
}
