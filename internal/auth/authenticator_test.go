package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/store"
)

// mockStore lets tests control load results and observe appends.
type mockStore struct {
	users     map[string]string
	appendErr error
	appended  [][2]string
}

func (m *mockStore) Load() (map[string]string, error) {
	users := make(map[string]string, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	return users, nil
}

func (m *mockStore) Append(ctx context.Context, username, password string) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, [2]string{username, password})
	return nil
}

func (m *mockStore) Close() error { return nil }

func newTestAuthenticator(t *testing.T, s store.CredentialStore) *Authenticator {
	t.Helper()
	a, err := New(s, zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestAuthenticate_RegistersUnknownUser(t *testing.T) {
	ms := &mockStore{}
	a := newTestAuthenticator(t, ms)

	outcome, err := a.Authenticate(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, Registered, outcome)
	assert.Equal(t, [][2]string{{"alice", "pw"}}, ms.appended)

	// The new user can log back in immediately.
	outcome, err = a.Authenticate(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, Accepted, outcome)
}

func TestAuthenticate_AcceptsKnownUser(t *testing.T) {
	a := newTestAuthenticator(t, &mockStore{users: map[string]string{"alice": "pw"}})

	outcome, err := a.Authenticate(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, Accepted, outcome)
}

func TestAuthenticate_RejectsWrongPassword(t *testing.T) {
	ms := &mockStore{users: map[string]string{"alice": "pw"}}
	a := newTestAuthenticator(t, ms)

	outcome, err := a.Authenticate(context.Background(), "alice", "wrong")
	require.NoError(t, err)
	assert.Equal(t, Rejected, outcome)
	assert.Empty(t, ms.appended)
}

func TestAuthenticate_TrimsWhitespace(t *testing.T) {
	ms := &mockStore{}
	a := newTestAuthenticator(t, ms)

	outcome, err := a.Authenticate(context.Background(), "  alice \n", " pw ")
	require.NoError(t, err)
	assert.Equal(t, Registered, outcome)
	assert.Equal(t, [][2]string{{"alice", "pw"}}, ms.appended)

	outcome, err = a.Authenticate(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, Accepted, outcome)
}

func TestAuthenticate_AppendFailureDoesNotRegister(t *testing.T) {
	wantErr := errors.New("disk full")
	ms := &mockStore{appendErr: wantErr}
	a := newTestAuthenticator(t, ms)

	_, err := a.Authenticate(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, wantErr)

	// The failed registration left no trace in memory: once the store
	// recovers, the same name registers as an unknown user.
	ms.appendErr = nil
	outcome, err := a.Authenticate(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, Registered, outcome)
}

func TestAuthenticate_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.txt")

	first := newTestAuthenticator(t, store.NewFileStore(path))
	outcome, err := first.Authenticate(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.Equal(t, Registered, outcome)

	// A fresh authenticator over the same file recognizes the user.
	second := newTestAuthenticator(t, store.NewFileStore(path))
	outcome, err = second.Authenticate(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, Accepted, outcome)

	outcome, err = second.Authenticate(context.Background(), "alice", "wrong")
	require.NoError(t, err)
	assert.Equal(t, Rejected, outcome)
}
