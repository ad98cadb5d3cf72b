package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, id string, lastSeen time.Time) {
	t.Helper()
	require.NoError(t, s.UpsertUser(context.Background(), &domain.User{
		UserID:     id,
		LastSeenAt: lastSeen,
		CreatedAt:  lastSeen,
		UpdatedAt:  lastSeen,
	}))
}

func TestStateRoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "dev_1", time.Now())

	_, ok, err := s.GetState(ctx, "dev_1", KeyFiles)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutState(ctx, "dev_1", KeyFiles, `{"version":2,"nodes":[]}`))
	require.NoError(t, s.PutState(ctx, "dev_1", KeyFiles, `{"version":2,"nodes":[{"id":"a"}]}`))

	got, ok, err := s.GetState(ctx, "dev_1", KeyFiles)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"version":2,"nodes":[{"id":"a"}]}`, got)
}

func TestStateIsScopedPerDevice(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "dev_1", time.Now())
	seedUser(t, s, "dev_2", time.Now())

	require.NoError(t, s.PutState(ctx, "dev_1", KeyActiveID, `"x"`))
	_, ok, err := s.GetState(ctx, "dev_2", KeyActiveID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetUserMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	user, err := s.GetUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestDeleteIdleUsersCascadesState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "old", time.Now().Add(-48*time.Hour))
	seedUser(t, s, "fresh", time.Now())
	require.NoError(t, s.PutState(ctx, "old", KeyChat, `[]`))

	n, err := s.DeleteIdleUsers(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err := s.GetState(ctx, "old", KeyChat)
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := s.GetUser(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, user)
}

func TestIdleUsersAndDeleteUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "older", time.Now().Add(-72*time.Hour))
	seedUser(t, s, "old", time.Now().Add(-48*time.Hour))
	seedUser(t, s, "fresh", time.Now())
	require.NoError(t, s.PutState(ctx, "old", KeyFiles, `[]`))

	idle, err := s.IdleUsers(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, idle, 2)
	assert.Equal(t, "older", idle[0].UserID)
	assert.Equal(t, "old", idle[1].UserID)

	require.NoError(t, s.DeleteUser(ctx, "old"))
	_, ok, err := s.GetState(ctx, "old", KeyFiles)
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := s.GetUser(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestWithRetryRetriesBusyErrors(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test", 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnOtherErrors(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test", 3, time.Millisecond, func() error {
		calls++
		return errors.New("constraint failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsBusyError(t *testing.T) {
	assert.False(t, IsBusyError(nil))
	assert.True(t, IsBusyError(errors.New("SQLITE_BUSY")))
	assert.True(t, IsBusyError(errors.New("database is locked")))
	assert.False(t, IsBusyError(errors.New("no such table")))
}
