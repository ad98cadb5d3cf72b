package reaper

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/store"
)

func seedUser(t *testing.T, repo store.Repository, id string, lastSeen time.Time) {
	t.Helper()
	require.NoError(t, repo.UpsertUser(context.Background(), &domain.User{
		UserID: id, LastSeenAt: lastSeen, CreatedAt: lastSeen, UpdatedAt: lastSeen,
	}))
	require.NoError(t, repo.PutState(context.Background(), id, store.KeyActiveID, `"x"`))
}

func TestSweepDeletesIdleWorkspaces(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "reaper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	now := time.Now().UTC()
	seedUser(t, repo, "stale", now.Add(-48*time.Hour))
	seedUser(t, repo, "fresh", now)

	var cleaned []string
	n := Sweep(context.Background(), repo, 24*time.Hour, func(userID string) {
		cleaned = append(cleaned, userID)
	})

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"stale"}, cleaned)

	_, ok, err := repo.GetState(context.Background(), "stale", store.KeyActiveID)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = repo.GetState(context.Background(), "fresh", store.KeyActiveID)
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingRepo struct {
	users     []domain.User
	listErr   error
	deleteErr map[string]error
	deleted   []string
}

func (f *failingRepo) IdleUsers(context.Context, time.Duration) ([]domain.User, error) {
	return f.users, f.listErr
}

func (f *failingRepo) DeleteUser(_ context.Context, userID string) error {
	if err := f.deleteErr[userID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, userID)
	return nil
}

func TestSweepSkipsFailedDeletes(t *testing.T) {
	repo := &failingRepo{
		users:     []domain.User{{UserID: "a"}, {UserID: "b"}},
		deleteErr: map[string]error{"a": errors.New("database is locked")},
	}
	var cleaned []string
	n := Sweep(context.Background(), repo, time.Hour, func(id string) { cleaned = append(cleaned, id) })
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"b"}, cleaned)
}

func TestSweepListError(t *testing.T) {
	repo := &failingRepo{listErr: errors.New("boom")}
	assert.Equal(t, 0, Sweep(context.Background(), repo, time.Hour, nil))
}

func TestStartTTLWorkerDisabled(t *testing.T) {
	// Must return without starting anything.
	StartTTLWorker(context.Background(), &failingRepo{}, 0, nil)
}
