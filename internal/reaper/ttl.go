// Package reaper deletes workspaces whose device has been idle past a TTL.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/store"
)

const ttlWorkerInterval = 5 * time.Minute

// Repository is the subset of store.Repository the reaper needs.
type Repository interface {
	IdleUsers(ctx context.Context, ttl time.Duration) ([]domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

var _ Repository = (store.Repository)(nil)

// CleanupCallback is called after a device's workspace has been deleted.
type CleanupCallback func(userID string)

// StartTTLWorker runs a background goroutine that periodically deletes idle
// workspaces. A non-positive ttl disables it.
func StartTTLWorker(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) {
	if ttl <= 0 {
		slog.Info("TTL worker disabled")
		return
	}
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep deletes every workspace idle for longer than ttl and returns how many were removed.
func Sweep(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) int {
	idle, err := repo.IdleUsers(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to list idle workspaces", "error", err)
		return 0
	}
	if len(idle) == 0 {
		return 0
	}

	slog.Info("TTL worker found idle workspaces", "count", len(idle))

	cleaned := 0
	for _, user := range idle {
		if ctx.Err() != nil {
			slog.Debug("TTL worker interrupted, cleanup incomplete", "cleaned", cleaned)
			return cleaned
		}
		if err := repo.DeleteUser(ctx, user.UserID); err != nil {
			slog.Warn("TTL worker failed to delete workspace",
				"error", err,
				"user_id", user.UserID,
				"idle_for", user.IdleFor(time.Now()))
			continue
		}
		cleaned++
		if onCleanup != nil {
			onCleanup(user.UserID)
		}
	}

	slog.Info("TTL worker cleanup completed", "cleaned", cleaned)
	return cleaned
}
