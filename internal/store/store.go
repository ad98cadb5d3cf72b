// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/mobilecoder/internal/domain"
)

// Workspace state keys. Each key holds one JSON-encoded value per device.
const (
	KeyFiles    = "files"
	KeyActiveID = "active_id"
	KeyChat     = "chat"
	KeyPersona  = "persona"
)

// StateStore reads and writes whole workspace values by key.
type StateStore interface {
	// GetState returns the stored value for key. ok is false when nothing is stored.
	GetState(ctx context.Context, userID, key string) (value string, ok bool, err error)

	// PutState overwrites the value for key.
	PutState(ctx context.Context, userID, key, value string) error
}

// Repository defines the interface for persisting devices and their workspaces.
type Repository interface {
	StateStore

	// GetUser retrieves a device record by id.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a device record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a device.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// IdleUsers lists devices idle for longer than ttl.
	IdleUsers(ctx context.Context, ttl time.Duration) ([]domain.User, error)

	// DeleteUser removes a device and its workspace.
	DeleteUser(ctx context.Context, userID string) error

	// DeleteIdleUsers removes devices (and their workspaces) idle for longer than ttl.
	DeleteIdleUsers(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
