package project

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/store"
)

// Registry lazily loads one Store per device.
type Registry struct {
	repo store.StateStore

	mu     sync.Mutex
	stores map[string]*Store

	hookMu   sync.RWMutex
	onChange func(userID string)
}

// NewRegistry creates a registry backed by repo.
func NewRegistry(repo store.StateStore) *Registry {
	return &Registry{
		repo:   repo,
		stores: make(map[string]*Store),
	}
}

// OnChange registers fn to run after any workspace mutation.
func (r *Registry) OnChange(fn func(userID string)) {
	r.hookMu.Lock()
	r.onChange = fn
	r.hookMu.Unlock()
}

func (r *Registry) notify(userID string) {
	r.hookMu.RLock()
	fn := r.onChange
	r.hookMu.RUnlock()
	if fn != nil {
		fn(userID)
	}
}

// Get returns the device's store, loading it on first use.
func (r *Registry) Get(ctx context.Context, userID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[userID]; ok {
		return s, nil
	}
	s, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.OnChange(func() { r.notify(userID) })
	r.stores[userID] = s
	return s, nil
}

// Navigate applies a preview navigation for the device's workspace.
func (r *Registry) Navigate(ctx context.Context, userID, linkPath string) (domain.FileNode, bool, error) {
	s, err := r.Get(ctx, userID)
	if err != nil {
		return domain.FileNode{}, false, err
	}
	return s.Navigate(ctx, linkPath)
}

// Evict drops the cached store for userID.
func (r *Registry) Evict(userID string) {
	r.mu.Lock()
	delete(r.stores, userID)
	r.mu.Unlock()
}

func (r *Registry) load(ctx context.Context, userID string) (*Store, error) {
	p := &statePersister{repo: r.repo, userID: userID}

	raw, ok, err := r.repo.GetState(ctx, userID, store.KeyFiles)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}
	if !ok {
		return New(domain.DefaultProject(), "", p), nil
	}

	nodes, version, err := DecodeFiles([]byte(raw))
	if err != nil {
		slog.Error("Failed to decode stored project, using default", "user_id", userID, "error", err)
		return New(domain.DefaultProject(), "", p), nil
	}
	if version != SchemaVersion {
		slog.Info("Migrated stored project", "user_id", userID, "from_version", version, "to_version", SchemaVersion)
		if err := p.SaveFiles(ctx, nodes); err != nil {
			slog.Warn("Failed to persist migrated project", "user_id", userID, "error", err)
		}
	}

	var activeID string
	if rawActive, ok, err := r.repo.GetState(ctx, userID, store.KeyActiveID); err != nil {
		return nil, fmt.Errorf("load active id: %w", err)
	} else if ok {
		activeID = decodeActiveID(userID, rawActive)
	}
	return New(nodes, activeID, p), nil
}

// decodeActiveID accepts the JSON string written by SaveActive and the bare id
// older clients stored.
func decodeActiveID(userID, raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, `"`) {
		return raw
	}
	var id string
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		slog.Warn("Ignoring malformed active id", "user_id", userID, "error", err)
		return ""
	}
	return id
}

type statePersister struct {
	repo   store.StateStore
	userID string
}

func (p *statePersister) SaveFiles(ctx context.Context, nodes []domain.FileNode) error {
	data, err := EncodeFiles(nodes)
	if err != nil {
		return err
	}
	return p.repo.PutState(ctx, p.userID, store.KeyFiles, string(data))
}

func (p *statePersister) SaveActive(ctx context.Context, id string) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode active id: %w", err)
	}
	return p.repo.PutState(ctx, p.userID, store.KeyActiveID, string(data))
}
