// Package project implements the per-workspace file entity store.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/metrics"
)

var (
	ErrNameCollision  = errors.New("a sibling with that name already exists")
	ErrNodeNotFound   = errors.New("node not found")
	ErrParentNotFound = errors.New("parent not found")
	ErrNotAFolder     = errors.New("parent is not a folder")
	ErrInvalidName    = errors.New("invalid node name")
	ErrInvalidKind    = errors.New("invalid node kind")
	ErrIsFolder       = errors.New("folders have no content")
	ErrEmptyImage     = errors.New("image payload is empty")
)

// Persister writes the store's state through to durable storage.
type Persister interface {
	SaveFiles(ctx context.Context, nodes []domain.FileNode) error
	SaveActive(ctx context.Context, id string) error
}

// Store holds one workspace's nodes and active selection.
// Every mutation builds a new node slice, persists it, then swaps it in;
// a failed write leaves the store untouched.
type Store struct {
	mu       sync.Mutex
	tree     *arena
	activeID string
	persist  Persister
	onChange func()
}

// New creates a store over nodes. An empty slice yields the empty-project file.
// activeID falls back to the first node when it names nothing.
func New(nodes []domain.FileNode, activeID string, persist Persister) *Store {
	if len(nodes) == 0 {
		nodes = []domain.FileNode{domain.EmptyProjectFile()}
	}
	tree := newArena(domain.CloneNodes(nodes))
	if _, ok := tree.get(activeID); !ok {
		activeID = tree.nodes[0].ID
	}
	return &Store{tree: tree, activeID: activeID, persist: persist}
}

// OnChange registers fn to run after every successful mutation, outside the lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// mutation computes the next node slice and active id from the current tree.
// Returning nil nodes means nothing changed.
type mutation func(t *arena, activeID string) (next []domain.FileNode, nextActive string, err error)

func (s *Store) mutate(ctx context.Context, op string, fn mutation) error {
	s.mu.Lock()
	next, nextActive, err := fn(s.tree, s.activeID)
	if err == nil && next != nil {
		err = s.commit(ctx, next, nextActive)
	}
	notify := s.onChange
	s.mu.Unlock()

	metrics.RecordStoreMutation(op, err)
	if err != nil {
		return err
	}
	if next != nil && notify != nil {
		notify()
	}
	return nil
}

// commit must be called with s.mu held.
func (s *Store) commit(ctx context.Context, next []domain.FileNode, nextActive string) error {
	if s.persist != nil {
		if err := s.persist.SaveFiles(ctx, next); err != nil {
			return fmt.Errorf("save files: %w", err)
		}
		if nextActive != s.activeID {
			if err := s.persist.SaveActive(ctx, nextActive); err != nil {
				slog.Warn("Failed to persist active node", "node_id", nextActive, "error", err)
			}
		}
	}
	s.tree = newArena(next)
	s.activeID = nextActive
	return nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return "", ErrInvalidName
	}
	return name, nil
}

// Create adds a node under parentID ("" for root). Files without content get the
// language's starter text. Files and images become the active node.
func (s *Store) Create(ctx context.Context, kind domain.NodeKind, name, parentID, content string) (domain.FileNode, error) {
	if !kind.Valid() {
		return domain.FileNode{}, ErrInvalidKind
	}
	name, err := validName(name)
	if err != nil {
		return domain.FileNode{}, err
	}
	if kind == domain.KindImage && content == "" {
		return domain.FileNode{}, ErrEmptyImage
	}

	node := domain.FileNode{
		ID:       domain.NewID(),
		ParentID: domain.ParentRef(parentID),
		Kind:     kind,
		Name:     name,
		Language: domain.LangMarkdown,
	}
	switch kind {
	case domain.KindFile:
		node.Language = domain.LanguageForName(name)
		node.Content = content
		if node.Content == "" {
			node.Content = domain.DefaultContent(node.Language)
		}
	case domain.KindImage:
		node.Content = content
	case domain.KindFolder:
		node.IsExpanded = true
	}

	err = s.mutate(ctx, "create", func(t *arena, activeID string) ([]domain.FileNode, string, error) {
		if parentID != "" {
			parent, ok := t.get(parentID)
			if !ok {
				return nil, "", ErrParentNotFound
			}
			if parent.Kind != domain.KindFolder {
				return nil, "", ErrNotAFolder
			}
		}
		if t.hasSiblingNamed(parentID, name) {
			return nil, "", ErrNameCollision
		}
		next := append(domain.CloneNodes(t.nodes), node)
		if kind != domain.KindFolder {
			activeID = node.ID
		}
		return next, activeID, nil
	})
	if err != nil {
		return domain.FileNode{}, err
	}
	return node.Clone(), nil
}

// Delete removes id and all of its descendants. Deleting the last node leaves a
// single empty-project index.html.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete", func(t *arena, activeID string) ([]domain.FileNode, string, error) {
		if _, ok := t.get(id); !ok {
			return nil, "", ErrNodeNotFound
		}
		doomed := t.closure(id)
		next := make([]domain.FileNode, 0, len(t.nodes))
		for _, n := range t.nodes {
			if _, gone := doomed[n.ID]; !gone {
				next = append(next, n.Clone())
			}
		}

		if len(next) == 0 {
			f := domain.EmptyProjectFile()
			return []domain.FileNode{f}, f.ID, nil
		}
		if _, gone := doomed[activeID]; gone {
			activeID = next[0].ID
			for _, n := range next {
				if n.Kind == domain.KindFile {
					activeID = n.ID
					break
				}
			}
		}
		return next, activeID, nil
	})
}

// ToggleFolder flips a folder's expanded flag. Other kinds are left alone.
func (s *Store) ToggleFolder(ctx context.Context, id string) error {
	return s.mutate(ctx, "toggle", func(t *arena, activeID string) ([]domain.FileNode, string, error) {
		n, ok := t.get(id)
		if !ok {
			return nil, "", ErrNodeNotFound
		}
		if n.Kind != domain.KindFolder {
			return nil, activeID, nil
		}
		next := domain.CloneNodes(t.nodes)
		i := t.byID[id]
		next[i].IsExpanded = !next[i].IsExpanded
		return next, activeID, nil
	})
}

// Update replaces a file's or image's content as-is.
func (s *Store) Update(ctx context.Context, id, content string) error {
	return s.mutate(ctx, "update", func(t *arena, activeID string) ([]domain.FileNode, string, error) {
		n, ok := t.get(id)
		if !ok {
			return nil, "", ErrNodeNotFound
		}
		if n.Kind == domain.KindFolder {
			return nil, "", ErrIsFolder
		}
		next := domain.CloneNodes(t.nodes)
		next[t.byID[id]].Content = content
		return next, activeID, nil
	})
}

// Select makes id the active node.
func (s *Store) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.tree.get(id); !ok {
		s.mu.Unlock()
		return ErrNodeNotFound
	}
	if id == s.activeID {
		s.mu.Unlock()
		return nil
	}
	if s.persist != nil {
		if err := s.persist.SaveActive(ctx, id); err != nil {
			s.mu.Unlock()
			metrics.RecordStoreMutation("select", err)
			return fmt.Errorf("save active: %w", err)
		}
	}
	s.activeID = id
	notify := s.onChange
	s.mu.Unlock()

	metrics.RecordStoreMutation("select", nil)
	if notify != nil {
		notify()
	}
	return nil
}

// Navigate resolves a link path from the preview by matching its final segment
// against node names, and selects the first match.
func (s *Store) Navigate(ctx context.Context, linkPath string) (domain.FileNode, bool, error) {
	target := linkPath
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	target = target[strings.LastIndex(target, "/")+1:]
	if target == "" {
		return domain.FileNode{}, false, nil
	}

	s.mu.Lock()
	var match *domain.FileNode
	for i := range s.tree.nodes {
		if s.tree.nodes[i].Name == target {
			m := s.tree.nodes[i].Clone()
			match = &m
			break
		}
	}
	s.mu.Unlock()

	if match == nil {
		return domain.FileNode{}, false, nil
	}
	if err := s.Select(ctx, match.ID); err != nil && !errors.Is(err, ErrNodeNotFound) {
		return domain.FileNode{}, false, err
	}
	return *match, true, nil
}

// Nodes returns a copy of every node in insertion order.
func (s *Store) Nodes() []domain.FileNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneNodes(s.tree.nodes)
}

// Snapshot returns a copy of the nodes together with the active id.
func (s *Store) Snapshot() ([]domain.FileNode, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneNodes(s.tree.nodes), s.activeID
}

// ActiveID returns the id of the active node.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Active returns the active node, or the first node if the selection is stale.
func (s *Store) Active() domain.FileNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.tree.get(s.activeID); ok {
		return n.Clone()
	}
	return s.tree.nodes[0].Clone()
}

// Get returns the node with id.
func (s *Store) Get(id string) (domain.FileNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.tree.get(id)
	if !ok {
		return domain.FileNode{}, false
	}
	return n.Clone(), true
}

// Children lists the direct children of parentID ("" for root), folders first then by name.
func (s *Store) Children(parentID string) []domain.FileNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.sortedChildren(parentID)
}

// Path returns the slash-joined names from the root down to id.
func (s *Store) Path(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tree.get(id); !ok {
		return "", ErrNodeNotFound
	}
	return s.tree.path(id), nil
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tree.nodes)
}
