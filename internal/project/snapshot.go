package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/mobilecoder/internal/domain"
)

// SchemaVersion is the version written by EncodeFiles.
//
// Version history:
//   - 0: bare array of {id, name, language, content} records (no hierarchy).
//   - 1: bare array with type and parentId added.
//   - 2: {"version": 2, "nodes": [...]} envelope.
const SchemaVersion = 2

var (
	ErrEmptySnapshot       = errors.New("snapshot holds no nodes")
	ErrUnsupportedSnapshot = errors.New("unsupported snapshot version")
	ErrDuplicateNodeID     = errors.New("duplicate node id")
)

type envelope struct {
	Version int               `json:"version"`
	Nodes   []domain.FileNode `json:"nodes"`
}

// legacyNode accepts every field any earlier client ever wrote.
type legacyNode struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parentId"`
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Language string  `json:"language"`
	Content  string  `json:"content"`
	IsOpen   bool    `json:"isOpen"`
}

// EncodeFiles serializes nodes into the current versioned envelope.
func EncodeFiles(nodes []domain.FileNode) ([]byte, error) {
	if nodes == nil {
		nodes = []domain.FileNode{}
	}
	data, err := json.Marshal(envelope{Version: SchemaVersion, Nodes: nodes})
	if err != nil {
		return nil, fmt.Errorf("encode files: %w", err)
	}
	return data, nil
}

// DecodeFiles parses a stored snapshot of any known version and migrates it to
// the current shape. It returns the version the data was stored with.
func DecodeFiles(raw []byte) ([]domain.FileNode, int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, 0, ErrEmptySnapshot
	}

	var (
		nodes   []domain.FileNode
		version int
	)
	switch raw[0] {
	case '[':
		var legacy []legacyNode
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, 0, fmt.Errorf("decode legacy snapshot: %w", err)
		}
		version = 1
		if len(legacy) > 0 && legacy[0].Type == "" {
			version = 0
		}
		nodes = migrateLegacy(legacy)
	case '{':
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, 0, fmt.Errorf("decode snapshot: %w", err)
		}
		if env.Version != SchemaVersion {
			return nil, env.Version, fmt.Errorf("%w: %d", ErrUnsupportedSnapshot, env.Version)
		}
		version = env.Version
		nodes = env.Nodes
	default:
		return nil, 0, fmt.Errorf("decode snapshot: unexpected leading byte %q", raw[0])
	}

	if len(nodes) == 0 {
		return nil, version, ErrEmptySnapshot
	}
	if err := normalize(nodes); err != nil {
		return nil, version, err
	}
	return nodes, version, nil
}

// MigrateFiles rewrites a stored snapshot of any known version in the current schema.
func MigrateFiles(raw []byte) ([]byte, error) {
	nodes, _, err := DecodeFiles(raw)
	if err != nil {
		return nil, err
	}
	return EncodeFiles(nodes)
}

func migrateLegacy(legacy []legacyNode) []domain.FileNode {
	nodes := make([]domain.FileNode, 0, len(legacy))
	for _, l := range legacy {
		n := domain.FileNode{
			ID:         l.ID,
			ParentID:   l.ParentID,
			Kind:       domain.NodeKind(l.Type),
			Name:       l.Name,
			Language:   domain.Language(l.Language),
			Content:    l.Content,
			IsExpanded: l.IsOpen,
		}
		if l.Type == "" {
			// Records written before folders existed are all root-level files.
			n.Kind = domain.KindFile
			n.ParentID = nil
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// normalize fills defaults and repairs references in place.
func normalize(nodes []domain.FileNode) error {
	seen := make(map[string]domain.NodeKind, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if n.ID == "" {
			n.ID = domain.NewID()
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
		}
		if !n.Kind.Valid() {
			n.Kind = domain.KindFile
		}
		if n.Language == "" {
			n.Language = domain.LanguageForName(n.Name)
		}
		if n.ParentID != nil && *n.ParentID == "" {
			n.ParentID = nil
		}
		seen[n.ID] = n.Kind
	}

	for i := range nodes {
		n := &nodes[i]
		if n.ParentID == nil {
			continue
		}
		if kind, ok := seen[*n.ParentID]; !ok || kind != domain.KindFolder || *n.ParentID == n.ID {
			slog.Warn("Reattaching node with dangling parent to root", "node_id", n.ID, "parent_id", *n.ParentID)
			n.ParentID = nil
		}
	}
	return nil
}
