package project

import (
	"sort"
	"strings"

	"github.com/ashureev/mobilecoder/internal/domain"
)

// arena indexes an immutable node slice. Mutations build a new arena.
type arena struct {
	nodes    []domain.FileNode
	byID     map[string]int
	children map[string][]int // parent id ("" for root) -> indexes in nodes
}

func newArena(nodes []domain.FileNode) *arena {
	a := &arena{
		nodes:    nodes,
		byID:     make(map[string]int, len(nodes)),
		children: make(map[string][]int),
	}
	for i := range nodes {
		a.byID[nodes[i].ID] = i
		key := nodes[i].ParentKey()
		a.children[key] = append(a.children[key], i)
	}
	return a
}

func (a *arena) get(id string) (*domain.FileNode, bool) {
	i, ok := a.byID[id]
	if !ok {
		return nil, false
	}
	return &a.nodes[i], true
}

func (a *arena) hasSiblingNamed(parentID, name string) bool {
	for _, i := range a.children[parentID] {
		if a.nodes[i].Name == name {
			return true
		}
	}
	return false
}

// closure returns id and every transitive descendant of it.
func (a *arena) closure(id string) map[string]struct{} {
	doomed := map[string]struct{}{id: {}}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, i := range a.children[cur] {
			child := a.nodes[i].ID
			if _, seen := doomed[child]; seen {
				continue
			}
			doomed[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	return doomed
}

// path joins the names from the root down to id with "/".
func (a *arena) path(id string) string {
	n, ok := a.get(id)
	if !ok {
		return ""
	}
	parts := []string{n.Name}
	for hops := 0; n.ParentID != nil && hops < len(a.nodes); hops++ {
		parent, ok := a.get(*n.ParentID)
		if !ok {
			break
		}
		parts = append(parts, parent.Name)
		n = parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// sortedChildren lists parentID's children with folders first, then by name.
func (a *arena) sortedChildren(parentID string) []domain.FileNode {
	idx := a.children[parentID]
	out := make([]domain.FileNode, 0, len(idx))
	for _, i := range idx {
		out = append(out, a.nodes[i].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		fi, fj := out[i].Kind == domain.KindFolder, out[j].Kind == domain.KindFolder
		if fi != fj {
			return fi
		}
		return out[i].Name < out[j].Name
	})
	return out
}
