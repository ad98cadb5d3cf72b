package domain

import (
	"path"
	"strings"
)

// NodeKind distinguishes the entries of a project tree.
type NodeKind string

const (
	KindFile   NodeKind = "file"
	KindFolder NodeKind = "folder"
	KindImage  NodeKind = "image"
)

// Valid reports whether k is a known kind.
func (k NodeKind) Valid() bool {
	switch k {
	case KindFile, KindFolder, KindImage:
		return true
	}
	return false
}

// Language is the content-type tag used for highlighting and default content.
type Language string

const (
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangJavaScript Language = "javascript"
	LangJSON       Language = "json"
	LangMarkdown   Language = "markdown"
)

// LanguageForName derives the language tag from a file name's extension.
// Unknown extensions map to markdown.
func LanguageForName(name string) Language {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")) {
	case "js":
		return LangJavaScript
	case "html":
		return LangHTML
	case "css":
		return LangCSS
	case "json":
		return LangJSON
	default:
		return LangMarkdown
	}
}

// DefaultContent returns the starter text for a freshly created file.
func DefaultContent(lang Language) string {
	switch lang {
	case LangJavaScript:
		return "// Novo script\nconsole.log(\"Olá!\");"
	case LangHTML:
		return "<!DOCTYPE html>\n<html>\n<body>\n  <h1>Nova Página</h1>\n</body>\n</html>"
	case LangCSS:
		return "/* Novos estilos */\nbody {\n  background: #000;\n}"
	case LangJSON:
		return "{}"
	default:
		return ""
	}
}

// FileNode is one entry of a project tree. The tree is formed through ParentID
// references; a nil ParentID marks a root-level node.
//
// JSON field names match the records the browser client has always stored.
type FileNode struct {
	ID         string   `json:"id"`
	ParentID   *string  `json:"parentId"`
	Kind       NodeKind `json:"type"`
	Name       string   `json:"name"`
	Language   Language `json:"language"`
	Content    string   `json:"content"`
	IsExpanded bool     `json:"isOpen,omitempty"`
}

// IsRoot reports whether the node sits at the top level.
func (n *FileNode) IsRoot() bool {
	return n.ParentID == nil
}

// ParentKey returns the parent id, or "" for root-level nodes.
func (n *FileNode) ParentKey() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// IsHTML reports whether the node is a text file named *.html.
func (n *FileNode) IsHTML() bool {
	return n.Kind == KindFile && strings.HasSuffix(n.Name, ".html")
}

// Clone returns a copy that shares no pointers with n.
func (n FileNode) Clone() FileNode {
	if n.ParentID != nil {
		p := *n.ParentID
		n.ParentID = &p
	}
	return n
}

// CloneNodes deep-copies a node slice.
func CloneNodes(nodes []FileNode) []FileNode {
	out := make([]FileNode, len(nodes))
	for i := range nodes {
		out[i] = nodes[i].Clone()
	}
	return out
}

// ParentRef converts a parent id to the pointer form used by FileNode.
// The empty string means root.
func ParentRef(parentID string) *string {
	if parentID == "" {
		return nil
	}
	return &parentID
}
