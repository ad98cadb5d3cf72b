// Package preview assembles a self-contained HTML document from a project's
// files for display in a sandboxed frame.
package preview

import (
	"bytes"
	"encoding/base64"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/metrics"
)

// PlaceholderHTML is served when the project has no HTML file to show.
const PlaceholderHTML = `<html><body style="background:#0f0f11;color:#666;font-family:sans-serif;display:flex;justify-content:center;align-items:center;height:100vh;"><div>Nenhum arquivo HTML para pré-visualizar.</div></body></html>`

// Document is a composed preview.
type Document struct {
	HTML string
	// EntryID is the HTML file the document was built from; empty for the placeholder.
	EntryID   string
	EntryName string
}

// IsPlaceholder reports whether no entry file was found.
func (d Document) IsPlaceholder() bool {
	return d.EntryID == ""
}

// DataURL returns the document as a base64 data URL.
func (d Document) DataURL() string {
	return "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(d.HTML))
}

// Compose builds the preview document for nodes with activeID selected.
func Compose(nodes []domain.FileNode, activeID string) Document {
	start := time.Now()
	doc := compose(nodes, activeID)
	metrics.RecordCompose(time.Since(start), doc.IsPlaceholder())
	return doc
}

func compose(nodes []domain.FileNode, activeID string) Document {
	entry, ok := SelectEntry(nodes, activeID)
	if !ok {
		return Document{HTML: PlaceholderHTML}
	}
	return Document{
		HTML:      Rewrite(entry.Content, BuildPathTable(nodes)),
		EntryID:   entry.ID,
		EntryName: entry.Name,
	}
}

// SelectEntry picks the HTML file to render: the active node if it is an HTML
// file, else a root-level index.html, else the first HTML file.
func SelectEntry(nodes []domain.FileNode, activeID string) (domain.FileNode, bool) {
	for i := range nodes {
		if nodes[i].ID == activeID && nodes[i].IsHTML() {
			return nodes[i], true
		}
	}
	for i := range nodes {
		if nodes[i].IsRoot() && nodes[i].Kind == domain.KindFile && nodes[i].Name == "index.html" {
			return nodes[i], true
		}
	}
	for i := range nodes {
		if nodes[i].IsHTML() {
			return nodes[i], true
		}
	}
	return domain.FileNode{}, false
}

// PathTable maps every spelling of a node's full path ("a/b", "/a/b", "./a/b") to the node.
type PathTable map[string]domain.FileNode

// BuildPathTable indexes nodes by full path. Later nodes win on duplicate paths.
func BuildPathTable(nodes []domain.FileNode) PathTable {
	byID := make(map[string]int, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = i
	}

	table := make(PathTable, len(nodes)*3)
	for i := range nodes {
		full := nodes[i].Name
		cur := nodes[i]
		for hops := 0; cur.ParentID != nil && hops < len(nodes); hops++ {
			j, ok := byID[*cur.ParentID]
			if !ok {
				break
			}
			cur = nodes[j]
			full = cur.Name + "/" + full
		}
		table[full] = nodes[i]
		table["/"+full] = nodes[i]
		table["./"+full] = nodes[i]
	}
	return table
}

// Resolve looks ref up as written, then with a leading slash.
func (t PathTable) Resolve(ref string) (domain.FileNode, bool) {
	if n, ok := t[ref]; ok {
		return n, true
	}
	n, ok := t["/"+ref]
	return n, ok
}

func (t PathTable) stylesheet(ref string) (domain.FileNode, bool) {
	n, ok := t.Resolve(ref)
	return n, ok && n.Kind == domain.KindFile && strings.HasSuffix(n.Name, ".css")
}

func (t PathTable) script(ref string) (domain.FileNode, bool) {
	n, ok := t.Resolve(ref)
	return n, ok && n.Kind == domain.KindFile && strings.HasSuffix(n.Name, ".js")
}

func (t PathTable) image(ref string) (domain.FileNode, bool) {
	n, ok := t.Resolve(ref)
	return n, ok && n.Kind == domain.KindImage
}

// Rewrite inlines resolvable stylesheet, script and image references and
// injects the navigation script. Everything else is copied byte for byte.
func Rewrite(src string, table PathTable) string {
	var out bytes.Buffer
	out.Grow(len(src) + len(NavigationScript))

	z := html.NewTokenizer(strings.NewReader(src))
	injected := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF; a truncated trailing tag is kept as-is.
			out.Write(z.Raw())
			break
		}

		raw := z.Raw()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			rawCopy := append([]byte(nil), raw...)
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Link:
				if n, ok := table.stylesheet(attr(tok, "href")); ok {
					out.WriteString("<style>")
					out.WriteString(n.Content)
					out.WriteString("</style>")
					continue
				}
			case atom.Script:
				if n, ok := table.script(attr(tok, "src")); ok {
					skipToEndTag(z, atom.Script)
					out.WriteString("<script>")
					out.WriteString(n.Content)
					out.WriteString("</script>")
					continue
				}
			case atom.Img:
				if n, ok := table.image(attr(tok, "src")); ok {
					setAttr(&tok, "src", n.Content)
					out.WriteString(tok.String())
					continue
				}
			}
			out.Write(rawCopy)
		case html.EndTagToken:
			if !injected {
				if name, _ := z.TagName(); atom.Lookup(name) == atom.Body {
					out.WriteString(NavigationScript)
					injected = true
				}
			}
			out.Write(raw)
		default:
			out.Write(raw)
		}
	}

	if !injected {
		out.WriteString(NavigationScript)
	}
	return out.String()
}

// skipToEndTag discards tokens up to and including the closing tag a.
func skipToEndTag(z *html.Tokenizer, a atom.Atom) {
	for {
		switch z.Next() {
		case html.ErrorToken:
			return
		case html.EndTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == a {
				return
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(tok *html.Token, key, val string) {
	for i := range tok.Attr {
		if tok.Attr[i].Namespace == "" && tok.Attr[i].Key == key {
			tok.Attr[i].Val = val
			return
		}
	}
}
