package preview

import (
	"errors"
	"net/url"
	"strings"
)

// NavigateKind tags a link click reported by the preview frame.
const NavigateKind = "PREVIEW_NAVIGATE"

// MaxNavigatePath bounds the path carried by a navigation message.
const MaxNavigatePath = 1024

var (
	ErrUnknownMessage = errors.New("unknown preview message")
	ErrEmptyPath      = errors.New("navigation path is empty")
	ErrPathTooLong    = errors.New("navigation path too long")
	ErrExternalPath   = errors.New("navigation path is an absolute URL")
)

// NavigateMessage is posted by the preview frame when a relative link is clicked.
type NavigateMessage struct {
	Kind string `json:"type"`
	Path string `json:"path"`
}

// Validate checks the message shape. External links never reach the host:
// the navigation script opens them in a new tab.
func (m NavigateMessage) Validate() error {
	if m.Kind != NavigateKind {
		return ErrUnknownMessage
	}
	p := strings.TrimSpace(m.Path)
	if p == "" {
		return ErrEmptyPath
	}
	if len(p) > MaxNavigatePath {
		return ErrPathTooLong
	}
	if strings.HasPrefix(p, "//") {
		return ErrExternalPath
	}
	if u, err := url.Parse(p); err != nil || u.Scheme != "" {
		return ErrExternalPath
	}
	return nil
}

// NavigationScript intercepts link clicks inside the preview frame.
const NavigationScript = `
<script>
  document.addEventListener('click', function(e) {
    var link = e.target.closest('a');
    if (!link) return;
    var href = link.getAttribute('href');
    if (!href) return;
    if (href.startsWith('#') || href.startsWith('javascript:')) return;
    if (href.startsWith('http://') || href.startsWith('https://') || href.startsWith('mailto:') || href.startsWith('tel:')) {
      e.preventDefault();
      window.open(href, '_blank');
      return;
    }
    e.preventDefault();
    window.parent.postMessage({ type: 'PREVIEW_NAVIGATE', path: href }, '*');
  });
</script>
`
