package preview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNavigateMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  NavigateMessage
		want error
	}{
		{"relative", NavigateMessage{Kind: NavigateKind, Path: "about.html"}, nil},
		{"rooted", NavigateMessage{Kind: NavigateKind, Path: "/pages/about.html"}, nil},
		{"wrong kind", NavigateMessage{Kind: "RELOAD", Path: "a.html"}, ErrUnknownMessage},
		{"blank", NavigateMessage{Kind: NavigateKind, Path: "  "}, ErrEmptyPath},
		{"too long", NavigateMessage{Kind: NavigateKind, Path: strings.Repeat("a", MaxNavigatePath+1)}, ErrPathTooLong},
		{"http", NavigateMessage{Kind: NavigateKind, Path: "https://example.com"}, ErrExternalPath},
		{"scheme relative", NavigateMessage{Kind: NavigateKind, Path: "//example.com/x"}, ErrExternalPath},
		{"javascript", NavigateMessage{Kind: NavigateKind, Path: "javascript:alert(1)"}, ErrExternalPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
