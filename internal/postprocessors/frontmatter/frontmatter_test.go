package frontmatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantMeta string
		wantBody string
		wantOK   bool
	}{
		{
			name:     "no front matter",
			content:  "# Title\n\nBody.",
			wantBody: "# Title\n\nBody.",
		},
		{
			name:     "simple block",
			content:  "---\ntype: character\n---\nBody.",
			wantMeta: "type: character\n",
			wantBody: "Body.",
			wantOK:   true,
		},
		{
			name:     "crlf line endings",
			content:  "---\r\nname: Ada\r\n---\r\nBody.\r\n",
			wantMeta: "name: Ada\n",
			wantBody: "Body.\n",
			wantOK:   true,
		},
		{
			name:     "empty block",
			content:  "---\n---\nBody.",
			wantBody: "Body.",
			wantOK:   true,
		},
		{
			name:     "closing fence at end of input",
			content:  "---\ntype: setting\n---",
			wantMeta: "type: setting\n",
			wantOK:   true,
		},
		{
			name:     "unclosed block is body",
			content:  "---\ntype: setting\nBody.",
			wantBody: "---\ntype: setting\nBody.",
		},
		{
			name:     "byte order mark",
			content:  "\ufeff---\na: b\n---\nx",
			wantMeta: "a: b\n",
			wantBody: "x",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, body, ok := Split(tt.content)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMeta, meta)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}
