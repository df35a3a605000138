package plaintext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensions(t *testing.T) {
	exts := New().Extensions()
	assert.Contains(t, exts, ".md")
	assert.Contains(t, exts, ".txt")
}

func TestNormalise(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unchanged", "---\ntype: character\n---\n# Ada\n\nText.", "---\ntype: character\n---\n# Ada\n\nText."},
		{"byte order mark", "\uFEFF# Title", "# Title"},
		{"crlf", "a\r\n\r\nb", "a\n\nb"},
		{"bare cr", "a\rb", "a\nb"},
		{"invalid utf-8", "a\xffb", "a\uFFFDb"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Normalise("notes.md", []byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
