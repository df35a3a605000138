package normalisers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quill/internal/normalisers/html"
	"github.com/custodia-labs/quill/internal/normalisers/plaintext"
)

type upperNormaliser struct{}

func (upperNormaliser) Extensions() []string { return []string{".md"} }

func (upperNormaliser) Normalise(_ string, data []byte) (string, error) {
	return "UPPER:" + string(data), nil
}

func TestRegistry_For(t *testing.T) {
	r := Default()

	tests := []struct {
		path string
		want Normaliser
	}{
		{"notes/a.md", &plaintext.Normaliser{}},
		{"notes/A.MD", &plaintext.Normaliser{}},
		{"page.html", &html.Normaliser{}},
		{"page.HTM", &html.Normaliser{}},
		{"unknown.org", &plaintext.Normaliser{}},
		{"no-extension", &plaintext.Normaliser{}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.IsType(t, tt.want, r.For(tt.path))
		})
	}
}

func TestRegistry_LaterNormaliserWins(t *testing.T) {
	r := NewRegistry(plaintext.New(), upperNormaliser{})

	got, err := r.Normalise("a.md", []byte("x"))

	require.NoError(t, err)
	assert.Equal(t, "UPPER:x", got)
}

func TestRegistry_NormaliseUsesBaseName(t *testing.T) {
	got, err := Default().Normalise("/notes/deep/old-harbor.htm", []byte("<p>Fog.</p>"))

	require.NoError(t, err)
	assert.Equal(t, "# old harbor\n\nFog.", got)
}
