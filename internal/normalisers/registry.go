package normalisers

import (
	"path/filepath"
	"strings"

	"github.com/custodia-labs/quill/internal/normalisers/html"
	"github.com/custodia-labs/quill/internal/normalisers/plaintext"
)

// Normaliser converts a file's bytes into article text.
type Normaliser interface {
	// Extensions lists the lower-case extensions, with leading dot, it handles.
	Extensions() []string

	// Normalise returns the article text for data. name is the file's base name.
	Normalise(name string, data []byte) (string, error)
}

// Registry picks a normaliser by file extension.
type Registry struct {
	byExt    map[string]Normaliser
	fallback Normaliser
}

// NewRegistry registers ns in order; a later normaliser wins an extension.
// Unknown extensions fall back to plain text.
func NewRegistry(ns ...Normaliser) *Registry {
	r := &Registry{
		byExt:    make(map[string]Normaliser),
		fallback: plaintext.New(),
	}
	for _, n := range ns {
		for _, ext := range n.Extensions() {
			r.byExt[strings.ToLower(ext)] = n
		}
	}
	return r
}

// Default handles markdown, text and HTML.
func Default() *Registry {
	return NewRegistry(plaintext.New(), html.New())
}

// For returns the normaliser for path.
func (r *Registry) For(path string) Normaliser {
	if n, ok := r.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return n
	}
	return r.fallback
}

// Normalise converts the content of the file at path.
func (r *Registry) Normalise(path string, data []byte) (string, error) {
	return r.For(path).Normalise(filepath.Base(path), data)
}
