// Package plaintext normalises markdown and text files.
package plaintext

import (
	"strings"
)

const bom = "\uFEFF"

// Normaliser cleans up text files without changing their structure, so
// front matter and headings reach the pipeline intact.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".md", ".markdown", ".txt", ".text"}
}

// Normalise strips a byte order mark, converts CRLF and CR line endings to
// LF and replaces invalid UTF-8.
func (n *Normaliser) Normalise(_ string, data []byte) (string, error) {
	s := strings.ToValidUTF8(string(data), "\uFFFD")
	s = strings.TrimPrefix(s, bom)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s, nil
}
