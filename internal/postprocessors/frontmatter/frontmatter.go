// Package frontmatter separates a leading YAML front-matter block from markdown.
package frontmatter

import "strings"

const fence = "---"

// Normalise strips a byte-order mark and converts CRLF line endings to LF.
func Normalise(content string) string {
	content = strings.TrimPrefix(content, "\ufeff")
	return strings.ReplaceAll(content, "\r\n", "\n")
}

// Split returns the front-matter text and the remaining body.
// ok is false when content does not open with a closed "---" block,
// in which case body is the whole (normalised) content.
func Split(content string) (meta, body string, ok bool) {
	s := Normalise(content)
	if !strings.HasPrefix(s, fence+"\n") {
		return "", s, false
	}

	rest := s[len(fence)+1:]
	offset := 0
	for {
		nl := strings.IndexByte(rest[offset:], '\n')
		line := rest[offset:]
		if nl >= 0 {
			line = rest[offset : offset+nl]
		}

		if strings.TrimRight(line, " \t") == fence {
			meta = rest[:offset]
			if nl < 0 {
				return meta, "", true
			}
			return meta, rest[offset+nl+1:], true
		}

		if nl < 0 {
			return "", s, false
		}
		offset += nl + 1
	}
}
