// Package html converts HTML pages to markdown-like article text.
package html

import (
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

// Normalise strips markup and returns one paragraph per block element.
// Headings become markdown headings and the page title, when present and
// not already the first heading, becomes a level one heading.
func (n *Normaliser) Normalise(name string, data []byte) (string, error) {
	raw := strings.ToValidUTF8(string(data), "\uFFFD")

	title := extractTitle(raw, name)
	body := stripHTML(raw)

	if title == "" || strings.HasPrefix(body, "# "+title+"\n") || body == "# "+title {
		return body, nil
	}
	if body == "" {
		return "# " + title, nil
	}
	return "# " + title + "\n\n" + body, nil
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	headingOpen       = regexp.MustCompile(`(?i)<h([1-6])[^>]*>`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|li|tr|blockquote|pre|table|section|article)(\s[^>]*)?>`)
	brTags            = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTags            = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	whitespace        = regexp.MustCompile(`\s+`)
)

// extractTitle returns the <title> text or, failing that, a title made from
// the file name.
func extractTitle(content, name string) string {
	if m := titleTag.FindStringSubmatch(content); len(m) > 1 {
		title := whitespace.ReplaceAllString(html.UnescapeString(m[1]), " ")
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}

	if name == "" {
		return ""
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return strings.TrimSpace(base)
}

// stripHTML removes tags and returns the readable text with block elements
// separated by blank lines.
func stripHTML(content string) string {
	for _, re := range []*regexp.Regexp{titleTag, scriptTag, styleTag, noscriptTag, headTag, svgTag, htmlComments} {
		content = re.ReplaceAllString(content, "")
	}

	// Source line breaks are insignificant outside block boundaries.
	content = whitespace.ReplaceAllString(content, " ")

	content = headingOpen.ReplaceAllStringFunc(content, func(tag string) string {
		level := int(headingOpen.FindStringSubmatch(tag)[1][0] - '0')
		return fmt.Sprintf("\n%s ", strings.Repeat("#", level))
	})
	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = hrTags.ReplaceAllString(content, "\n")

	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	var blocks []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
		if line == "" || strings.Trim(line, "# ") == "" {
			continue
		}
		blocks = append(blocks, line)
	}
	return strings.Join(blocks, "\n\n")
}
