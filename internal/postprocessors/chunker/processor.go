// Package chunker splits article bodies into paragraph chunks.
package chunker

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/postprocessors/frontmatter"
)

// Namespace seeds the name-based UUIDs used as chunk IDs.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/custodia-labs/quill/chunk"))

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
	trailingSpace  = regexp.MustCompile(`[ \t]+\n`)
	headingLine    = regexp.MustCompile(`^#{1,6}(?:[ \t].*)?$`)
)

// Processor splits article content into paragraph chunks.
type Processor struct {
	keepHeadings bool
	minLength    int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithKeepHeadings keeps paragraphs that consist only of markdown headings.
func WithKeepHeadings(keep bool) Option {
	return func(p *Processor) {
		p.keepHeadings = keep
	}
}

// WithMinLength drops paragraphs shorter than n runes.
func WithMinLength(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.minLength = n
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Split returns the ordered paragraphs of content.
// A leading front-matter block is ignored.
func (p *Processor) Split(content string) []string {
	_, body, _ := frontmatter.Split(content)

	parts := paragraphBreak.Split(body, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(trailingSpace.ReplaceAllString(part, "\n"))
		if part == "" {
			continue
		}
		if !p.keepHeadings && isHeadingOnly(part) {
			continue
		}
		if utf8.RuneCountInString(part) < p.minLength {
			continue
		}
		paragraphs = append(paragraphs, part)
	}
	return paragraphs
}

// Process replaces derived.Chunks with the chunks of the article.
func (p *Processor) Process(_ context.Context, article *domain.Article, derived *domain.Derived) error {
	paragraphs := p.Split(article.Content)

	chunks := make([]domain.Chunk, 0, len(paragraphs))
	for i, content := range paragraphs {
		chunks = append(chunks, domain.Chunk{
			ID:        ChunkID(article.ID, i, content),
			ArticleID: article.ID,
			Index:     i,
			Content:   content,
		})
	}
	derived.Chunks = chunks
	return nil
}

// ChunkID derives a stable ID from the owning article, position and text.
func ChunkID(articleID string, index int, content string) string {
	name := articleID + "\x1f" + strconv.Itoa(index) + "\x1f" + content
	return uuid.NewSHA1(Namespace, []byte(name)).String()
}

func isHeadingOnly(paragraph string) bool {
	for _, line := range strings.Split(paragraph, "\n") {
		if !headingLine.MatchString(strings.TrimSpace(line)) {
			return false
		}
	}
	return true
}
