// Package entity extracts character and setting cards from article front matter.
package entity

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/postprocessors/frontmatter"
)

// DefaultHeadingScanLines bounds how far into the body the name fallback looks.
const DefaultHeadingScanLines = 20

// Extractor derives an EntityCard from front matter.
type Extractor struct {
	headingScanLines int
}

// Option configures the extractor.
type Option func(*Extractor)

// WithHeadingScanLines sets how many body lines are searched for a heading.
func WithHeadingScanLines(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.headingScanLines = n
		}
	}
}

// New creates an extractor with the given options.
func New(opts ...Option) *Extractor {
	e := &Extractor{headingScanLines: DefaultHeadingScanLines}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the processor name.
func (e *Extractor) Name() string {
	return "entity"
}

// Process sets derived.Card, or clears it when the article carries no card.
func (e *Extractor) Process(_ context.Context, article *domain.Article, derived *domain.Derived) error {
	derived.Card = e.Extract(article.ID, article.Content)
	return nil
}

// Extract returns the card described by content, or nil.
// Malformed front matter and unknown types yield nil rather than an error.
func (e *Extractor) Extract(articleID, content string) *domain.EntityCard {
	meta, body, ok := frontmatter.Split(content)
	if !ok {
		return nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(meta), &fields); err != nil || fields == nil {
		return nil
	}

	entityType, ok := domain.ParseEntityType(scalar(fields["type"]))
	if !ok {
		return nil
	}

	name := scalar(fields["name"])
	if name == "" {
		name = firstHeading(body, e.headingScanLines)
	}
	if name == "" {
		name = strings.TrimSpace(articleID)
	}
	if name == "" {
		return nil
	}

	body = strings.TrimSpace(body)
	cardContent := name
	if body != "" {
		cardContent = name + "\n\n" + body
	}

	return &domain.EntityCard{
		ID:              domain.EntityCardID(entityType, name),
		Type:            entityType,
		Name:            name,
		Aliases:         aliases(fields["aliases"], name),
		Content:         cardContent,
		SourceArticleID: articleID,
	}
}

func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// aliases accepts a YAML list or a comma-separated string.
func aliases(v any, name string) []string {
	var raw []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			raw = append(raw, scalar(item))
		}
	case string:
		raw = strings.Split(val, ",")
	}

	seen := map[string]bool{name: true}
	out := make([]string, 0, len(raw))
	for _, alias := range raw {
		alias = strings.TrimSpace(alias)
		if alias == "" || seen[alias] {
			continue
		}
		seen[alias] = true
		out = append(out, alias)
	}
	return out
}

func firstHeading(body string, maxLines int) string {
	lines := strings.SplitN(body, "\n", maxLines+1)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		title := strings.TrimSpace(strings.TrimLeft(line, "#"))
		if title != "" {
			return title
		}
	}
	return ""
}
