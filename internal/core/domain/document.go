package domain

import "time"

// Article is a document as stored by the primary store.
// The core only reads articles; it never mutates them.
type Article struct {
	// ID is the unique identifier for the article (e.g. "drafts/a.md").
	ID string

	// Content is the full markdown text, including any front matter.
	Content string

	// UpdatedAt is when the primary store last changed the article.
	UpdatedAt time.Time
}

// Chunk is a paragraph slice of an article.
// Chunks are replaced wholesale every time their article is re-indexed.
type Chunk struct {
	// ID is a deterministic function of ArticleID, Index and Content.
	ID string

	// ArticleID links to the owning Article.
	ArticleID string

	// Index is the 0-based position within the article.
	Index int

	// Content is the trimmed paragraph text.
	Content string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Derived bundles everything the pure processors produce for one article.
type Derived struct {
	Chunks []Chunk

	// Card is nil when the article carries no usable entity front matter.
	Card *EntityCard
}
