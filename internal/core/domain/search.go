package domain

import "strconv"

// Default retrieval budget values.
const (
	DefaultMaxChars      = 4000
	DefaultMaxChunks     = 8
	DefaultMaxCharacters = 5
	DefaultMaxSettings   = 5

	// CardBudgetCap bounds the character budget reserved for entity cards.
	CardBudgetCap = 2000

	// CardBudgetShare is the fraction of MaxChars cards may use.
	CardBudgetShare = 0.4
)

// Budget is the caller-supplied ceiling on a retrieval result.
type Budget struct {
	MaxChars      int    `json:"maxChars,omitempty"`
	MaxChunks     int    `json:"maxChunks,omitempty"`
	MaxCharacters int    `json:"maxCharacters,omitempty"`
	MaxSettings   int    `json:"maxSettings,omitempty"`
	Cursor        string `json:"cursor,omitempty"`

	// Threshold is an optional similarity floor in (0,1]; zero means unset.
	Threshold float64 `json:"threshold,omitempty"`
}

// WithDefaults fills every unset field.
func (b Budget) WithDefaults() Budget {
	if b.MaxChars <= 0 {
		b.MaxChars = DefaultMaxChars
	}
	if b.MaxChunks <= 0 {
		b.MaxChunks = DefaultMaxChunks
	}
	if b.MaxCharacters <= 0 {
		b.MaxCharacters = DefaultMaxCharacters
	}
	if b.MaxSettings <= 0 {
		b.MaxSettings = DefaultMaxSettings
	}
	return b
}

// Offset decodes the cursor into a chunk offset.
func (b Budget) Offset() (int, error) {
	if b.Cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(b.Cursor)
	if err != nil || n < 0 {
		return 0, NewError(CodeInvalidArgument, "decode cursor", ErrInvalidArgument)
	}
	return n, nil
}

// CardBudget is the share of MaxChars cards may consume.
func (b Budget) CardBudget() int {
	share := int(float64(b.MaxChars) * CardBudgetShare)
	if share > CardBudgetCap {
		return CardBudgetCap
	}
	return share
}

// MatchKind records how an entity card was recalled.
type MatchKind string

// Entity match kinds.
const (
	MatchExact    MatchKind = "exact"
	MatchSemantic MatchKind = "semantic"
)

// PassageSource records which signal produced a passage.
type PassageSource string

// Passage sources.
const (
	SourceSemantic PassageSource = "semantic"
	SourceKeyword  PassageSource = "keyword"
)

// CardHit is an entity card selected for the prompt.
type CardHit struct {
	ID        string     `json:"id"`
	Type      EntityType `json:"type"`
	Name      string     `json:"name"`
	Aliases   []string   `json:"aliases,omitempty"`
	Content   string     `json:"content"`
	ArticleID string     `json:"articleId"`
	Score     float64    `json:"score"`
	MatchedBy MatchKind  `json:"matchedBy"`
}

// Passage is a chunk selected for the prompt.
type Passage struct {
	ChunkID   string        `json:"chunkId"`
	ArticleID string        `json:"articleId"`
	Index     int           `json:"index"`
	Content   string        `json:"content"`
	Score     float64       `json:"score"`
	Source    PassageSource `json:"source"`
}

// BudgetReport echoes the effective budget and how much of it was used.
type BudgetReport struct {
	MaxChars      int    `json:"maxChars"`
	MaxChunks     int    `json:"maxChunks"`
	MaxCharacters int    `json:"maxCharacters"`
	MaxSettings   int    `json:"maxSettings"`
	Cursor        string `json:"cursor,omitempty"`
	UsedChars     int    `json:"usedChars"`
	NextCursor    string `json:"nextCursor,omitempty"`
}

// RetrievalResult is the bounded output of a retrieval call.
type RetrievalResult struct {
	Characters []CardHit    `json:"characters"`
	Settings   []CardHit    `json:"settings"`
	Passages   []Passage    `json:"passages"`
	Budget     BudgetReport `json:"budget"`
}
