package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
	"github.com/custodia-labs/quill/internal/core/ports/driving"
	"github.com/custodia-labs/quill/internal/logger"
	"github.com/custodia-labs/quill/internal/metrics"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// Retrieval defaults.
const (
	DefaultKeywordScore  = 0.35
	DefaultSemanticTopK  = 20
	DefaultKeywordDocs   = 5
	DefaultKeywordChunks = 10
	DefaultEntityTopK    = 10
)

var mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}_\-]+)`)

// RetrievalDeps are the read-side stores retrieval queries.
type RetrievalDeps struct {
	Chunks   driven.ChunkStore
	Entities driven.EntityStore
	Vectors  driven.VectorStore
	Embedder driven.Embedder

	// Keyword is optional. Without it, retrieval is semantic only.
	Keyword driven.KeywordSearch
}

// RetrievalConfig tunes recall. Zero values take the defaults.
type RetrievalConfig struct {
	Model         string
	KeywordScore  float64
	SemanticTopK  int
	KeywordDocs   int
	KeywordChunks int
	EntityTopK    int
}

func (c RetrievalConfig) withDefaults() RetrievalConfig {
	if c.KeywordScore <= 0 || c.KeywordScore > 1 {
		c.KeywordScore = DefaultKeywordScore
	}
	if c.SemanticTopK <= 0 {
		c.SemanticTopK = DefaultSemanticTopK
	}
	if c.KeywordDocs <= 0 {
		c.KeywordDocs = DefaultKeywordDocs
	}
	if c.KeywordChunks <= 0 {
		c.KeywordChunks = DefaultKeywordChunks
	}
	if c.EntityTopK <= 0 {
		c.EntityTopK = DefaultEntityTopK
	}
	return c
}

// RetrievalService assembles entity cards and passages for a query.
// It is read-only and safe for concurrent use.
type RetrievalService struct {
	deps RetrievalDeps
	cfg  RetrievalConfig
}

// NewRetrievalService creates a retrieval service.
func NewRetrievalService(deps RetrievalDeps, cfg RetrievalConfig) *RetrievalService {
	return &RetrievalService{deps: deps, cfg: cfg.withDefaults()}
}

// Retrieve returns the cards and passages relevant to query within budget.
//
// Each recall signal is best-effort: a failing embedder, entity store or
// keyword search is logged and skipped. Only invalid input and a dimension
// conflict on a vector collection are returned as errors.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, budget domain.Budget) (*domain.RetrievalResult, error) {
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(query) == "" {
		return nil, domain.NewError(domain.CodeInvalidArgument, "retrieve",
			fmt.Errorf("%w: query is empty", domain.ErrInvalidArgument))
	}
	th := budget.Threshold
	if math.IsNaN(th) || th < 0 || th > 1 {
		return nil, domain.NewError(domain.CodeInvalidArgument, "retrieve",
			fmt.Errorf("%w: threshold must be in (0,1]", domain.ErrInvalidArgument))
	}
	budget = budget.WithDefaults()
	offset, err := budget.Offset()
	if err != nil {
		return nil, err
	}

	vector := s.embedQuery(ctx, query)

	cards, err := s.deps.Entities.ListCards(ctx)
	if err != nil {
		logger.Warn("Retrieval: entity store failed: %v", err)
		metrics.RetrievalSignalFailures.WithLabelValues("entity").Inc()
		cards = nil
	}
	sources := cardSources(cards)

	hits, err := s.recallEntities(ctx, query, cards, vector, budget.Threshold)
	if err != nil {
		return nil, err
	}
	characters, settings := splitCards(hits, budget.MaxCharacters, budget.MaxSettings)

	semantic, more, err := s.recallSemantic(ctx, vector, offset, sources, budget.Threshold)
	if err != nil {
		return nil, err
	}
	var keyword []domain.Passage
	if offset == 0 {
		keyword = s.recallKeyword(ctx, query, sources)
	}
	passages := mergePassages(semantic, keyword)

	result := &domain.RetrievalResult{
		Characters: []domain.CardHit{},
		Settings:   []domain.CardHit{},
		Passages:   []domain.Passage{},
		Budget: domain.BudgetReport{
			MaxChars:      budget.MaxChars,
			MaxChunks:     budget.MaxChunks,
			MaxCharacters: budget.MaxCharacters,
			MaxSettings:   budget.MaxSettings,
			Cursor:        budget.Cursor,
		},
	}

	keptCards, cardChars := trimCards(append(characters, settings...), budget.CardBudget())
	for _, c := range keptCards {
		if c.Type == domain.EntityCharacter {
			result.Characters = append(result.Characters, c)
		} else {
			result.Settings = append(result.Settings, c)
		}
	}

	kept, chunkChars := trimPassages(passages, budget.MaxChunks, budget.MaxChars-cardChars, len(keptCards) == 0)
	result.Passages = append(result.Passages, kept...)
	result.Budget.UsedChars = cardChars + chunkChars

	// With no passage kept the cursor would not advance, so none is returned.
	if (more || len(passages) > len(kept)) && len(kept) > 0 {
		result.Budget.NextCursor = strconv.Itoa(offset + len(kept))
	}

	logger.Debug("Retrieval: %d characters, %d settings, %d passages (%d chars)",
		len(result.Characters), len(result.Settings), len(result.Passages), result.Budget.UsedChars)
	return result, nil
}

func (s *RetrievalService) embedQuery(ctx context.Context, query string) []float32 {
	out, err := s.deps.Embedder.Encode(ctx, []string{query}, s.cfg.Model)
	if err != nil {
		logger.Warn("Retrieval: query embedding failed, continuing without vectors: %v", err)
		metrics.RetrievalSignalFailures.WithLabelValues("embed").Inc()
		return nil
	}
	if len(out.Vectors) != 1 {
		return nil
	}
	return out.Vectors[0]
}

// recallEntities prefers exact name matches and falls back to similarity.
func (s *RetrievalService) recallEntities(ctx context.Context, query string, cards []domain.EntityCard, vector []float32, threshold float64) ([]domain.CardHit, error) {
	exact := matchExact(query, cards)
	if len(exact) > 0 || vector == nil {
		return exact, nil
	}

	q := domain.SimilarityQuery{TopK: s.cfg.EntityTopK}.WithThreshold(threshold)
	hits, err := s.deps.Vectors.QuerySimilar(ctx, domain.CollectionEntities, vector, q)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		logger.Warn("Retrieval: entity similarity failed: %v", err)
		metrics.RetrievalSignalFailures.WithLabelValues("entity").Inc()
		return nil, nil
	}

	byID := make(map[string]domain.EntityCard, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}
	out := make([]domain.CardHit, 0, len(hits))
	for _, h := range hits {
		card, ok := byID[h.Key]
		if !ok {
			continue
		}
		out = append(out, cardHit(card, h.Score(), domain.MatchSemantic))
	}
	return out, nil
}

// matchExact finds cards named by an @mention or whose name occurs in the query.
func matchExact(query string, cards []domain.EntityCard) []domain.CardHit {
	lowered := strings.ToLower(query)
	mentions := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(query, -1) {
		mentions[strings.ToLower(m[1])] = true
	}

	var out []domain.CardHit
	for _, card := range cards {
		for _, name := range card.Names() {
			n := strings.ToLower(strings.TrimSpace(name))
			if n == "" {
				continue
			}
			if mentions[n] || mentions[strings.ReplaceAll(n, " ", "-")] ||
				mentions[strings.ReplaceAll(n, " ", "_")] || strings.Contains(lowered, n) {
				out = append(out, cardHit(card, 1, domain.MatchExact))
				break
			}
		}
	}
	return out
}

func cardHit(card domain.EntityCard, score float64, by domain.MatchKind) domain.CardHit {
	return domain.CardHit{
		ID:        card.ID,
		Type:      card.Type,
		Name:      card.Name,
		Aliases:   card.Aliases,
		Content:   card.Content,
		ArticleID: card.SourceArticleID,
		Score:     score,
		MatchedBy: by,
	}
}

func cardSources(cards []domain.EntityCard) []string {
	sources := make([]string, 0, len(cards))
	for _, c := range cards {
		sources = append(sources, c.SourceArticleID)
	}
	return sources
}

// splitCards ranks each type by score then name and applies the per-type caps.
func splitCards(hits []domain.CardHit, maxCharacters, maxSettings int) (characters, settings []domain.CardHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Name < hits[j].Name
	})
	for _, h := range hits {
		switch {
		case h.Type == domain.EntityCharacter && len(characters) < maxCharacters:
			characters = append(characters, h)
		case h.Type == domain.EntitySetting && len(settings) < maxSettings:
			settings = append(settings, h)
		}
	}
	return characters, settings
}

// recallSemantic returns one page of chunk hits and whether the page was full.
func (s *RetrievalService) recallSemantic(ctx context.Context, vector []float32, offset int, exclude []string, threshold float64) ([]domain.Passage, bool, error) {
	if vector == nil {
		return nil, false, nil
	}

	q := domain.SimilarityQuery{
		TopK:          s.cfg.SemanticTopK,
		Offset:        offset,
		ExcludeGroups: exclude,
	}.WithThreshold(threshold)
	hits, err := s.deps.Vectors.QuerySimilar(ctx, domain.CollectionChunks, vector, q)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, false, err
		}
		logger.Warn("Retrieval: chunk similarity failed: %v", err)
		metrics.RetrievalSignalFailures.WithLabelValues("semantic").Inc()
		return nil, false, nil
	}
	if len(hits) == 0 {
		return nil, false, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Key
	}
	chunks, err := s.deps.Chunks.GetChunksByIDs(ctx, ids)
	if err != nil {
		logger.Warn("Retrieval: loading chunks failed: %v", err)
		metrics.RetrievalSignalFailures.WithLabelValues("semantic").Inc()
		return nil, false, nil
	}

	out := make([]domain.Passage, 0, len(hits))
	for _, h := range hits {
		c, ok := chunks[h.Key]
		if !ok {
			// Vector outlived its row during a reindex.
			continue
		}
		out = append(out, passage(c, h.Score(), domain.SourceSemantic))
	}
	return out, len(hits) == s.cfg.SemanticTopK, nil
}

// recallKeyword pulls the chunks of the best full-text matches at a fixed score.
func (s *RetrievalService) recallKeyword(ctx context.Context, query string, exclude []string) []domain.Passage {
	if s.deps.Keyword == nil {
		return nil
	}

	hits, err := s.deps.Keyword.SearchArticles(ctx, query, s.cfg.KeywordDocs)
	if err != nil {
		if errors.Is(err, domain.ErrQuerySyntax) {
			logger.Debug("Retrieval: keyword query rejected, skipping: %v", err)
		} else {
			logger.Warn("Retrieval: keyword search failed: %v", err)
		}
		metrics.RetrievalSignalFailures.WithLabelValues("keyword").Inc()
		return nil
	}

	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	var out []domain.Passage
	for _, h := range hits {
		if skip[h.ArticleID] {
			continue
		}
		chunks, err := s.deps.Chunks.GetChunks(ctx, h.ArticleID)
		if err != nil {
			logger.Warn("Retrieval: loading chunks of %s failed: %v", h.ArticleID, err)
			continue
		}
		for _, c := range chunks {
			if len(out) >= s.cfg.KeywordChunks {
				return out
			}
			out = append(out, passage(c, s.cfg.KeywordScore, domain.SourceKeyword))
		}
	}
	return out
}

func passage(c domain.Chunk, score float64, source domain.PassageSource) domain.Passage {
	return domain.Passage{
		ChunkID:   c.ID,
		ArticleID: c.ArticleID,
		Index:     c.Index,
		Content:   c.Content,
		Score:     score,
		Source:    source,
	}
}

// mergePassages unions candidates by chunk id keeping the higher score.
func mergePassages(semantic, keyword []domain.Passage) []domain.Passage {
	byID := make(map[string]domain.Passage, len(semantic)+len(keyword))
	for _, list := range [][]domain.Passage{semantic, keyword} {
		for _, p := range list {
			if prev, ok := byID[p.ChunkID]; !ok || p.Score > prev.Score {
				byID[p.ChunkID] = p
			}
		}
	}

	out := make([]domain.Passage, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].ArticleID != out[j].ArticleID {
			return out[i].ArticleID < out[j].ArticleID
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// trimCards keeps the highest-scored cards that fit, always keeping the first.
func trimCards(cards []domain.CardHit, limit int) ([]domain.CardHit, int) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Score > cards[j].Score
	})

	var kept []domain.CardHit
	used := 0
	for _, c := range cards {
		n := utf8.RuneCountInString(c.Content)
		if len(kept) > 0 && used+n > limit {
			break
		}
		kept = append(kept, c)
		used += n
		if used > limit {
			break
		}
	}
	return kept, used
}

// trimPassages caps passages at maxChunks and then at limit characters.
// The first passage is forced in only when force is set.
func trimPassages(passages []domain.Passage, maxChunks, limit int, force bool) ([]domain.Passage, int) {
	if len(passages) > maxChunks {
		passages = passages[:maxChunks]
	}

	var kept []domain.Passage
	used := 0
	for _, p := range passages {
		n := utf8.RuneCountInString(p.Content)
		if used+n > limit {
			if force && len(kept) == 0 {
				kept = append(kept, p)
				used += n
			}
			break
		}
		kept = append(kept, p)
		used += n
	}
	return kept, used
}
