package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storemem "github.com/custodia-labs/quill/internal/adapters/driven/storage/memory"
	vecmem "github.com/custodia-labs/quill/internal/adapters/driven/vectorstore/memory"
	"github.com/custodia-labs/quill/internal/core/domain"
)

// retrievalFixture seeds stores directly with hand-placed 2-d vectors.
type retrievalFixture struct {
	articles *storemem.ArticleStore
	chunks   *storemem.ChunkStore
	entities *storemem.EntityStore
	vectors  *vecmem.Store
	embedder *fakeEmbedder
	svc      *RetrievalService
}

func newRetrievalFixture(t *testing.T) *retrievalFixture {
	t.Helper()
	f := &retrievalFixture{
		articles: storemem.NewArticleStore(),
		chunks:   storemem.NewChunkStore(),
		entities: storemem.NewEntityStore(),
		vectors:  vecmem.NewStore(),
		embedder: newFakeEmbedder(2),
	}
	f.svc = NewRetrievalService(RetrievalDeps{
		Chunks:   f.chunks,
		Entities: f.entities,
		Vectors:  f.vectors,
		Embedder: f.embedder,
		Keyword:  f.articles,
	}, RetrievalConfig{})
	return f
}

// query registers the vector a query text embeds to.
func (f *retrievalFixture) query(text string, vec ...float32) {
	f.embedder.vectors[text] = vec
}

// addArticle stores an article with one chunk per paragraph. A nil vector
// leaves that chunk without an embedding.
func (f *retrievalFixture) addArticle(t *testing.T, id string, paragraphs []string, vecs [][]float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.articles.Put(ctx, domain.Article{ID: id, Content: strings.Join(paragraphs, "\n\n")}))

	chunks := make([]domain.Chunk, len(paragraphs))
	var entries []domain.VectorEntry
	for i, p := range paragraphs {
		chunks[i] = domain.Chunk{ID: fmt.Sprintf("%s#%d", id, i), ArticleID: id, Index: i, Content: p}
		if i < len(vecs) && vecs[i] != nil {
			entries = append(entries, domain.VectorEntry{Key: chunks[i].ID, Embedding: vecs[i]})
		}
	}
	require.NoError(t, f.chunks.ReplaceChunks(ctx, id, chunks))
	if len(entries) > 0 {
		require.NoError(t, f.vectors.EnsureReady(ctx, domain.CollectionChunks, 2))
		require.NoError(t, f.vectors.ReplaceForOwner(ctx, domain.CollectionChunks, id, entries))
	}
}

func (f *retrievalFixture) addCard(t *testing.T, typ domain.EntityType, name, content, source string, vec []float32, aliases ...string) {
	t.Helper()
	ctx := context.Background()
	card := domain.EntityCard{
		ID:              domain.EntityCardID(typ, name),
		Type:            typ,
		Name:            name,
		Aliases:         aliases,
		Content:         content,
		SourceArticleID: source,
	}
	require.NoError(t, f.entities.UpsertCard(ctx, card))
	if vec != nil {
		require.NoError(t, f.vectors.EnsureReady(ctx, domain.CollectionEntities, 2))
		require.NoError(t, f.vectors.Upsert(ctx, domain.CollectionEntities, []domain.VectorEntry{
			{Key: card.ID, Group: string(typ), Embedding: vec},
		}))
	}
}

func passageIDs(ps []domain.Passage) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ChunkID
	}
	return ids
}

func cardNames(cs []domain.CardHit) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

func TestRetrieve_InvalidArguments(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		budget domain.Budget
	}{
		{name: "empty query", query: ""},
		{name: "blank query", query: "   \n"},
		{name: "negative threshold", query: "q", budget: domain.Budget{Threshold: -0.1}},
		{name: "threshold above one", query: "q", budget: domain.Budget{Threshold: 1.5}},
		{name: "non numeric cursor", query: "q", budget: domain.Budget{Cursor: "next"}},
		{name: "negative cursor", query: "q", budget: domain.Budget{Cursor: "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRetrievalFixture(t)
			_, err := f.svc.Retrieve(context.Background(), tt.query, tt.budget)
			assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
		})
	}
}

func TestRetrieve_EmptyStores(t *testing.T) {
	f := newRetrievalFixture(t)

	res, err := f.svc.Retrieve(context.Background(), "anything", domain.Budget{})
	require.NoError(t, err)
	assert.NotNil(t, res.Characters)
	assert.NotNil(t, res.Settings)
	assert.NotNil(t, res.Passages)
	assert.Empty(t, res.Passages)
	assert.Equal(t, domain.DefaultMaxChars, res.Budget.MaxChars)
	assert.Equal(t, domain.DefaultMaxChunks, res.Budget.MaxChunks)
	assert.Equal(t, 0, res.Budget.UsedChars)
	assert.Empty(t, res.Budget.NextCursor)
}

func TestRetrieve_PassageBudget(t *testing.T) {
	tests := []struct {
		name         string
		budget       domain.Budget
		wantPassages int
		wantUsed     int
		wantCursor   string
	}{
		{
			name:         "second passage would overflow",
			budget:       domain.Budget{MaxChars: 500, MaxChunks: 2},
			wantPassages: 1,
			wantUsed:     400,
			wantCursor:   "1",
		},
		{
			name:         "chunk cap binds first",
			budget:       domain.Budget{MaxChars: 5000, MaxChunks: 2},
			wantPassages: 2,
			wantUsed:     800,
			wantCursor:   "2",
		},
		{
			name:         "oversized top passage is kept alone",
			budget:       domain.Budget{MaxChars: 300, MaxChunks: 2},
			wantPassages: 1,
			wantUsed:     400,
			wantCursor:   "1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRetrievalFixture(t)
			f.query("query", 1, 0)
			for i := 0; i < 5; i++ {
				f.addArticle(t, fmt.Sprintf("doc%d.md", i),
					[]string{strings.Repeat(string(rune('a'+i)), 400)},
					[][]float32{{1, float32(i) * 0.1}})
			}

			res, err := f.svc.Retrieve(context.Background(), "query", tt.budget)
			require.NoError(t, err)
			require.Len(t, res.Passages, tt.wantPassages)
			assert.Equal(t, "doc0.md#0", res.Passages[0].ChunkID)
			assert.Equal(t, tt.wantUsed, res.Budget.UsedChars)
			assert.Equal(t, tt.wantCursor, res.Budget.NextCursor)

			used := 0
			for _, p := range res.Passages {
				used += utf8.RuneCountInString(p.Content)
			}
			assert.Equal(t, res.Budget.UsedChars, used)
		})
	}
}

func TestRetrieve_MergesKeywordAndSemantic(t *testing.T) {
	f := newRetrievalFixture(t)
	f.query("lantern", 1, 0)
	f.addArticle(t, "both.md", []string{"A lantern, another lantern."}, [][]float32{{1, 0}})
	f.addArticle(t, "sem.md", []string{"A glowing lamp."}, [][]float32{{1, 0.5}})
	f.addArticle(t, "kw.md", []string{"The lantern glows."}, nil)

	res, err := f.svc.Retrieve(context.Background(), "lantern", domain.Budget{})
	require.NoError(t, err)

	require.Equal(t, []string{"both.md#0", "sem.md#0", "kw.md#0"}, passageIDs(res.Passages))
	assert.Equal(t, domain.SourceSemantic, res.Passages[0].Source)
	assert.InDelta(t, 1.0, res.Passages[0].Score, 1e-9)
	assert.InDelta(t, 1/1.5, res.Passages[1].Score, 1e-6)
	assert.Equal(t, domain.SourceKeyword, res.Passages[2].Source)
	assert.InDelta(t, DefaultKeywordScore, res.Passages[2].Score, 1e-9)
}

func TestRetrieve_KeywordFailureDegrades(t *testing.T) {
	f := newRetrievalFixture(t)
	f.query("lantern", 1, 0)
	f.addArticle(t, "sem.md", []string{"A glowing lamp."}, [][]float32{{1, 0.5}})
	f.addArticle(t, "kw.md", []string{"The lantern glows."}, nil)
	f.articles.SearchErr = fmt.Errorf("fts5: syntax error: %w", domain.ErrQuerySyntax)

	res, err := f.svc.Retrieve(context.Background(), "lantern", domain.Budget{})
	require.NoError(t, err)
	assert.Equal(t, []string{"sem.md#0"}, passageIDs(res.Passages))
}

func TestRetrieve_KeywordOnlyOnFirstPage(t *testing.T) {
	f := newRetrievalFixture(t)
	f.query("lantern", 1, 0)
	f.addArticle(t, "both.md", []string{"A lantern, another lantern."}, [][]float32{{1, 0}})
	f.addArticle(t, "sem.md", []string{"A glowing lamp."}, [][]float32{{1, 0.5}})
	f.addArticle(t, "kw.md", []string{"The lantern glows."}, nil)

	res, err := f.svc.Retrieve(context.Background(), "lantern", domain.Budget{Cursor: "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sem.md#0"}, passageIDs(res.Passages))
	assert.Equal(t, "1", res.Budget.Cursor)
	assert.Empty(t, res.Budget.NextCursor)
}

func TestRetrieve_Pagination(t *testing.T) {
	f := newRetrievalFixture(t)
	f.query("page", 1, 0)
	for i := 0; i < 5; i++ {
		f.addArticle(t, fmt.Sprintf("p%d.md", i), []string{fmt.Sprintf("passage %d", i)},
			[][]float32{{1, float32(i) * 0.1}})
	}

	ctx := context.Background()
	var seen []string
	cursor := ""
	for page := 0; page < 3; page++ {
		res, err := f.svc.Retrieve(ctx, "page", domain.Budget{MaxChunks: 2, Cursor: cursor})
		require.NoError(t, err)
		seen = append(seen, passageIDs(res.Passages)...)
		cursor = res.Budget.NextCursor
	}

	assert.Equal(t, []string{"p0.md#0", "p1.md#0", "p2.md#0", "p3.md#0", "p4.md#0"}, seen)
	assert.Empty(t, cursor)
}

func TestRetrieve_ExactEntities(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		wantCharacters []string
		wantSettings   []string
	}{
		{name: "mention", query: "What would @ada say?", wantCharacters: []string{"Ada"}, wantSettings: []string{}},
		{name: "name in text", query: "a stroll through Old Town", wantCharacters: []string{}, wantSettings: []string{"Old Town"}},
		{name: "hyphenated mention", query: "@old-town at dusk", wantCharacters: []string{}, wantSettings: []string{"Old Town"}},
		{name: "underscored mention", query: "@Old_Town at dusk", wantCharacters: []string{}, wantSettings: []string{"Old Town"}},
		{name: "alias", query: "the countess arrives", wantCharacters: []string{"Ada"}, wantSettings: []string{}},
		{name: "both types", query: "@ada in old town", wantCharacters: []string{"Ada"}, wantSettings: []string{"Old Town"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRetrievalFixture(t)
			f.addCard(t, domain.EntityCharacter, "Ada", "Ada\n\nA mathematician.", "ada.md", nil, "Countess")
			f.addCard(t, domain.EntitySetting, "Old Town", "Old Town\n\nCobbles.", "town.md", nil)

			res, err := f.svc.Retrieve(context.Background(), tt.query, domain.Budget{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCharacters, cardNames(res.Characters))
			assert.Equal(t, tt.wantSettings, cardNames(res.Settings))
			for _, c := range append(res.Characters, res.Settings...) {
				assert.Equal(t, domain.MatchExact, c.MatchedBy)
				assert.InDelta(t, 1.0, c.Score, 1e-9)
			}
		})
	}
}

func TestRetrieve_SemanticEntities(t *testing.T) {
	tests := []struct {
		name           string
		threshold      float64
		wantCharacters []string
		wantSettings   []string
	}{
		{name: "no threshold", wantCharacters: []string{"Ada"}, wantSettings: []string{"Old Town"}},
		{name: "threshold drops distant card", threshold: 0.9, wantCharacters: []string{"Ada"}, wantSettings: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRetrievalFixture(t)
			f.query("who keeps the ledger", 1, 0)
			f.addCard(t, domain.EntityCharacter, "Ada", "Ada\n\nA mathematician.", "ada.md", []float32{1, 0})
			f.addCard(t, domain.EntitySetting, "Old Town", "Old Town\n\nCobbles.", "town.md", []float32{0, 1})

			res, err := f.svc.Retrieve(context.Background(), "who keeps the ledger",
				domain.Budget{Threshold: tt.threshold})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCharacters, cardNames(res.Characters))
			assert.Equal(t, tt.wantSettings, cardNames(res.Settings))
			require.NotEmpty(t, res.Characters)
			assert.Equal(t, domain.MatchSemantic, res.Characters[0].MatchedBy)
			assert.InDelta(t, 1.0, res.Characters[0].Score, 1e-9)
			assert.Equal(t, "ada.md", res.Characters[0].ArticleID)
		})
	}
}

func TestRetrieve_CardSourcesAreNotPassages(t *testing.T) {
	f := newRetrievalFixture(t)
	f.query("mathematician", 1, 0)
	f.addCard(t, domain.EntityCharacter, "Ada", "Ada\n\nA mathematician.", "ada.md", []float32{1, 0})
	f.addArticle(t, "ada.md", []string{"A mathematician."}, [][]float32{{1, 0}})
	f.addArticle(t, "notes.md", []string{"Notes on a mathematician."}, [][]float32{{1, 0.2}})

	res, err := f.svc.Retrieve(context.Background(), "mathematician", domain.Budget{})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.md#0"}, passageIDs(res.Passages))
	assert.Equal(t, []string{"Ada"}, cardNames(res.Characters))
}

func TestRetrieve_CardBudget(t *testing.T) {
	t.Run("stops at the first card that does not fit", func(t *testing.T) {
		f := newRetrievalFixture(t)
		f.addCard(t, domain.EntityCharacter, "Ada", strings.Repeat("a", 30), "ada.md", nil)
		f.addCard(t, domain.EntityCharacter, "Bob", strings.Repeat("b", 30), "bob.md", nil)

		// 40% of 100 leaves room for one card
		res, err := f.svc.Retrieve(context.Background(), "ada and bob", domain.Budget{MaxChars: 100})
		require.NoError(t, err)
		assert.Equal(t, []string{"Ada"}, cardNames(res.Characters))
		assert.Equal(t, 30, res.Budget.UsedChars)
	})

	t.Run("per type cap", func(t *testing.T) {
		f := newRetrievalFixture(t)
		f.addCard(t, domain.EntityCharacter, "Ada", "a", "ada.md", nil)
		f.addCard(t, domain.EntityCharacter, "Bob", "b", "bob.md", nil)

		res, err := f.svc.Retrieve(context.Background(), "ada and bob", domain.Budget{MaxCharacters: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"Ada"}, cardNames(res.Characters))
	})

	t.Run("oversized card is kept and passages are not forced", func(t *testing.T) {
		f := newRetrievalFixture(t)
		f.query("ada", 1, 0)
		f.addCard(t, domain.EntityCharacter, "Ada", strings.Repeat("a", 60), "ada.md", nil)
		f.addArticle(t, "notes.md", []string{strings.Repeat("n", 50)}, [][]float32{{1, 0}})

		res, err := f.svc.Retrieve(context.Background(), "ada", domain.Budget{MaxChars: 100})
		require.NoError(t, err)
		assert.Equal(t, []string{"Ada"}, cardNames(res.Characters))
		assert.Empty(t, res.Passages)
		assert.Equal(t, 60, res.Budget.UsedChars)
		// No cursor: the next page would start at the same offset
		assert.Empty(t, res.Budget.NextCursor)
	})
}

func TestRetrieve_EmbeddingFailureDegrades(t *testing.T) {
	f := newRetrievalFixture(t)
	f.addCard(t, domain.EntityCharacter, "Ada", "Ada\n\nA mathematician.", "ada.md", nil)
	f.addArticle(t, "kw.md", []string{"Ada kept a lantern."}, nil)
	f.embedder.setErr(domain.NewError(domain.CodeTimeout, "encode", domain.ErrTimeout))

	res, err := f.svc.Retrieve(context.Background(), "@ada and the lantern", domain.Budget{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada"}, cardNames(res.Characters))
	assert.Equal(t, []string{"kw.md#0"}, passageIDs(res.Passages))
}

func TestRetrieve_DimensionConflict(t *testing.T) {
	f := newRetrievalFixture(t)
	f.query("query", 1, 0, 0)
	f.addArticle(t, "a.md", []string{"Para."}, [][]float32{{1, 0}})

	_, err := f.svc.Retrieve(context.Background(), "query", domain.Budget{})
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func TestRetrievalConfig_Defaults(t *testing.T) {
	cfg := RetrievalConfig{KeywordScore: 7}.withDefaults()
	assert.InDelta(t, DefaultKeywordScore, cfg.KeywordScore, 1e-9)
	assert.Equal(t, DefaultSemanticTopK, cfg.SemanticTopK)
	assert.Equal(t, DefaultKeywordDocs, cfg.KeywordDocs)
	assert.Equal(t, DefaultKeywordChunks, cfg.KeywordChunks)
	assert.Equal(t, DefaultEntityTopK, cfg.EntityTopK)
}
