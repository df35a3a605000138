package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
	"github.com/custodia-labs/quill/internal/core/ports/driving"
	"github.com/custodia-labs/quill/internal/logger"
	"github.com/custodia-labs/quill/internal/metrics"
)

// Ensure Indexer implements the interface.
var _ driving.IndexService = (*Indexer)(nil)

// IndexerDeps are the stores and services the indexer drives.
type IndexerDeps struct {
	Articles  driven.ArticleStore
	Chunks    driven.ChunkStore
	Entities  driven.EntityStore
	Vectors   driven.VectorStore
	Embedder  driven.Embedder
	Processor driven.ArticleProcessor

	// States is optional. Without it reconcile cannot detect stale articles.
	States driven.IndexStateStore
}

// IndexerConfig tunes the indexer.
type IndexerConfig struct {
	// Model is the embedding model. Empty selects the embedder's default.
	Model string

	// EmbedBatch is the number of chunk texts per Encode call (default 24).
	EmbedBatch int
}

// Indexer keeps chunks, vectors and entity cards in step with the article store.
//
// Enqueued IDs are processed one at a time by a single drain goroutine that
// runs only while the queue is non-empty. A failure on one article is logged
// and recorded; the loop moves on to the next ID.
type Indexer struct {
	deps  IndexerDeps
	model string
	batch int
	queue *WorkQueue

	mu        sync.Mutex
	state     domain.IndexerState
	inFlight  string
	processed int
	failed    int
	lastError string
	idle      chan struct{}
	closed    bool
	wg        sync.WaitGroup
}

// NewIndexer creates an idle indexer.
func NewIndexer(deps IndexerDeps, cfg IndexerConfig) *Indexer {
	if cfg.EmbedBatch <= 0 || cfg.EmbedBatch > domain.MaxEmbedBatch {
		cfg.EmbedBatch = domain.DefaultEmbedBatch
	}
	idle := make(chan struct{})
	close(idle)

	return &Indexer{
		deps:  deps,
		model: cfg.Model,
		batch: cfg.EmbedBatch,
		queue: NewWorkQueue(),
		state: domain.IndexerIdle,
		idle:  idle,
	}
}

// EnqueueArticleForIndexing schedules an article and starts the drain loop if idle.
func (i *Indexer) EnqueueArticleForIndexing(articleID string) {
	if articleID == "" {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}

	if i.queue.Enqueue(articleID) {
		logger.Debug("Indexer: queued %s", articleID)
	}
	metrics.IndexQueueDepth.Set(float64(i.queue.Len()))

	if i.state == domain.IndexerIdle {
		i.state = domain.IndexerDraining
		i.idle = make(chan struct{})
		i.wg.Add(1)
		go i.drain()
	}
}

// drain processes queued IDs until the queue is empty.
// The emptiness check and the switch to idle happen under one lock, so an
// ID enqueued while draining is never stranded.
func (i *Indexer) drain() {
	defer i.wg.Done()
	ctx := context.Background()

	for {
		i.mu.Lock()
		id, ok := "", false
		if !i.closed {
			id, ok = i.queue.DrainOne()
		}
		if !ok {
			i.state = domain.IndexerIdle
			i.inFlight = ""
			close(i.idle)
			i.mu.Unlock()
			return
		}
		i.inFlight = id
		metrics.IndexQueueDepth.Set(float64(i.queue.Len()))
		i.mu.Unlock()

		start := time.Now()
		outcome, err := i.indexArticle(ctx, id)
		metrics.IndexDocumentDuration.Observe(time.Since(start).Seconds())
		metrics.IndexDocumentsTotal.WithLabelValues(outcome).Inc()

		i.mu.Lock()
		i.inFlight = ""
		if err != nil {
			i.failed++
			i.lastError = fmt.Sprintf("%s: %v", id, err)
		} else {
			i.processed++
		}
		i.mu.Unlock()

		if err != nil {
			logger.Warn("Indexer: failed to index %s: %v", id, err)
		}
	}
}

// indexArticle runs every step for one article and returns the metrics outcome.
func (i *Indexer) indexArticle(ctx context.Context, id string) (string, error) {
	article, err := i.deps.Articles.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Debug("Indexer: %s no longer exists, removing derived state", id)
		if err := i.removeDerived(ctx, id); err != nil {
			return "failed", err
		}
		return "deleted", nil
	}
	if err != nil {
		return "failed", fmt.Errorf("load article: %w", err)
	}

	chunkCount, err := i.indexContent(ctx, article)
	state := domain.ArticleIndexState{
		ArticleID:   id,
		ContentHash: ContentHash(article.Content),
		ChunkCount:  chunkCount,
		Outcome:     domain.OutcomeIndexed,
		IndexedAt:   time.Now(),
	}
	if err != nil {
		state.Outcome = domain.OutcomeFailed
		state.Error = err.Error()
	}
	if i.deps.States != nil {
		if saveErr := i.deps.States.SaveState(ctx, state); saveErr != nil {
			logger.Warn("Indexer: failed to save state for %s: %v", id, saveErr)
		}
	}
	if err != nil {
		return "failed", err
	}

	logger.Debug("Indexer: indexed %s (%d chunks)", id, chunkCount)
	return "indexed", nil
}

func (i *Indexer) indexContent(ctx context.Context, article *domain.Article) (int, error) {
	derived, err := i.deps.Processor.Process(ctx, article)
	if err != nil {
		return 0, fmt.Errorf("process: %w", err)
	}

	if err := i.deps.Chunks.ReplaceChunks(ctx, article.ID, derived.Chunks); err != nil {
		return 0, fmt.Errorf("replace chunks: %w", err)
	}
	if err := i.indexChunkVectors(ctx, article.ID, derived.Chunks); err != nil {
		return len(derived.Chunks), fmt.Errorf("chunk vectors: %w", err)
	}
	if err := i.indexCard(ctx, article.ID, derived.Card); err != nil {
		return len(derived.Chunks), fmt.Errorf("entity card: %w", err)
	}
	return len(derived.Chunks), nil
}

// indexChunkVectors embeds chunks, swaps the article's chunk vectors and
// stores their mean as the document vector.
func (i *Indexer) indexChunkVectors(ctx context.Context, articleID string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		if err := i.deps.Vectors.DeleteByOwner(ctx, domain.CollectionChunks, articleID); err != nil {
			return err
		}
		return i.deps.Vectors.Delete(ctx, domain.CollectionDocuments, []string{articleID})
	}

	texts := make([]string, len(chunks))
	for n, c := range chunks {
		texts[n] = c.Content
	}
	vectors, dim, err := i.encode(ctx, texts)
	if err != nil {
		return err
	}

	if err := i.deps.Vectors.EnsureReady(ctx, domain.CollectionChunks, dim); err != nil {
		return err
	}
	entries := make([]domain.VectorEntry, len(chunks))
	for n, c := range chunks {
		entries[n] = domain.VectorEntry{Key: c.ID, Embedding: vectors[n]}
	}
	if err := i.deps.Vectors.ReplaceForOwner(ctx, domain.CollectionChunks, articleID, entries); err != nil {
		return err
	}

	if err := i.deps.Vectors.EnsureReady(ctx, domain.CollectionDocuments, dim); err != nil {
		return err
	}
	return i.deps.Vectors.Upsert(ctx, domain.CollectionDocuments, []domain.VectorEntry{
		{Key: articleID, Embedding: domain.MeanVector(vectors)},
	})
}

// encode embeds texts in sub-batches and checks they agree on dimension.
func (i *Indexer) encode(ctx context.Context, texts []string) ([][]float32, int, error) {
	vectors := make([][]float32, 0, len(texts))
	dim := 0
	for start := 0; start < len(texts); start += i.batch {
		end := min(start+i.batch, len(texts))
		out, err := i.deps.Embedder.Encode(ctx, texts[start:end], i.model)
		if err != nil {
			return nil, 0, fmt.Errorf("encode batch at %d: %w", start, err)
		}
		if dim == 0 {
			dim = out.Dimension
		} else if out.Dimension != dim {
			return nil, 0, fmt.Errorf("embedder changed dimension mid-article: %d then %d", dim, out.Dimension)
		}
		vectors = append(vectors, out.Vectors...)
	}
	return vectors, dim, nil
}

// indexCard stores or removes the article's entity card and its vector.
// A card ID already held by another article is not taken over; the article
// waits as a claimant and is re-enqueued when the holder lets go.
func (i *Indexer) indexCard(ctx context.Context, articleID string, card *domain.EntityCard) error {
	prev, err := i.deps.Entities.GetBySource(ctx, articleID)
	if err != nil {
		return fmt.Errorf("load previous card: %w", err)
	}

	if card == nil || (prev != nil && prev.ID != card.ID) {
		if err := i.releaseCard(ctx, articleID, prev); err != nil {
			return err
		}
	}
	if card == nil {
		return nil
	}

	vectors, dim, err := i.encode(ctx, []string{card.Content})
	if err != nil {
		return err
	}
	err = i.deps.Entities.UpsertCard(ctx, *card)
	if errors.Is(err, domain.ErrCardHeld) {
		logger.Warn("Indexer: %s declares %v", articleID, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("upsert card: %w", err)
	}
	if err := i.deps.Vectors.EnsureReady(ctx, domain.CollectionEntities, dim); err != nil {
		return err
	}
	return i.deps.Vectors.Upsert(ctx, domain.CollectionEntities, []domain.VectorEntry{
		{Key: card.ID, Group: string(card.Type), Embedding: vectors[0]},
	})
}

// releaseCard drops the article's claim, deletes the vector of the card it
// held, and queues the next claimant of that card.
func (i *Indexer) releaseCard(ctx context.Context, articleID string, held *domain.EntityCard) error {
	next, err := i.deps.Entities.ReleaseCard(ctx, articleID)
	if err != nil {
		return fmt.Errorf("release card of %s: %w", articleID, err)
	}
	if held != nil {
		if err := i.deps.Vectors.Delete(ctx, domain.CollectionEntities, []string{held.ID}); err != nil {
			return fmt.Errorf("delete card vector %s: %w", held.ID, err)
		}
	}
	if next != "" {
		logger.Debug("Indexer: %s released its card, re-indexing claimant %s", articleID, next)
		i.EnqueueArticleForIndexing(next)
	}
	return nil
}

// HandleDeletedArticle removes every chunk, vector, card and state row of an article.
// If the article is being indexed right now it is queued again, so the
// drain loop observes the deletion and cleans up anything it wrote.
func (i *Indexer) HandleDeletedArticle(ctx context.Context, articleID string) error {
	if articleID == "" {
		return domain.NewError(domain.CodeInvalidArgument, "handle deleted article", domain.ErrInvalidArgument)
	}

	err := i.removeDerived(ctx, articleID)

	i.mu.Lock()
	inFlight := i.inFlight == articleID
	i.mu.Unlock()
	if inFlight {
		i.EnqueueArticleForIndexing(articleID)
	}

	if err != nil {
		return fmt.Errorf("handle deleted article %s: %w", articleID, err)
	}
	metrics.IndexDocumentsTotal.WithLabelValues("deleted").Inc()
	logger.Debug("Indexer: removed derived state of %s", articleID)
	return nil
}

// removeDerived attempts every deletion and joins the failures.
func (i *Indexer) removeDerived(ctx context.Context, articleID string) error {
	var errs []error

	if err := i.deps.Chunks.DeleteChunks(ctx, articleID); err != nil {
		errs = append(errs, fmt.Errorf("delete chunks: %w", err))
	}
	if err := i.deps.Vectors.DeleteByOwner(ctx, domain.CollectionChunks, articleID); err != nil {
		errs = append(errs, fmt.Errorf("delete chunk vectors: %w", err))
	}
	if err := i.deps.Vectors.Delete(ctx, domain.CollectionDocuments, []string{articleID}); err != nil {
		errs = append(errs, fmt.Errorf("delete document vector: %w", err))
	}

	if card, err := i.deps.Entities.GetBySource(ctx, articleID); err != nil {
		errs = append(errs, fmt.Errorf("load card: %w", err))
	} else if err := i.releaseCard(ctx, articleID, card); err != nil {
		errs = append(errs, err)
	}

	if i.deps.States != nil {
		if err := i.deps.States.DeleteState(ctx, articleID); err != nil {
			errs = append(errs, fmt.Errorf("delete state: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Rebuild drops a vector collection and re-enqueues every article.
func (i *Indexer) Rebuild(ctx context.Context, c domain.Collection) (int, error) {
	if !c.IsValid() {
		return 0, domain.NewError(domain.CodeInvalidArgument, "rebuild",
			fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidArgument, c))
	}

	logger.Info("Rebuilding collection %s", c)
	if err := i.deps.Vectors.Reset(ctx, c); err != nil {
		return 0, fmt.Errorf("reset %s: %w", c, err)
	}

	ids, err := i.deps.Articles.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list articles: %w", err)
	}
	for _, id := range ids {
		i.EnqueueArticleForIndexing(id)
	}
	return len(ids), nil
}

// Status returns a snapshot of the drain loop.
func (i *Indexer) Status() domain.IndexStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return domain.IndexStatus{
		State:     i.state,
		Pending:   i.queue.Len(),
		InFlight:  i.inFlight,
		Processed: i.processed,
		Failed:    i.failed,
		LastError: i.lastError,
	}
}

// Wait blocks until the drain loop is idle.
func (i *Indexer) Wait(ctx context.Context) error {
	for {
		i.mu.Lock()
		idle := i.idle
		state := i.state
		i.mu.Unlock()

		if state == domain.IndexerIdle {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting work and waits for the article in flight to finish.
// IDs still queued are dropped; reconcile picks them up on the next run.
func (i *Indexer) Close() error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	i.wg.Wait()
	return nil
}

// ContentHash fingerprints article content for change detection.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
