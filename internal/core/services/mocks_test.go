package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quill/internal/adapters/driven/embedding/hash"
	storemem "github.com/custodia-labs/quill/internal/adapters/driven/storage/memory"
	vecmem "github.com/custodia-labs/quill/internal/adapters/driven/vectorstore/memory"
	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/postprocessors"
)

// --- Mock implementations for service testing ---

// fakeEmbedder implements driven.Embedder with fixed or hashed vectors.
type fakeEmbedder struct {
	mu      sync.Mutex
	dim     int
	hash    *hash.Backend
	vectors map[string][]float32
	failOn  string
	err     error
	calls   int
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, hash: hash.New(), vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) Encode(_ context.Context, texts []string, _ string) (*domain.Embeddings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	out := &domain.Embeddings{Dimension: f.dim, Vectors: make([][]float32, len(texts))}
	for i, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, domain.NewError(domain.CodeModelNotReady, "encode", domain.ErrModelNotReady)
		}
		if v, ok := f.vectors[text]; ok {
			out.Vectors[i] = v
			continue
		}
		out.Vectors[i] = f.hash.Vector(text, f.dim)
	}
	return out, nil
}

func (f *fakeEmbedder) Close() error { return nil }

func (f *fakeEmbedder) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// harness wires an indexer over in-memory stores.
type harness struct {
	articles *storemem.ArticleStore
	chunks   *storemem.ChunkStore
	entities *storemem.EntityStore
	states   *storemem.IndexStateStore
	vectors  *vecmem.Store
	embedder *fakeEmbedder
	indexer  *Indexer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		articles: storemem.NewArticleStore(),
		chunks:   storemem.NewChunkStore(),
		entities: storemem.NewEntityStore(),
		states:   storemem.NewIndexStateStore(),
		vectors:  vecmem.NewStore(),
		embedder: newFakeEmbedder(16),
	}
	h.indexer = NewIndexer(IndexerDeps{
		Articles:  h.articles,
		Chunks:    h.chunks,
		Entities:  h.entities,
		States:    h.states,
		Vectors:   h.vectors,
		Embedder:  h.embedder,
		Processor: postprocessors.NewDefaultPipeline(),
	}, IndexerConfig{EmbedBatch: 2})
	t.Cleanup(func() { _ = h.indexer.Close() })
	return h
}

// put stores an article without notifying the indexer.
func (h *harness) put(t *testing.T, id, content string) {
	t.Helper()
	require.NoError(t, h.articles.Put(context.Background(), domain.Article{ID: id, Content: content}))
}

// index stores, enqueues and waits for an article.
func (h *harness) index(t *testing.T, id, content string) {
	t.Helper()
	h.put(t, id, content)
	h.indexer.EnqueueArticleForIndexing(id)
	h.wait(t)
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.indexer.Wait(ctx))
}

func (h *harness) count(t *testing.T, c domain.Collection) int {
	t.Helper()
	n, err := h.vectors.Count(context.Background(), c)
	require.NoError(t, err)
	return n
}

func (h *harness) chunkIDs(t *testing.T, articleID string) []string {
	t.Helper()
	chunks, err := h.chunks.GetChunks(context.Background(), articleID)
	require.NoError(t, err)
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}

// fakeReconciler implements driving.Reconciler for scheduler tests.
type fakeReconciler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeReconciler) Reconcile(_ context.Context) (*domain.ReconcileReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ReconcileReport{Scanned: 3, Enqueued: 2, Orphans: 1}, nil
}

func (f *fakeReconciler) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
