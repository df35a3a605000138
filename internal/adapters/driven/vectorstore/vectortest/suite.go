// Package vectortest is a behavioural test suite shared by every VectorStore adapter.
package vectortest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) driven.VectorStore

// Run exercises the VectorStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("EnsureReadyFixesDimension", func(t *testing.T) { testEnsureReady(t, newStore(t)) })
	t.Run("UninitialisedReadsAreEmpty", func(t *testing.T) { testUninitialised(t, newStore(t)) })
	t.Run("UpsertReplacesByKey", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("DimensionMismatchLeavesDataUntouched", func(t *testing.T) { testMismatch(t, newStore(t)) })
	t.Run("ReplaceForOwner", func(t *testing.T) { testReplaceForOwner(t, newStore(t)) })
	t.Run("DeleteAndDeleteByOwner", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("QueryOrderingAndPagination", func(t *testing.T) { testPagination(t, newStore(t)) })
	t.Run("QueryFilters", func(t *testing.T) { testFilters(t, newStore(t)) })
	t.Run("MaxDistance", func(t *testing.T) { testMaxDistance(t, newStore(t)) })
	t.Run("ResetAllowsNewDimension", func(t *testing.T) { testReset(t, newStore(t)) })
	t.Run("UnknownCollection", func(t *testing.T) { testUnknownCollection(t, newStore(t)) })
}

func vec(values ...float32) []float32 {
	return values
}

func keys(hits []domain.VectorHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Key
	}
	return out
}

func testEnsureReady(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()

	require.NoError(t, s.EnsureReady(ctx, domain.CollectionChunks, 3))
	require.NoError(t, s.EnsureReady(ctx, domain.CollectionChunks, 3))

	dim, err := s.Dimension(ctx, domain.CollectionChunks)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	err = s.EnsureReady(ctx, domain.CollectionChunks, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "rebuild")

	// Collections are independent
	require.NoError(t, s.EnsureReady(ctx, domain.CollectionEntities, 4))

	err = s.EnsureReady(ctx, domain.CollectionDocuments, 0)
	assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
}

func testUninitialised(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()

	dim, err := s.Dimension(ctx, domain.CollectionDocuments)
	require.NoError(t, err)
	assert.Equal(t, 0, dim)

	hits, err := s.QuerySimilar(ctx, domain.CollectionDocuments, vec(1, 2), domain.SimilarityQuery{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)

	n, err := s.Count(ctx, domain.CollectionDocuments)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.NoError(t, s.Delete(ctx, domain.CollectionDocuments, []string{"a"}))
	assert.NoError(t, s.DeleteByOwner(ctx, domain.CollectionChunks, "a"))
	assert.NoError(t, s.ReplaceForOwner(ctx, domain.CollectionChunks, "a", nil))
	assert.NoError(t, s.Reset(ctx, domain.CollectionChunks))

	err = s.Upsert(ctx, domain.CollectionDocuments, []domain.VectorEntry{{Key: "a", Embedding: vec(1)}})
	assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
}

func testUpsert(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	require.NoError(t, s.EnsureReady(ctx, domain.CollectionDocuments, 2))

	require.NoError(t, s.Upsert(ctx, domain.CollectionDocuments, []domain.VectorEntry{
		{Key: "a", Embedding: vec(0, 0)},
		{Key: "b", Embedding: vec(5, 5)},
	}))
	require.NoError(t, s.Upsert(ctx, domain.CollectionDocuments, []domain.VectorEntry{
		{Key: "a", Embedding: vec(10, 10)},
	}))

	n, err := s.Count(ctx, domain.CollectionDocuments)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := s.QuerySimilar(ctx, domain.CollectionDocuments, vec(10, 10), domain.SimilarityQuery{TopK: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Key)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
	assert.InDelta(t, 1, hits[0].Score(), 1e-5)

	err = s.Upsert(ctx, domain.CollectionDocuments, []domain.VectorEntry{{Key: "", Embedding: vec(1, 1)}})
	assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
}

func testMismatch(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	require.NoError(t, s.EnsureReady(ctx, domain.CollectionChunks, 2))
	require.NoError(t, s.Upsert(ctx, domain.CollectionChunks, []domain.VectorEntry{
		{Key: "keep", Group: "doc", Embedding: vec(1, 1)},
	}))

	err := s.Upsert(ctx, domain.CollectionChunks, []domain.VectorEntry{
		{Key: "ok", Group: "doc", Embedding: vec(2, 2)},
		{Key: "bad", Group: "doc", Embedding: vec(1, 2, 3)},
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))

	err = s.ReplaceForOwner(ctx, domain.CollectionChunks, "doc", []domain.VectorEntry{
		{Key: "bad", Embedding: vec(1, 2, 3)},
	})
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))

	n, err := s.Count(ctx, domain.CollectionChunks)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.QuerySimilar(ctx, domain.CollectionChunks, vec(1, 2, 3), domain.SimilarityQuery{TopK: 1})
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func testReplaceForOwner(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	require.NoError(t, s.EnsureReady(ctx, domain.CollectionChunks, 2))

	require.NoError(t, s.ReplaceForOwner(ctx, domain.CollectionChunks, "a.md", []domain.VectorEntry{
		{Key: "a1", Embedding: vec(0, 1)},
		{Key: "a2", Embedding: vec(0, 2)},
	}))
	require.NoError(t, s.ReplaceForOwner(ctx, domain.CollectionChunks, "b.md", []domain.VectorEntry{
		{Key: "b1", Embedding: vec(9, 9)},
	}))
	require.NoError(t, s.ReplaceForOwner(ctx, domain.CollectionChunks, "a.md", []domain.VectorEntry{
		{Key: "a3", Embedding: vec(0, 3)},
	}))

	hits, err := s.QuerySimilar(ctx, domain.CollectionChunks, vec(0, 0), domain.SimilarityQuery{TopK: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"a3", "b1"}, keys(hits))
	assert.Equal(t, "a.md", hits[0].Group)

	require.NoError(t, s.ReplaceForOwner(ctx, domain.CollectionChunks, "a.md", nil))
	n, err := s.Count(ctx, domain.CollectionChunks)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testDelete(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	require.NoError(t, s.EnsureReady(ctx, domain.CollectionChunks, 1))
	require.NoError(t, s.Upsert(ctx, domain.CollectionChunks, []domain.VectorEntry{
		{Key: "x1", Group: "x", Embedding: vec(1)},
		{Key: "x2", Group: "x", Embedding: vec(2)},
		{Key: "y1", Group: "y", Embedding: vec(3)},
	}))

	require.NoError(t, s.Delete(ctx, domain.CollectionChunks, []string{"x1", "missing"}))
	n, err := s.Count(ctx, domain.CollectionChunks)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.DeleteByOwner(ctx, domain.CollectionChunks, "x"))
	require.NoError(t, s.DeleteByOwner(ctx, domain.CollectionChunks, "x"))
	hits, err := s.QuerySimilar(ctx, domain.CollectionChunks, vec(0), domain.SimilarityQuery{TopK: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"y1"}, keys(hits))
}

func testPagination(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	require.NoError(t, s.EnsureReady(ctx, domain.CollectionChunks, 1))

	var entries []domain.VectorEntry
	for i := 0; i < 10; i++ {
		entries = append(entries, domain.VectorEntry{Key: fmt.Sprintf("k%d", i), Embedding: vec(float32(i))})
	}
	require.NoError(t, s.Upsert(ctx, domain.CollectionChunks, entries))

	first, err := s.QuerySimilar(ctx, domain.CollectionChunks, vec(0), domain.SimilarityQuery{TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"k0", "k1", "k2"}, keys(first))

	second, err := s.QuerySimilar(ctx, domain.CollectionChunks, vec(0), domain.SimilarityQuery{TopK: 3, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"k3", "k4", "k5"}, keys(second))

	for i := 1; i < len(first); i++ {
		assert.LessOrEqual(t, first[i-1].Distance, first[i].Distance)
	}

	beyond, err := s.QuerySimilar(ctx, domain.CollectionChunks, vec(0), domain.SimilarityQuery{TopK: 3, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func testFilters(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	require.NoError(t, s.EnsureReady(ctx, domain.CollectionEntities, 1))

	var entries []domain.VectorEntry
	for i := 0; i < 12; i++ {
		group := string(domain.EntityCharacter)
		if i%4 == 0 {
			group = string(domain.EntitySetting)
		}
		entries = append(entries, domain.VectorEntry{Key: fmt.Sprintf("e%02d", i), Group: group, Embedding: vec(float32(i))})
	}
	require.NoError(t, s.Upsert(ctx, domain.CollectionEntities, entries))

	settings, err := s.QuerySimilar(ctx, domain.CollectionEntities, vec(0), domain.SimilarityQuery{
		TopK:   10,
		Groups: []string{string(domain.EntitySetting)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e00", "e04", "e08"}, keys(settings))

	characters, err := s.QuerySimilar(ctx, domain.CollectionEntities, vec(0), domain.SimilarityQuery{
		TopK:          2,
		ExcludeGroups: []string{string(domain.EntitySetting)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e01", "e02"}, keys(characters))
}

func testMaxDistance(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	require.NoError(t, s.EnsureReady(ctx, domain.CollectionDocuments, 1))
	require.NoError(t, s.Upsert(ctx, domain.CollectionDocuments, []domain.VectorEntry{
		{Key: "near", Embedding: vec(0.5)},
		{Key: "far", Embedding: vec(5)},
	}))

	// threshold 0.5 means distance at most 1
	hits, err := s.QuerySimilar(ctx, domain.CollectionDocuments, vec(0),
		domain.SimilarityQuery{TopK: 10}.WithThreshold(0.5))
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, keys(hits))
}

func testReset(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	require.NoError(t, s.EnsureReady(ctx, domain.CollectionChunks, 2))
	require.NoError(t, s.Upsert(ctx, domain.CollectionChunks, []domain.VectorEntry{{Key: "a", Embedding: vec(1, 1)}}))

	require.NoError(t, s.Reset(ctx, domain.CollectionChunks))

	dim, err := s.Dimension(ctx, domain.CollectionChunks)
	require.NoError(t, err)
	assert.Equal(t, 0, dim)

	require.NoError(t, s.EnsureReady(ctx, domain.CollectionChunks, 3))
	n, err := s.Count(ctx, domain.CollectionChunks)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testUnknownCollection(t *testing.T, s driven.VectorStore) {
	err := s.EnsureReady(context.Background(), domain.Collection("images"), 3)
	assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
}
