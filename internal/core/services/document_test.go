package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quill/internal/core/domain"
)

func TestArticleService_PutIndexes(t *testing.T) {
	h := newHarness(t)
	svc := NewArticleService(h.articles, h.chunks, h.indexer)
	ctx := context.Background()

	require.NoError(t, svc.Put(ctx, "a.md", "Para one.\n\nPara two."))
	h.wait(t)

	article, err := svc.Get(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "Para one.\n\nPara two.", article.Content)
	assert.False(t, article.UpdatedAt.IsZero())

	chunks, err := svc.Chunks(ctx, "a.md")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	ids, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, ids)
}

func TestArticleService_Delete(t *testing.T) {
	h := newHarness(t)
	svc := NewArticleService(h.articles, h.chunks, h.indexer)
	ctx := context.Background()

	require.NoError(t, svc.Put(ctx, "a.md", "Para one."))
	h.wait(t)
	require.NoError(t, svc.Delete(ctx, "a.md"))

	_, err := svc.Get(ctx, "a.md")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Chunks(ctx, "a.md")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, h.chunkIDs(t, "a.md"))
	assert.Equal(t, 0, h.count(t, domain.CollectionChunks))

	// Deleting a missing article is not an error
	assert.NoError(t, svc.Delete(ctx, "a.md"))
}

func TestArticleService_InvalidID(t *testing.T) {
	h := newHarness(t)
	svc := NewArticleService(h.articles, h.chunks, h.indexer)

	tests := []struct {
		name string
		call func() error
	}{
		{name: "put", call: func() error { return svc.Put(context.Background(), " ", "x") }},
		{name: "delete", call: func() error { return svc.Delete(context.Background(), "") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(tt.call()))
		})
	}
}
