package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quill/internal/core/domain"
)

func TestReconciler_Reconcile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := NewReconciler(h.articles, h.states, h.entities, h.indexer)

	h.put(t, "a.md", "Para one.")
	h.put(t, "b.md", "---\ntype: setting\nname: Harbour\n---\nGulls.")

	report, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileReport{Scanned: 2, Enqueued: 2}, *report)
	h.wait(t)

	// Nothing changed
	report, err = r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileReport{Scanned: 2, UpToDate: 2}, *report)

	// Edited content is stale
	h.put(t, "a.md", "Para one, revised.")
	report, err = r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enqueued)
	assert.Equal(t, 1, report.UpToDate)
	h.wait(t)

	// Deleted behind the indexer's back
	require.NoError(t, h.articles.Delete(ctx, "b.md"))
	report, err = r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileReport{Scanned: 1, UpToDate: 1, Orphans: 1}, *report)

	assert.Empty(t, h.chunkIDs(t, "b.md"))
	card, err := h.entities.GetBySource(ctx, "b.md")
	require.NoError(t, err)
	assert.Nil(t, card)
	assert.Equal(t, 0, h.count(t, domain.CollectionEntities))
}

func TestReconciler_RetriesFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := NewReconciler(h.articles, h.states, h.entities, h.indexer)

	h.embedder.failOn = "poison"
	h.index(t, "a.md", "Some poison.")
	require.Equal(t, 1, h.indexer.Status().Failed)

	h.embedder.failOn = ""
	report, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enqueued)
	h.wait(t)

	state, err := h.states.GetState(ctx, "a.md")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, domain.OutcomeIndexed, state.Outcome)
}
