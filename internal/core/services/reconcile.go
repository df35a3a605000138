package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
	"github.com/custodia-labs/quill/internal/core/ports/driving"
	"github.com/custodia-labs/quill/internal/logger"
)

// Ensure Reconciler implements the interface.
var _ driving.Reconciler = (*Reconciler)(nil)

// Reconciler compares the article store with recorded index state and
// re-enqueues whatever is missing, failed or stale.
type Reconciler struct {
	articles driven.ArticleStore
	states   driven.IndexStateStore
	entities driven.EntityStore
	indexer  driving.IndexService
}

// NewReconciler creates a reconciler.
func NewReconciler(
	articles driven.ArticleStore,
	states driven.IndexStateStore,
	entities driven.EntityStore,
	indexer driving.IndexService,
) *Reconciler {
	return &Reconciler{
		articles: articles,
		states:   states,
		entities: entities,
		indexer:  indexer,
	}
}

// Reconcile runs one pass.
func (r *Reconciler) Reconcile(ctx context.Context) (*domain.ReconcileReport, error) {
	ids, err := r.articles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	states, err := r.states.ListStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index state: %w", err)
	}

	byID := make(map[string]domain.ArticleIndexState, len(states))
	for _, st := range states {
		byID[st.ArticleID] = st
	}

	report := &domain.ReconcileReport{Scanned: len(ids)}
	live := make(map[string]bool, len(ids))
	for _, id := range ids {
		live[id] = true

		article, err := r.articles.Get(ctx, id)
		if err != nil {
			logger.Warn("Reconcile: failed to load %s: %v", id, err)
			continue
		}
		st, ok := byID[id]
		if ok && st.Outcome == domain.OutcomeIndexed && st.ContentHash == ContentHash(article.Content) {
			report.UpToDate++
			continue
		}
		r.indexer.EnqueueArticleForIndexing(id)
		report.Enqueued++
	}

	orphans := make(map[string]bool)
	for id := range byID {
		if !live[id] {
			orphans[id] = true
		}
	}
	if r.entities != nil {
		cards, err := r.entities.ListCards(ctx)
		if err != nil {
			logger.Warn("Reconcile: failed to list cards: %v", err)
		}
		for _, c := range cards {
			if !live[c.SourceArticleID] {
				orphans[c.SourceArticleID] = true
			}
		}
	}

	orphanIDs := make([]string, 0, len(orphans))
	for id := range orphans {
		orphanIDs = append(orphanIDs, id)
	}
	sort.Strings(orphanIDs)
	for _, id := range orphanIDs {
		if err := r.indexer.HandleDeletedArticle(ctx, id); err != nil {
			logger.Warn("Reconcile: failed to clean up %s: %v", id, err)
			continue
		}
		report.Orphans++
	}

	logger.Info("Reconcile: scanned %d, enqueued %d, removed %d orphans",
		report.Scanned, report.Enqueued, report.Orphans)
	return report, nil
}
