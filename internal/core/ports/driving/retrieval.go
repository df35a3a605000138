package driving

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// RetrievalService assembles bounded context for a query.
type RetrievalService interface {
	// Retrieve returns entity cards and passages within budget.
	Retrieve(ctx context.Context, query string, budget domain.Budget) (*domain.RetrievalResult, error)
}
