// Package postprocessors turns an article into its derived chunks and entity card.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// Stage is one step of the pipeline. Stages fill in parts of the derived bundle.
type Stage interface {
	// Name returns the stage name for logging and configuration.
	Name() string

	// Process updates derived from article.
	Process(ctx context.Context, article *domain.Article, derived *domain.Derived) error
}

// Pipeline chains multiple Stages and runs them in order.
// It implements the ArticleProcessor interface.
type Pipeline struct {
	stages []Stage
}

var _ driven.ArticleProcessor = (*Pipeline)(nil)

// NewPipeline creates a new processing pipeline with the given stages.
// Stages are executed in the order provided.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{
		stages: stages,
	}
}

// Process runs the article through all stages in order.
func (p *Pipeline) Process(ctx context.Context, article *domain.Article) (*domain.Derived, error) {
	if article == nil {
		return nil, fmt.Errorf("article is nil")
	}

	derived := &domain.Derived{}
	for _, stage := range p.stages {
		if err := stage.Process(ctx, article, derived); err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
	}

	return derived, nil
}

// Add appends a stage to the pipeline.
func (p *Pipeline) Add(stage Stage) {
	p.stages = append(p.stages, stage)
}

// Len returns the number of stages in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.stages)
}
