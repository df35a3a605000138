package mcp

import (
	"github.com/custodia-labs/quill/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Retrieval answers the retrieve tool.
	Retrieval driving.RetrievalService

	// Articles backs the article resources. Optional.
	Articles driving.ArticleService

	// Index backs the index_status tool. Optional.
	Index driving.IndexService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
