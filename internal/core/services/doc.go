// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The Indexer owns the single drain loop that keeps chunks, vectors and
// entity cards in step with the article store; RetrievalService reads them
// back under a character budget.
package services
