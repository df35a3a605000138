// Package domain defines the core business entities for Quill's retrieval engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Article: A document owned by the primary store (read-only to the core)
//   - Chunk: A paragraph-sized retrieval unit derived from an article
//   - EntityCard: A character or setting card derived from front matter
//   - VectorEntry: One embedding row in a vector collection
//   - Budget / RetrievalResult: The bounded output of a retrieval call
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
