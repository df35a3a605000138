// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - ArticleStore: Read access to the primary article store
//   - ChunkStore: Chunk persistence, replaced wholesale per article
//   - EntityStore: Entity card persistence
//   - IndexStateStore: Per-article outcome of the last index attempt
//   - VectorStore: The documents, chunks and entities collections
//   - Embedder: Text to vector conversion
//   - ArticleProcessor: Pure chunking and entity extraction
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - KeywordSearch: Full-text recall. Without it, retrieval has no keyword fallback.
//   - EmbeddingCache: Memoises embeddings. Without it, every call reaches the worker.
//   - ReconcileLog: Outcome of scheduled reconcile passes.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
