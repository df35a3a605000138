// Package sqlite is the structural store, and the primary article store,
// on modernc.org/sqlite (pure Go, no cgo). One connection to quill.db
// backs every port:
//
//   - ArticleStore: The primary article store
//   - KeywordSearch: FTS5 ranked search over article content
//   - ChunkStore: Paragraph chunks, replaced per article in one transaction
//   - EntityStore: Character and setting cards
//   - IndexStateStore: Outcome of the last index attempt per article
//   - ReconcileLog: Outcome of scheduled reconcile passes
//
// # Schema
//
// Versioned migrations live in migrations/ as NNN_name.up.sql and
// NNN_name.down.sql pairs and are applied in order on open. A database
// migrated past the newest known version is refused. articles_fts is kept
// in step with articles by triggers.
//
// # Data Location
//
// The file is <data_dir>/quill.db, opened in WAL mode with a busy timeout.
// Vectors live in a separate file owned by the sqlitevec adapter.
package sqlite
