// Package sqlitevec implements the vector store on sqlite-vec vec0 tables.
//
// Each collection is a pair of tables: vec_<name> is the vec0 virtual table
// holding embeddings under an integer entry ID, and vec_<name>_keys maps that
// ID to the string key and group. Collection dimensions live in
// vector_collections and are fixed until Reset.
package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// maxKNN is the largest k sqlite-vec accepts in a single KNN query.
const maxKNN = 4096

const metaSchema = `
CREATE TABLE IF NOT EXISTS vector_collections (
    name       TEXT PRIMARY KEY,
    dimension  INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a driven.VectorStore backed by a dedicated SQLite file.
type Store struct {
	db *sql.DB

	// mu serialises writers; readers go straight to the database.
	mu sync.Mutex
}

var _ driven.VectorStore = (*Store)(nil)

// NewStore opens (or creates) vectors.db in dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, "vectors.db")

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("opening vector database: %w", err)
	}

	if _, err := db.Exec(metaSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vector schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureReady creates the collection at dim or verifies its recorded dimension.
func (s *Store) EnsureReady(ctx context.Context, c domain.Collection, dim int) error {
	if err := validCollection(c); err != nil {
		return err
	}
	if dim <= 0 {
		return domain.NewError(domain.CodeInvalidArgument, "ensure ready",
			fmt.Errorf("%w: dimension %d", domain.ErrInvalidArgument, dim))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	have, err := dimensionOf(ctx, tx, c)
	if err != nil {
		return err
	}
	if have != 0 && have != dim {
		return &domain.ConflictError{Collection: c, Have: have, Want: dim}
	}

	if have == 0 {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO vector_collections (name, dimension) VALUES (?, ?)", string(c), dim); err != nil {
			return fmt.Errorf("recording dimension: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id  INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			grp TEXT NOT NULL DEFAULT ''
		)`, keysTable(c))); err != nil {
		return fmt.Errorf("creating key table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_grp ON %s (grp)", keysTable(c), keysTable(c))); err != nil {
		return fmt.Errorf("creating group index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
			entry_id INTEGER PRIMARY KEY,
			embedding FLOAT[%d]
		)`, vecTable(c), dim)); err != nil {
		return fmt.Errorf("creating vec0 table: %w", err)
	}

	return tx.Commit()
}

// Dimension returns the recorded dimension, or 0 if the collection is new.
func (s *Store) Dimension(ctx context.Context, c domain.Collection) (int, error) {
	if err := validCollection(c); err != nil {
		return 0, err
	}
	return dimensionOf(ctx, s.db, c)
}

// Upsert replaces entries by key in one transaction.
func (s *Store) Upsert(ctx context.Context, c domain.Collection, entries []domain.VectorEntry) error {
	return s.write(ctx, c, "upsert", entries, nil)
}

// ReplaceForOwner deletes the owner's entries and inserts the new set in one transaction.
func (s *Store) ReplaceForOwner(ctx context.Context, c domain.Collection, owner string, entries []domain.VectorEntry) error {
	owned := make([]domain.VectorEntry, len(entries))
	for i, e := range entries {
		e.Group = owner
		owned[i] = e
	}
	return s.write(ctx, c, "replace for owner", owned, func(ctx context.Context, tx *sql.Tx) error {
		return deleteWhere(ctx, tx, c, "grp = ?", owner)
	})
}

// write validates entries, runs prepare (if any), then inserts entries, all in one transaction.
func (s *Store) write(ctx context.Context, c domain.Collection, op string, entries []domain.VectorEntry,
	prepare func(context.Context, *sql.Tx) error) error {
	if err := validCollection(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := dimensionOf(ctx, s.db, c)
	if err != nil {
		return err
	}
	if dim == 0 {
		if len(entries) == 0 {
			return nil
		}
		return domain.NewError(domain.CodeInvalidArgument, op,
			fmt.Errorf("%w: collection %s is not initialised", domain.ErrInvalidArgument, c))
	}

	blobs := make([][]byte, len(entries))
	for i, e := range entries {
		if e.Key == "" {
			return domain.NewError(domain.CodeInvalidArgument, op,
				fmt.Errorf("%w: empty vector key", domain.ErrInvalidArgument))
		}
		if len(e.Embedding) != dim {
			return &domain.ConflictError{Collection: c, Have: dim, Want: len(e.Embedding)}
		}
		blob, err := sqlite_vec.SerializeFloat32(e.Embedding)
		if err != nil {
			return fmt.Errorf("serialising embedding: %w", err)
		}
		blobs[i] = blob
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if prepare != nil {
		if err := prepare(ctx, tx); err != nil {
			return err
		}
	}

	for i, e := range entries {
		if err := deleteWhere(ctx, tx, c, "key = ?", e.Key); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (key, grp) VALUES (?, ?)", keysTable(c)), e.Key, e.Group)
		if err != nil {
			return fmt.Errorf("inserting vector key: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading entry id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (entry_id, embedding) VALUES (?, ?)", vecTable(c)), id, blobs[i]); err != nil {
			return fmt.Errorf("inserting embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes entries by key. A collection that was never initialised is a no-op.
func (s *Store) Delete(ctx context.Context, c domain.Collection, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.remove(ctx, c, func(ctx context.Context, tx *sql.Tx) error {
		for _, key := range keys {
			if err := deleteWhere(ctx, tx, c, "key = ?", key); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteByOwner removes every entry in a group.
func (s *Store) DeleteByOwner(ctx context.Context, c domain.Collection, owner string) error {
	return s.remove(ctx, c, func(ctx context.Context, tx *sql.Tx) error {
		return deleteWhere(ctx, tx, c, "grp = ?", owner)
	})
}

func (s *Store) remove(ctx context.Context, c domain.Collection, fn func(context.Context, *sql.Tx) error) error {
	if err := validCollection(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := tableExists(ctx, s.db, keysTable(c))
	if err != nil || !exists {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// QuerySimilar runs a KNN query, widening k until the filters leave enough hits.
func (s *Store) QuerySimilar(ctx context.Context, c domain.Collection, vector []float32, q domain.SimilarityQuery) ([]domain.VectorHit, error) {
	if err := validCollection(c); err != nil {
		return nil, err
	}
	if q.TopK <= 0 {
		return nil, nil
	}

	dim, err := dimensionOf(ctx, s.db, c)
	if err != nil || dim == 0 {
		return nil, err
	}
	if len(vector) != dim {
		return nil, &domain.ConflictError{Collection: c, Have: dim, Want: len(vector)}
	}

	total, err := s.Count(ctx, c)
	if err != nil || total == 0 {
		return nil, err
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serialising query: %w", err)
	}

	need := q.Offset + q.TopK
	limit := min(total, maxKNN)
	filtered := len(q.Groups) > 0 || len(q.ExcludeGroups) > 0
	k := min(need, limit)
	if filtered {
		k = min(need*2, limit)
	}

	include := toSet(q.Groups)
	exclude := toSet(q.ExcludeGroups)

	for {
		raw, err := s.knn(ctx, c, blob, k)
		if err != nil {
			return nil, err
		}

		hits := make([]domain.VectorHit, 0, len(raw))
		exhausted := len(raw) < k
		for _, h := range raw {
			if q.HasMaxDistance && h.Distance > q.MaxDistance {
				exhausted = true
				break
			}
			if len(include) > 0 && !include[h.Group] {
				continue
			}
			if exclude[h.Group] {
				continue
			}
			hits = append(hits, h)
		}

		if len(hits) >= need || exhausted || k >= limit {
			return page(hits, q.Offset, q.TopK), nil
		}
		k = min(k*2, limit)
	}
}

func (s *Store) knn(ctx context.Context, c domain.Collection, blob []byte, k int) ([]domain.VectorHit, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.key, m.grp, v.distance
		FROM %s v
		JOIN %s m ON m.id = v.entry_id
		WHERE v.embedding MATCH ?
		  AND k = ?
		ORDER BY v.distance, m.key
	`, vecTable(c), keysTable(c)), blob, k)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c, err)
	}
	defer rows.Close()

	var hits []domain.VectorHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var h domain.VectorHit
		if err := rows.Scan(&h.Key, &h.Group, &h.Distance); err != nil {
			return nil, fmt.Errorf("scanning vector hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector hits: %w", err)
	}
	return hits, nil
}

// Reset drops the collection tables and forgets its dimension.
func (s *Store) Reset(ctx context.Context, c domain.Collection) error {
	if err := validCollection(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS " + vecTable(c),
		"DROP TABLE IF EXISTS " + keysTable(c),
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("resetting %s: %w", c, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM vector_collections WHERE name = ?", string(c)); err != nil {
		return fmt.Errorf("forgetting dimension: %w", err)
	}
	return tx.Commit()
}

// Count returns the number of entries in the collection.
func (s *Store) Count(ctx context.Context, c domain.Collection) (int, error) {
	if err := validCollection(c); err != nil {
		return 0, err
	}
	exists, err := tableExists(ctx, s.db, keysTable(c))
	if err != nil || !exists {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+keysTable(c)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", c, err)
	}
	return n, nil
}

// ==================== Helper Functions ====================

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func dimensionOf(ctx context.Context, q querier, c domain.Collection) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, "SELECT dimension FROM vector_collections WHERE name = ?", string(c)).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading dimension of %s: %w", c, err)
	}
	return dim, nil
}

func tableExists(ctx context.Context, q querier, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}

// deleteWhere removes the vec0 rows and key rows matching a keys-table predicate.
// vec0 rows are deleted one entry ID at a time.
func deleteWhere(ctx context.Context, tx *sql.Tx, c domain.Collection, predicate string, arg any) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE %s", keysTable(c), predicate), arg)
	if err != nil {
		return fmt.Errorf("selecting vector keys: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning entry id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating vector keys: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE entry_id = ?", vecTable(c)), id); err != nil {
			return fmt.Errorf("deleting embedding: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE %s", keysTable(c), predicate), arg); err != nil {
		return fmt.Errorf("deleting vector keys: %w", err)
	}
	return nil
}

func validCollection(c domain.Collection) error {
	if !c.IsValid() {
		return domain.NewError(domain.CodeInvalidArgument, "vector store",
			fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidArgument, c))
	}
	return nil
}

func vecTable(c domain.Collection) string {
	return "vec_" + string(c)
}

func keysTable(c domain.Collection) string {
	return "vec_" + string(c) + "_keys"
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func page(hits []domain.VectorHit, offset, size int) []domain.VectorHit {
	if offset >= len(hits) {
		return []domain.VectorHit{}
	}
	end := offset + size
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end]
}
