package domain

import "time"

// IndexerState is the drain loop state.
type IndexerState string

// Indexer states.
const (
	IndexerIdle     IndexerState = "idle"
	IndexerDraining IndexerState = "draining"
)

// IndexStatus is a snapshot of the indexer.
type IndexStatus struct {
	State     IndexerState `json:"state"`
	Pending   int          `json:"pending"`
	InFlight  string       `json:"inFlight,omitempty"`
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	LastError string       `json:"lastError,omitempty"`
}

// IndexOutcome records whether the last index attempt of an article succeeded.
type IndexOutcome string

// Index outcomes.
const (
	OutcomeIndexed IndexOutcome = "indexed"
	OutcomeFailed  IndexOutcome = "failed"
)

// ArticleIndexState is the persisted result of the last attempt to index an article.
type ArticleIndexState struct {
	ArticleID   string
	ContentHash string
	ChunkCount  int
	Outcome     IndexOutcome
	Error       string
	IndexedAt   time.Time
}
