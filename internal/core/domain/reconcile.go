package domain

import "time"

// ReconcileReport summarises one reconcile pass.
type ReconcileReport struct {
	Scanned  int `json:"scanned"`
	Enqueued int `json:"enqueued"`
	Orphans  int `json:"orphans"`
	UpToDate int `json:"upToDate"`
}

// ReconcileRun is one scheduled reconcile pass as kept in the run log.
type ReconcileRun struct {
	StartedAt time.Time       `json:"startedAt"`
	EndedAt   time.Time       `json:"endedAt"`
	Report    ReconcileReport `json:"report"`

	// Error is empty when the pass completed.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the pass ended in an error.
func (r ReconcileRun) Failed() bool {
	return r.Error != ""
}

// DefaultReconcileSchedule runs reconcile every ten minutes.
const DefaultReconcileSchedule = "@every 10m"

// ReconcileHistoryLimit is how many runs the log keeps.
const ReconcileHistoryLimit = 100
