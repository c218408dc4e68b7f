package ledger

import (
	"time"

	"github.com/lib/pq"
)

// Run statuses of a document row.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Run is one protection run: a batch invocation or a server process. All
// documents of a run share one salt, which is never recorded.
type Run struct {
	ID           string         `db:"id" json:"id"`
	Source       string         `db:"source" json:"source"`
	Categories   pq.StringArray `db:"categories" json:"categories"`
	StartedAt    time.Time      `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
	Documents    int64          `db:"documents" json:"documents"`
	Succeeded    int64          `db:"succeeded" json:"succeeded"`
	Failed       int64          `db:"failed" json:"failed"`
	Skipped      int64          `db:"skipped" json:"skipped"`
	Replacements int64          `db:"replacements" json:"replacements"`
}

// Document is the audit row of one processed document. It carries counts
// only, never original or pseudonymized values.
type Document struct {
	ID           int64     `db:"id" json:"id"`
	RunID        string    `db:"run_id" json:"run_id"`
	Path         string    `db:"path" json:"path"`
	Format       string    `db:"format" json:"format"`
	Status       string    `db:"status" json:"status"`
	Replacements int64     `db:"replacements" json:"replacements"`
	Findings     Findings  `db:"findings" json:"findings"`
	DurationMs   int64     `db:"duration_ms" json:"duration_ms"`
	Error        string    `db:"error" json:"error,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// RunSummary carries the final counters of a run.
type RunSummary struct {
	Documents    int64
	Succeeded    int64
	Failed       int64
	Skipped      int64
	Replacements int64
}

// Stats aggregates the whole ledger.
type Stats struct {
	Runs         int64 `db:"runs" json:"runs"`
	Documents    int64 `db:"documents" json:"documents"`
	Failed       int64 `db:"failed" json:"failed"`
	Replacements int64 `db:"replacements" json:"replacements"`
}
