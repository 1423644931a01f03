// Package ledger is the domain layer of the run history: which generation runs
// happened, how they ended and which editions they produced. It has no
// infrastructure dependencies; the SQLite implementation lives in
// internal/infrastructure/sqlite.
package ledger

import (
	"context"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	// RunStatusAborted marks a run stopped by the duplicate tolerance.
	RunStatusAborted RunStatus = "aborted"
	// RunStatusFailed marks a run stopped by any other error.
	RunStatusFailed RunStatus = "failed"
)

func (s RunStatus) String() string { return string(s) }

// IsValid reports whether s is a known status.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusAborted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Run is one invocation of the generator.
type Run struct {
	ID          string // uuid
	Collection  string
	Network     string
	Seed        uint64
	Target      int // editions requested by the last configuration
	Status      RunStatus
	Editions    int // editions accepted
	Duplicates  int // duplicate draws over the whole run
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Edition is one accepted artwork.
type Edition struct {
	RunID         string
	Edition       int
	Configuration int
	DNA           string // full wire form
	Hash          string // content id
	CreatedAt     time.Time
}

// ListFilter narrows ListRuns.
type ListFilter struct {
	// Status keeps only runs in this state when set.
	Status RunStatus
	// Limit caps the result when positive.
	Limit int
}

// Repository persists runs and their editions.
type Repository interface {
	// CreateRun inserts a new run.
	CreateRun(ctx context.Context, run *Run) error
	// FinishRun records the terminal state of a run.
	FinishRun(ctx context.Context, id string, status RunStatus, editions, duplicates int, runErr error, at time.Time) error
	// RecordEdition appends an accepted edition to its run.
	RecordEdition(ctx context.Context, e *Edition) error
	// FindRun returns a run by id or a *RunNotFoundError.
	FindRun(ctx context.Context, id string) (*Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter ListFilter) ([]*Run, error)
	// ListEditions returns the editions of a run in acceptance order.
	ListEditions(ctx context.Context, runID string) ([]*Edition, error)
	Close() error
}

// RunNotFoundError is returned when a run id is unknown.
type RunNotFoundError struct {
	ID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run not found: %s", e.ID)
}
