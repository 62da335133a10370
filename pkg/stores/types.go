package stores

import (
	"context"
	"time"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// RunStatus summarizes how a run ended.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// StatusOf derives the status recorded for a report.
func StatusOf(report *engine.RunReport) RunStatus {
	switch {
	case report.Cancelled:
		return RunStatusCancelled
	case report.HasFailures():
		return RunStatusFailed
	default:
		return RunStatusSucceeded
	}
}

// Run is one journaled convergence run.
type Run struct {
	ID          string        `json:"id"`
	Platform    string        `json:"platform"`
	Status      RunStatus     `json:"status"`
	DryRun      bool          `json:"dry_run,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Counts      engine.Counts `json:"counts"`
}

// Duration returns the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// UnitOutcome is one unit's row in a journaled run.
type UnitOutcome struct {
	RunID    string             `json:"run_id"`
	UnitID   string             `json:"unit_id"`
	Kind     engine.SourceKind  `json:"kind"`
	Stage    int                `json:"stage"`
	Outcome  engine.OutcomeKind `json:"outcome"`
	Reason   string             `json:"reason,omitempty"`
	Version  string             `json:"version,omitempty"`
	Duration time.Duration      `json:"duration"`
	Output   string             `json:"output,omitempty"`
}

// Store defines the interface for the history journal.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// RecordRun journals a finished run and its unit outcomes atomically.
	RecordRun(ctx context.Context, platform string, report *engine.RunReport) error

	// GetRun retrieves a run by ID or by an unambiguous ID prefix.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns lists runs, newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// ListUnitOutcomes lists a run's unit rows in execution order.
	ListUnitOutcomes(ctx context.Context, runID string) ([]*UnitOutcome, error)

	// UnitHistory lists the most recent outcomes of one unit across runs.
	UnitHistory(ctx context.Context, unitID string, limit int) ([]*UnitOutcome, error)

	// Report returns the full stored report of a run.
	Report(ctx context.Context, runID string) (*engine.RunReport, error)

	// Prune deletes all but the newest keep runs.
	Prune(ctx context.Context, keep int) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
