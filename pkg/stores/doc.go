// Package stores keeps the run history journal in SQLite.
//
// Every apply appends one row to runs and one row per unit to
// unit_outcomes. The full report and captured failure output are stored
// zstd-compressed. The journal is write-only from the engine's point of
// view: convergence decisions always come from probing the machine.
package stores
