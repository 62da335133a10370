package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/andrew-tomago/dotfiles/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when no run matches an ID.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path string
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Open creates, initializes and migrates a store in one step.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Init opens the database, creating its directory if needed.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// One writer per process; the run lock serializes processes.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordRun journals a finished run and its unit outcomes.
func (s *SQLiteStore) RecordRun(ctx context.Context, platform string, report *engine.RunReport) error {
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, platform, status, dry_run, started_at, completed_at,
			installed, present, upgraded, failed, skipped, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		platform,
		StatusOf(report),
		report.DryRun,
		report.StartedAt.UnixMilli(),
		report.CompletedAt.UnixMilli(),
		report.Counts.Installed,
		report.Counts.AlreadyPresent,
		report.Counts.Upgraded,
		report.Counts.Failed,
		report.Counts.Skipped,
		compress(blob),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO unit_outcomes (
			run_id, unit_id, kind, stage, outcome, reason, version, duration_ns, output
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare unit insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range report.Results {
		_, err := stmt.ExecContext(ctx,
			report.RunID,
			res.Unit.ID,
			res.Unit.Kind,
			res.Stage,
			res.Outcome.Kind,
			res.Outcome.Reason,
			res.Detection.Version,
			int64(res.Outcome.Duration),
			compress([]byte(res.Outcome.Output)),
		)
		if err != nil {
			return fmt.Errorf("failed to record unit %s: %w", res.Unit.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id, platform, status, dry_run, started_at, completed_at,
	installed, present, upgraded, failed, skipped`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                  Run
		startedAt, completed int64
	)
	err := row.Scan(
		&run.ID,
		&run.Platform,
		&run.Status,
		&run.DryRun,
		&startedAt,
		&completed,
		&run.Counts.Installed,
		&run.Counts.AlreadyPresent,
		&run.Counts.Upgraded,
		&run.Counts.Failed,
		&run.Counts.Skipped,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.UnixMilli(startedAt)
	run.CompletedAt = time.UnixMilli(completed)
	return &run, nil
}

// GetRun retrieves a run by ID or by an unambiguous ID prefix, such as
// the short ID printed in run summaries.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty ID", ErrRunNotFound)
	}

	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(id) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id LIKE ? ESCAPE '\' ORDER BY started_at DESC LIMIT 2`,
		pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.ID == id {
			return run, nil
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("run ID prefix %s is ambiguous", id)
	}
}

// ListRuns lists runs with pagination, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ListUnitOutcomes lists a run's unit rows in execution order.
func (s *SQLiteStore) ListUnitOutcomes(ctx context.Context, runID string) ([]*UnitOutcome, error) {
	return s.queryOutcomes(ctx, `
		SELECT run_id, unit_id, kind, stage, outcome, reason, version, duration_ns, output
		FROM unit_outcomes
		WHERE run_id = ?
		ORDER BY rowid
	`, runID)
}

// UnitHistory lists the most recent outcomes of one unit, newest first.
func (s *SQLiteStore) UnitHistory(ctx context.Context, unitID string, limit int) ([]*UnitOutcome, error) {
	return s.queryOutcomes(ctx, `
		SELECT u.run_id, u.unit_id, u.kind, u.stage, u.outcome, u.reason, u.version, u.duration_ns, u.output
		FROM unit_outcomes u
		JOIN runs r ON r.id = u.run_id
		WHERE u.unit_id = ?
		ORDER BY r.started_at DESC
		LIMIT ?
	`, unitID, limit)
}

func (s *SQLiteStore) queryOutcomes(ctx context.Context, query string, args ...interface{}) ([]*UnitOutcome, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unit outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []*UnitOutcome{}
	for rows.Next() {
		var (
			o        UnitOutcome
			duration int64
			output   []byte
		)
		err := rows.Scan(
			&o.RunID,
			&o.UnitID,
			&o.Kind,
			&o.Stage,
			&o.Outcome,
			&o.Reason,
			&o.Version,
			&duration,
			&output,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit outcome: %w", err)
		}
		o.Duration = time.Duration(duration)

		text, err := decompress(output)
		if err != nil {
			return nil, fmt.Errorf("failed to read output of %s: %w", o.UnitID, err)
		}
		o.Output = string(text)

		outcomes = append(outcomes, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unit outcomes: %w", err)
	}

	return outcomes, nil
}

// Report returns the full stored report of a run. runID may be a prefix.
func (s *SQLiteStore) Report(ctx context.Context, runID string) (*engine.RunReport, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var blob []byte
	if err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, run.ID).Scan(&blob); err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	data, err := decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report engine.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// Prune deletes all but the newest keep runs. keep <= 0 keeps everything.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const stale = `SELECT id FROM runs ORDER BY started_at DESC, id LIMIT -1 OFFSET ?`

	if _, err := tx.ExecContext(ctx, `DELETE FROM unit_outcomes WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to prune unit outcomes: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return deleted, nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
