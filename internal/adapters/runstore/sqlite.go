package runstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pingup/pingup/internal/workflow"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLite is the durable RunStore. Run state and step logs are held
// only here, never in process memory across a suspension, so any
// process opening the same file can claim and resume parked runs.
type SQLite struct {
	// ClaimLease bounds how long a claim is honored before the run is
	// reclaimable. Tests shorten it.
	ClaimLease time.Duration

	db *sql.DB
}

// NewSQLite opens (creating if needed) the run database at dbPath and
// applies pending migrations. WAL mode keeps claim transactions from
// blocking readers; immediate transactions take the write lock up
// front so two schedulers sharing the file cannot claim the same rows.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating run store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening run database: %w", err)
	}

	s := &SQLite{ClaimLease: DefaultClaimLease, db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet; run initial migration.
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// CreateRun implements workflow.RunStore. Runs carrying a dedupe key
// are inserted with OR IGNORE against the unique (workflow, key)
// index, so a redelivered trigger event creates no second run.
func (s *SQLite) CreateRun(ctx context.Context, run *workflow.Run) (bool, error) {
	var dedupe any
	if run.DedupeKey != "" {
		dedupe = run.DedupeKey
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO workflow_runs
			(id, workflow, trigger_event, dedupe_key, payload, status,
			 suspend_until, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, 0, '', ?, ?)`,
		run.ID, run.Workflow, run.TriggerEvent, dedupe, string(run.Payload),
		string(run.Status), toMillis(run.CreatedAt), toMillis(run.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("inserting run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimDue implements workflow.RunStore. The select-then-update runs
// in one immediate transaction, which holds SQLite's single write
// lock for the duration and so keeps concurrent schedulers sharing
// the file from claiming the same rows. Running rows whose claim is
// older than the lease are reclaimed; their worker died before it
// could settle them.
func (s *SQLite) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*workflow.Run, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, workflow, trigger_event, COALESCE(dedupe_key, ''), payload,
		       status, suspend_until, attempts, last_error, created_at, updated_at
		FROM workflow_runs
		WHERE status = ?
		   OR (status = ? AND suspend_until <= ?)
		   OR (status = ? AND updated_at <= ?)
		ORDER BY created_at
		LIMIT ?`,
		string(workflow.StatusPending),
		string(workflow.StatusSuspended), toMillis(now),
		string(workflow.StatusRunning), toMillis(now.Add(-s.ClaimLease)),
		limit)
	if err != nil {
		return nil, fmt.Errorf("selecting due runs: %w", err)
	}

	var claimed []*workflow.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, run := range claimed {
		if _, err := tx.ExecContext(ctx, `
			UPDATE workflow_runs
			SET status = ?, suspend_until = NULL, updated_at = ?
			WHERE id = ?`,
			string(workflow.StatusRunning), toMillis(now), run.ID); err != nil {
			return nil, fmt.Errorf("claiming run %s: %w", run.ID, err)
		}
		run.Status = workflow.StatusRunning
		run.SuspendUntil = nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return claimed, nil
}

// Park implements workflow.RunStore.
func (s *SQLite) Park(ctx context.Context, runID string, until time.Time, attempts int, lastErr string) error {
	return s.settle(ctx, runID, `
		UPDATE workflow_runs
		SET status = ?, suspend_until = ?, attempts = ?, last_error = ?,
		    updated_at = CAST(strftime('%s', 'now') AS INTEGER) * 1000
		WHERE id = ?`,
		string(workflow.StatusSuspended), toMillis(until), attempts, lastErr, runID)
}

// Complete implements workflow.RunStore.
func (s *SQLite) Complete(ctx context.Context, runID string) error {
	return s.settle(ctx, runID, `
		UPDATE workflow_runs
		SET status = ?, suspend_until = NULL, last_error = '',
		    updated_at = CAST(strftime('%s', 'now') AS INTEGER) * 1000
		WHERE id = ?`,
		string(workflow.StatusCompleted), runID)
}

// Fail implements workflow.RunStore.
func (s *SQLite) Fail(ctx context.Context, runID string, attempts int, lastErr string) error {
	return s.settle(ctx, runID, `
		UPDATE workflow_runs
		SET status = ?, suspend_until = NULL, attempts = ?, last_error = ?,
		    updated_at = CAST(strftime('%s', 'now') AS INTEGER) * 1000
		WHERE id = ?`,
		string(workflow.StatusFailed), attempts, lastErr, runID)
}

func (s *SQLite) settle(ctx context.Context, runID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return workflow.ErrRunNotFound
	}
	return nil
}

// AppendStep implements workflow.RunStore.
func (s *SQLite) AppendStep(ctx context.Context, runID, name string, output json.RawMessage, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_steps (run_id, name, output, completed_at)
		VALUES (?, ?, ?, ?)`,
		runID, name, string(output), toMillis(at))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "PRIMARY") {
			return fmt.Errorf("runstore: step %q already recorded for run %s", name, runID)
		}
		return fmt.Errorf("recording step %q: %w", name, err)
	}
	return nil
}

// Steps implements workflow.RunStore.
func (s *SQLite) Steps(ctx context.Context, runID string) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, output FROM workflow_steps WHERE run_id = ?", runID)
	if err != nil {
		return nil, fmt.Errorf("loading step log: %w", err)
	}
	defer rows.Close()

	log := make(map[string]json.RawMessage)
	for rows.Next() {
		var name, output string
		if err := rows.Scan(&name, &output); err != nil {
			return nil, err
		}
		log[name] = json.RawMessage(output)
	}
	return log, rows.Err()
}

// GetRun implements workflow.RunStore.
func (s *SQLite) GetRun(ctx context.Context, runID string) (*workflow.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow, trigger_event, COALESCE(dedupe_key, ''), payload,
		       status, suspend_until, attempts, last_error, created_at, updated_at
		FROM workflow_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, workflow.ErrRunNotFound
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*workflow.Run, error) {
	var (
		run          workflow.Run
		payload      string
		status       string
		suspendUntil sql.NullInt64
		createdAt    int64
		updatedAt    int64
	)
	err := row.Scan(&run.ID, &run.Workflow, &run.TriggerEvent, &run.DedupeKey,
		&payload, &status, &suspendUntil, &run.Attempts, &run.LastError,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	run.Payload = json.RawMessage(payload)
	run.Status = workflow.Status(status)
	if suspendUntil.Valid {
		t := fromMillis(suspendUntil.Int64)
		run.SuspendUntil = &t
	}
	run.CreatedAt = fromMillis(createdAt)
	run.UpdatedAt = fromMillis(updatedAt)
	return &run, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
