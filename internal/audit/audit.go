// Package audit persists the append-only trail of push attempts,
// validation summaries and metrics in SQLite. Rows are inserted and read,
// never updated or deleted.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the append-only audit store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the audit database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// Single writer keeps SQLite happy.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return s, nil
}

// Path returns the database location, printed to the operator after a
// successful push.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS push_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			branch TEXT NOT NULL,
			remote TEXT NOT NULL,
			version TEXT,
			attempt_number INTEGER NOT NULL,
			phase TEXT NOT NULL,
			outcome TEXT,
			detail TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_branch_remote
			ON push_attempts(branch, remote, id DESC)`,
		`CREATE TABLE IF NOT EXISTS validation_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			branch TEXT NOT NULL,
			overall TEXT NOT NULL,
			failed_stages TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event TEXT NOT NULL,
			branch TEXT NOT NULL,
			remote TEXT,
			duration_seconds REAL NOT NULL,
			success INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// AppendAttempt writes one attempt record and returns its row id.
func (s *Store) AppendAttempt(ctx context.Context, rec *AttemptRecord) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO push_attempts
		(branch, remote, version, attempt_number, phase, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Branch,
		rec.Remote,
		rec.Version,
		rec.AttemptNumber,
		string(rec.Phase),
		string(rec.Outcome),
		rec.Detail,
		now(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append attempt record: %w", err)
	}
	return result.LastInsertId()
}

// AppendReport writes one validation report summary.
func (s *Store) AppendReport(ctx context.Context, rec *ReportRecord) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_reports (branch, overall, failed_stages, created_at)
		VALUES (?, ?, ?, ?)
	`, rec.Branch, rec.Overall, rec.FailedStages, now())
	if err != nil {
		return 0, fmt.Errorf("failed to append validation report: %w", err)
	}
	return result.LastInsertId()
}

// AppendMetric writes one metrics record.
func (s *Store) AppendMetric(ctx context.Context, rec *MetricRecord) error {
	success := 0
	if rec.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (event, branch, remote, duration_seconds, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Event, rec.Branch, rec.Remote, rec.DurationSeconds, success, now())
	if err != nil {
		return fmt.Errorf("failed to append metric: %w", err)
	}
	return nil
}

// RecentAttempts returns the newest attempt records, most recent first.
func (s *Store) RecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error) {
	return s.queryAttempts(ctx, `
		SELECT id, branch, remote, version, attempt_number, phase, outcome, detail, created_at
		FROM push_attempts ORDER BY id DESC LIMIT ?
	`, limit)
}

// AttemptsForBranch returns attempt records for one branch.
func (s *Store) AttemptsForBranch(ctx context.Context, branch string, limit int) ([]AttemptRecord, error) {
	return s.queryAttempts(ctx, `
		SELECT id, branch, remote, version, attempt_number, phase, outcome, detail, created_at
		FROM push_attempts WHERE branch = ? ORDER BY id DESC LIMIT ?
	`, branch, limit)
}

func (s *Store) queryAttempts(ctx context.Context, query string, args ...any) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var records []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		var phase, outcome, createdAt string
		var version, detail sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Branch, &rec.Remote, &version,
			&rec.AttemptNumber, &phase, &outcome, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt record: %w", err)
		}
		rec.Version = version.String
		rec.Detail = detail.String
		rec.Phase = Phase(phase)
		rec.Outcome = Outcome(outcome)
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Summarize aggregates terminal outcomes across all result records.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM push_attempts
		WHERE phase = ? GROUP BY outcome
	`, string(PhaseResult))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize attempts: %w", err)
	}
	defer rows.Close()

	summary := &Summary{ByOutcome: make(map[string]int)}
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary.ByOutcome[outcome] = count
		summary.TotalAttempts += count
	}
	return summary, rows.Err()
}
