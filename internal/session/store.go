// Package session persists the state that must survive daemon restarts:
// the stored sequence number, the downloads-today count, and the job code
// history. Writes happen only at the conclusion of a download cycle, or at
// shutdown if a cycle was interrupted.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"carousel/internal/stage"
)

// Store manages session persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database and applies
// migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Sequences loads the persisted sequence state. The downloads-today count
// resets implicitly when the stored day is not today.
func (s *Store) Sequences(ctx context.Context) (stage.SequenceState, error) {
	var state stage.SequenceState

	err := s.db.QueryRowContext(ctx, "SELECT stored_number FROM sequences WHERE id = 1").Scan(&state.StoredNumber)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return state, fmt.Errorf("read stored sequence: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT count FROM downloads_today WHERE day = ?", today()).Scan(&state.DownloadsToday)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return state, fmt.Errorf("read downloads today: %w", err)
	}
	return state, nil
}

// SaveSequences persists the sequence state at the end of a download cycle.
func (s *Store) SaveSequences(ctx context.Context, state stage.SequenceState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sequence tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sequences (id, stored_number, updated_at) VALUES (1, ?, ?)
         ON CONFLICT(id) DO UPDATE SET stored_number = excluded.stored_number, updated_at = excluded.updated_at`,
		state.StoredNumber, now); err != nil {
		return fmt.Errorf("save stored sequence: %w", err)
	}

	day := today()
	if _, err := tx.ExecContext(ctx, "DELETE FROM downloads_today WHERE day <> ?", day); err != nil {
		return fmt.Errorf("prune stale download days: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO downloads_today (day, count) VALUES (?, ?)
         ON CONFLICT(day) DO UPDATE SET count = excluded.count`,
		day, state.DownloadsToday); err != nil {
		return fmt.Errorf("save downloads today: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sequence tx: %w", err)
	}
	return nil
}

// JobCodes loads the job code history, most recent first.
func (s *Store) JobCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT code FROM job_codes ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("read job codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan job code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// SaveJobCodes replaces the job code history with the given ordering.
func (s *Store) SaveJobCodes(ctx context.Context, codes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin job code tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM job_codes"); err != nil {
		return fmt.Errorf("clear job codes: %w", err)
	}
	for i, code := range codes {
		if _, err := tx.ExecContext(ctx, "INSERT INTO job_codes (code, position) VALUES (?, ?)", code, i); err != nil {
			return fmt.Errorf("insert job code: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit job code tx: %w", err)
	}
	return nil
}

func today() string {
	return time.Now().Format("2006-01-02")
}
