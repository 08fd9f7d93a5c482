package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"whatschat/models"
)

// SQLiteStore keeps the snapshot as one row of a key/value table. Every
// context opening the same file shares the slot.
type SQLiteStore struct {
	conn *sql.DB
	key  string
}

// New opens (or creates) the database at path. key selects the snapshot
// slot; an empty key means DefaultKey.
func New(path, key string) (*SQLiteStore, error) {
	if key == "" {
		key = DefaultKey
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{conn: conn, key: key}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Key returns the slot this store reads and writes.
func (s *SQLiteStore) Key() string {
	return s.key
}

func (s *SQLiteStore) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			version INTEGER NOT NULL,
			updated_at TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return err
		}
	}

	return s.migrate()
}

// migrate adds columns that files created by older builds lack.
func (s *SQLiteStore) migrate() error {
	if !s.columnExists("snapshots", "updated_at") {
		// SQLite doesn't support parameters in ALTER TABLE
		if _, err := s.conn.Exec("ALTER TABLE snapshots ADD COLUMN updated_at TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}

	return nil
}

// columnExists checks if a column exists in a table
func (s *SQLiteStore) columnExists(table, column string) bool {
	query := "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	var count int
	err := s.conn.QueryRow(query, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

func (s *SQLiteStore) Load(ctx context.Context) (*models.Snapshot, error) {
	var value string
	var version int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT value, version FROM snapshots WHERE key = ?", s.key,
	).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Seed()
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := Decode([]byte(value))
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", s.key, err)
	}
	snap.Version = version
	return snap, nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap *models.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	var result sql.Result
	if snap.Version == 0 {
		result, err = s.conn.ExecContext(ctx, `
			INSERT INTO snapshots (key, value, version, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(key) DO NOTHING
		`, s.key, string(data), now)
	} else {
		result, err = s.conn.ExecContext(ctx, `
			UPDATE snapshots SET value = ?, version = version + 1, updated_at = ?
			WHERE key = ? AND version = ?
		`, string(data), now, s.key, snap.Version)
	}
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleWrite
	}

	snap.Version++
	return nil
}

// Version returns the stored revision, or 0 if nothing was saved yet.
func (s *SQLiteStore) Version(ctx context.Context) (int64, error) {
	var version int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT version FROM snapshots WHERE key = ?", s.key,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}
