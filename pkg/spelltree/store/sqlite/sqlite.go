package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arcanist/spelltree/pkg/spelltree/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS builds (
	id TEXT PRIMARY KEY,
	command TEXT NOT NULL,
	seed INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	success INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	request_json TEXT,
	result_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_builds_created_at ON builds(created_at DESC);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveBuild inserts or replaces a build record
func (s *sqliteStore) SaveBuild(ctx context.Context, b store.BuildRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO builds (id, command, seed, created_at, success, elapsed_ms, request_json, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			command = excluded.command,
			seed = excluded.seed,
			created_at = excluded.created_at,
			success = excluded.success,
			elapsed_ms = excluded.elapsed_ms,
			request_json = excluded.request_json,
			result_json = excluded.result_json
	`, b.ID, b.Command, b.Seed, b.CreatedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(b.Success), b.ElapsedMS, b.RequestJSON, b.ResultJSON)
	return err
}

// GetBuild returns a build record by ID
func (s *sqliteStore) GetBuild(ctx context.Context, id string) (store.BuildRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, command, seed, created_at, success, elapsed_ms, request_json, result_json
		FROM builds WHERE id = ?
	`, id)

	b, err := scanBuild(row)
	if err == sql.ErrNoRows {
		return store.BuildRecord{}, false, nil
	}
	if err != nil {
		return store.BuildRecord{}, false, err
	}
	return b, true, nil
}

// ListBuilds returns up to limit records, newest first
func (s *sqliteStore) ListBuilds(ctx context.Context, limit int) ([]store.BuildRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, seed, created_at, success, elapsed_ms, request_json, result_json
		FROM builds ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.BuildRecord
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (store.BuildRecord, error) {
	var b store.BuildRecord
	var createdAt string
	var success int
	if err := row.Scan(&b.ID, &b.Command, &b.Seed, &createdAt, &success,
		&b.ElapsedMS, &b.RequestJSON, &b.ResultJSON); err != nil {
		return store.BuildRecord{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		b.CreatedAt = t
	}
	b.Success = success != 0
	return b, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
