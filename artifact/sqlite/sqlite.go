// Package sqlite provides a durable core.ArtifactStore backed by SQLite via
// the pure Go modernc driver. Versions are dense and zero-based per artifact
// name, matching the in-memory store's semantics.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/agentruntime/core"
)

// Store implements core.ArtifactStore on a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path and applies the
// schema. The file can be shared with the session store; the schemas do not
// overlap.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		app_name   TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		name       TEXT NOT NULL,
		version    INTEGER NOT NULL,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (app_name, user_id, session_id, name, version)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save appends the next version of the named artifact in one transaction and
// returns the assigned version number.
func (s *Store) Save(ctx context.Context, key core.Key, name string, data []byte) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version) + 1, 0) FROM artifacts
		 WHERE app_name = ? AND user_id = ? AND session_id = ? AND name = ?`,
		key.AppName, key.UserID, key.SessionID, name).Scan(&version)
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO artifacts (app_name, user_id, session_id, name, version, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.AppName, key.UserID, key.SessionID, name, version, data,
		time.Now().UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("insert artifact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return version, nil
}

// Load returns the requested version's bytes, or the latest version when
// version is negative. Missing names or versions fail with
// core.ErrArtifactNotFound.
func (s *Store) Load(ctx context.Context, key core.Key, name string, version int) ([]byte, error) {
	var (
		row  *sql.Row
		data []byte
	)

	if version < 0 {
		row = s.db.QueryRowContext(ctx,
			`SELECT data FROM artifacts
			 WHERE app_name = ? AND user_id = ? AND session_id = ? AND name = ?
			 ORDER BY version DESC LIMIT 1`,
			key.AppName, key.UserID, key.SessionID, name)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT data FROM artifacts
			 WHERE app_name = ? AND user_id = ? AND session_id = ? AND name = ? AND version = ?`,
			key.AppName, key.UserID, key.SessionID, name, version)
	}

	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrArtifactNotFound, name)
		}
		return nil, err
	}

	return data, nil
}

// Versions lists the stored version numbers of the named artifact in
// ascending order. Unknown names fail with core.ErrArtifactNotFound.
func (s *Store) Versions(ctx context.Context, key core.Key, name string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version FROM artifacts
		 WHERE app_name = ? AND user_id = ? AND session_id = ? AND name = ?
		 ORDER BY version ASC`,
		key.AppName, key.UserID, key.SessionID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]int, 0)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrArtifactNotFound, name)
	}

	return versions, nil
}

// List returns the distinct artifact names stored for the session in sorted
// order.
func (s *Store) List(ctx context.Context, key core.Key) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT name FROM artifacts
		 WHERE app_name = ? AND user_id = ? AND session_id = ?
		 ORDER BY name ASC`,
		key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// Delete removes the named artifact with all its versions, or fails with
// core.ErrArtifactNotFound.
func (s *Store) Delete(ctx context.Context, key core.Key, name string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM artifacts
		 WHERE app_name = ? AND user_id = ? AND session_id = ? AND name = ?`,
		key.AppName, key.UserID, key.SessionID, name)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrArtifactNotFound, name)
	}

	return nil
}

// Interface compliance (compile-time assertion)
var _ core.ArtifactStore = (*Store)(nil)
