// Package sqlite provides a durable core.SessionStore backed by SQLite via
// the pure Go modernc driver. It mirrors the semantics of the in-memory
// store: strict create/get/delete contracts and AppendEvent as the single
// mutation path.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/agentruntime/core"
)

// Store implements core.SessionStore on a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path and applies the
// schema. WAL mode keeps readers unblocked during appends; foreign keys give
// us event cleanup on session delete.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
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
	CREATE TABLE IF NOT EXISTS sessions (
		app_name   TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		id         TEXT NOT NULL,
		state      TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (app_name, user_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(app_name, user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS events (
		app_name   TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		idx        INTEGER NOT NULL,
		payload    TEXT NOT NULL,
		PRIMARY KEY (app_name, user_id, session_id, idx),
		FOREIGN KEY (app_name, user_id, session_id)
			REFERENCES sessions(app_name, user_id, id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new session row, seeding state with the optional initial
// map. An existing key fails with core.ErrSessionExists.
func (s *Store) Create(ctx context.Context, key core.Key, state map[string]any) (*core.Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	sess := core.NewSession(key)
	sess.ApplyStateDelta(state)

	stateJSON, err := json.Marshal(sess.State)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`,
		key.AppName, key.UserID, key.SessionID).Scan(&exists)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionExists, key)
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (app_name, user_id, id, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.AppName, key.UserID, key.SessionID, string(stateJSON),
		sess.Created.UnixNano(), sess.Updated.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return sess, nil
}

// Get loads the session row plus its full event log ordered by position.
func (s *Store) Get(ctx context.Context, key core.Key) (*core.Session, error) {
	sess, err := s.getSessionRow(ctx, key)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events
		 WHERE app_name = ? AND user_id = ? AND session_id = ?
		 ORDER BY idx ASC`,
		key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		sess.Events = append(sess.Events, ev)
	}

	return sess, rows.Err()
}

// List returns the sessions of (appName, userID) ordered by most recent
// update, without event logs.
func (s *Store) List(ctx context.Context, appName, userID string) ([]*core.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT app_name, user_id, id, state, created_at, updated_at
		 FROM sessions WHERE app_name = ? AND user_id = ?
		 ORDER BY updated_at DESC, id ASC`,
		appName, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*core.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

// Delete removes the session row; events cascade. A missing key fails with
// core.ErrSessionNotFound.
func (s *Store) Delete(ctx context.Context, key core.Key) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`,
		key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	return nil
}

// AppendEvent writes the event at the next log position and merges its state
// delta into the stored state in one transaction.
func (s *Store) AppendEvent(ctx context.Context, key core.Key, ev core.Event) (*core.Session, error) {
	if ev.IsPartial() {
		return nil, fmt.Errorf("partial event %s cannot be persisted", ev.ID)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var stateJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`,
		key.AppName, key.UserID, key.SessionID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}
	if err != nil {
		return nil, err
	}

	var idx int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID).Scan(&idx)
	if err != nil {
		return nil, err
	}

	// Reuse the core merge rules (last writer wins, nil tombstones, temp keys
	// dropped) on a scratch session so stored state can never drift from the
	// in-memory semantics.
	scratch := core.NewSession(key)
	if err := json.Unmarshal([]byte(stateJSON), &scratch.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	scratch.ApplyStateDelta(ev.Actions.StateDelta)

	mergedJSON, err := json.Marshal(scratch.State)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (app_name, user_id, session_id, idx, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		key.AppName, key.UserID, key.SessionID, idx, string(payload))
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET state = ?, updated_at = ?
		 WHERE app_name = ? AND user_id = ? AND id = ?`,
		string(mergedJSON), now.UnixNano(),
		key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return nil, fmt.Errorf("update state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.Get(ctx, key)
}

func (s *Store) getSessionRow(ctx context.Context, key core.Key) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT app_name, user_id, id, state, created_at, updated_at
		 FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`,
		key.AppName, key.UserID, key.SessionID)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	return sess, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*core.Session, error) {
	var (
		appName, userID, id, stateJSON string
		createdNs, updatedNs           int64
	)

	if err := row.Scan(&appName, &userID, &id, &stateJSON, &createdNs, &updatedNs); err != nil {
		return nil, err
	}

	sess := core.NewSession(core.NewKey(appName, userID, id))
	if err := json.Unmarshal([]byte(stateJSON), &sess.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	sess.Created = time.Unix(0, createdNs).UTC()
	sess.Updated = time.Unix(0, updatedNs).UTC()

	return sess, nil
}

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*Store)(nil)
