package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/agentdock/core"
)

// SQLiteStore is a durable SessionStore backed by SQLite. Output chunks are
// stored as a JSON array in a TEXT column; the single-connection pool
// serializes writes, which sidesteps SQLite's writer limitation.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if necessary creates) the database at path.
// WAL mode and a busy timeout keep concurrent readers responsive while a
// write is in flight.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			status TEXT NOT NULL,
			backend TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			mux_session TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			output TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Insert implements core.SessionStore.
func (s *SQLiteStore) Insert(ctx context.Context, sess *core.Session) error {
	outputJSON, err := json.Marshal(sess.Output)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, task, status, backend, provider, model, mux_session, error, output, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Task, string(sess.Status), string(sess.Backend), sess.Provider, sess.Model,
		sess.MuxSession, sess.Error, string(outputJSON),
		sess.Created.Format(time.RFC3339Nano), sess.Updated.Format(time.RFC3339Nano))
	return err
}

// Get implements core.SessionStore.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task, status, backend, provider, model, mux_session, error, output, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)

	var sess core.Session
	var status, backend, outputJSON, createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.Task, &status, &backend, &sess.Provider, &sess.Model,
		&sess.MuxSession, &sess.Error, &outputJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, err
	}

	sess.Status = core.Status(status)
	sess.Backend = core.Backend(backend)
	if err := json.Unmarshal([]byte(outputJSON), &sess.Output); err != nil {
		return nil, fmt.Errorf("corrupt output column for session %s: %w", id, err)
	}
	if sess.Created, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if sess.Updated, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Update implements core.SessionStore. Only non-nil fields are written;
// concurrent updates are last-write-wins.
func (s *SQLiteStore) Update(ctx context.Context, id string, upd core.SessionUpdate) error {
	set := "updated_at = ?"
	args := []any{time.Now().UTC().Format(time.RFC3339Nano)}

	if upd.Status != nil {
		set += ", status = ?"
		args = append(args, string(*upd.Status))
	}
	if upd.Error != nil {
		set += ", error = ?"
		args = append(args, *upd.Error)
	}
	if upd.Model != nil {
		set += ", model = ?"
		args = append(args, *upd.Model)
	}
	if upd.MuxSession != nil {
		set += ", mux_session = ?"
		args = append(args, *upd.MuxSession)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE sessions SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

// AppendOutput implements core.SessionStore. Read-modify-write on the JSON
// column is safe because the pool holds a single connection.
func (s *SQLiteStore) AppendOutput(ctx context.Context, id, chunk string) error {
	row := s.db.QueryRowContext(ctx, "SELECT output FROM sessions WHERE id = ?", id)
	var outputJSON string
	if err := row.Scan(&outputJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrSessionNotFound
		}
		return err
	}

	var output []string
	if err := json.Unmarshal([]byte(outputJSON), &output); err != nil {
		return fmt.Errorf("corrupt output column for session %s: %w", id, err)
	}
	output = append(output, chunk)
	updated, err := json.Marshal(output)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE sessions SET output = ?, updated_at = ? WHERE id = ?",
		string(updated), time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
