// Package history keeps a SQLite log of tool invocations.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/avalia-cli/internal/tools"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tool_invocations (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL DEFAULT '',
	tool        TEXT NOT NULL,
	args        TEXT NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_invocations_created ON tool_invocations(created_at);
`

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 20

// Entry is one stored invocation.
type Entry struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id,omitempty"`
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration_ns"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is a SQLite-backed invocation log. It implements tools.Recorder.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("history: empty database path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Record inserts e, filling ID and CreatedAt when empty.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if len(e.Args) == 0 {
		e.Args = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_invocations (id, session_id, tool, args, success, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Tool, string(e.Args), e.Success, e.Error,
		e.Duration.Milliseconds(), e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// RecordInvocation stores a tool run. Failures are logged, never returned.
func (s *Store) RecordInvocation(ctx context.Context, inv tools.Invocation) {
	args, err := json.Marshal(inv.Call)
	if err != nil {
		args = []byte("{}")
	}
	e := Entry{
		SessionID: inv.Session,
		Tool:      inv.Tool,
		Args:      args,
		Success:   inv.Success,
		Duration:  inv.Duration,
	}
	if inv.Err != nil {
		e.Error = inv.Err.Error()
	}
	// The caller's context may already be cancelled once the tool has run.
	if err := s.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("history record failed", zap.String("tool", inv.Tool), zap.Error(err))
	}
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, tool, args, success, error, duration_ms, created_at
		 FROM tool_invocations ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e               Entry
			args            string
			durMs, createdMs int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Tool, &args, &e.Success, &e.Error, &durMs, &createdMs); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Args = json.RawMessage(args)
		e.Duration = time.Duration(durMs) * time.Millisecond
		e.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}
