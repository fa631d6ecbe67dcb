package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ent0n29/mockinterview/internal/session"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS interview_sessions (
	id TEXT PRIMARY KEY,
	role TEXT NOT NULL,
	level TEXT NOT NULL,
	state TEXT NOT NULL,
	created_at TEXT NOT NULL,
	ended_at TEXT,
	report TEXT
);
CREATE TABLE IF NOT EXISTS interview_turns (
	session_id TEXT NOT NULL REFERENCES interview_sessions(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	speaker TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);`

// SQLiteStore persists sessions in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess session.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interview_sessions (id, role, level, state, created_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Role, sess.Level, string(sess.State), formatTime(sess.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (session.Session, error) {
	var (
		sess      session.Session
		state     string
		createdAt string
		endedAt   sql.NullString
		report    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, role, level, state, created_at, ended_at, report FROM interview_sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.Role, &sess.Level, &state, &createdAt, &endedAt, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}

	sess.State = session.State(state)
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return session.Session{}, fmt.Errorf("decode created_at: %w", err)
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return session.Session{}, fmt.Errorf("decode ended_at: %w", err)
		}
		sess.EndedAt = &t
	}
	if report.Valid && report.String != "" {
		var r session.Report
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return session.Session{}, fmt.Errorf("decode report: %w", err)
		}
		sess.Report = &r
	}
	return sess, nil
}

func (s *SQLiteStore) History(ctx context.Context, id string) ([]session.Turn, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM interview_sessions WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return nil, session.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT speaker, content, created_at FROM interview_turns WHERE session_id = ? ORDER BY seq ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	turns := make([]session.Turn, 0, 16)
	for rows.Next() {
		var speaker, content, createdAt string
		if err := rows.Scan(&speaker, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		ts, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("decode turn time: %w", err)
		}
		turns = append(turns, session.Turn{Speaker: session.Speaker(speaker), Content: content, CreatedAt: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func (s *SQLiteStore) lockedState(ctx context.Context, tx *sql.Tx, id string) (session.State, error) {
	var state string
	err := tx.QueryRowContext(ctx, `SELECT state FROM interview_sessions WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", session.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read session state: %w", err)
	}
	return session.State(state), nil
}

func (s *SQLiteStore) AppendTurns(ctx context.Context, id string, next session.State, turns ...session.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	current, err := s.lockedState(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := checkAppend(current, next, turns); err != nil {
		return err
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM interview_turns WHERE session_id = ?`, id).Scan(&seq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}
	for _, t := range turns {
		seq++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO interview_turns (session_id, seq, speaker, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, seq, string(t.Speaker), t.Content, formatTime(t.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE interview_sessions SET state = ? WHERE id = ?`, string(next), id); err != nil {
		return fmt.Errorf("update state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AttachReport(ctx context.Context, id string, report session.Report, endedAt time.Time) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attach: %w", err)
	}
	defer tx.Rollback()

	current, err := s.lockedState(ctx, tx, id)
	if err != nil {
		return err
	}
	if !current.CanTransition(session.StateEnded) {
		return fmt.Errorf("%w: %s -> %s", session.ErrInvalidTransition, current, session.StateEnded)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE interview_sessions SET state = ?, ended_at = ?, report = ? WHERE id = ?`,
		string(session.StateEnded), formatTime(endedAt), string(payload), id,
	); err != nil {
		return fmt.Errorf("attach report: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attach: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Backend() string { return "sqlite" }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
