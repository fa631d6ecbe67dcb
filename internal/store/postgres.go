package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/mockinterview/internal/session"
)

// PostgresStore persists sessions and turns in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS interview_sessions (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			level TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			report JSONB
		);`,
		`CREATE TABLE IF NOT EXISTS interview_turns (
			session_id TEXT NOT NULL REFERENCES interview_sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			speaker TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess session.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interview_sessions (id, role, level, state, created_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.Role, sess.Level, string(sess.State), sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (session.Session, error) {
	var (
		sess    session.Session
		state   string
		endedAt *time.Time
		report  []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, role, level, state, created_at, ended_at, report FROM interview_sessions WHERE id=$1`,
		id,
	).Scan(&sess.ID, &sess.Role, &sess.Level, &state, &sess.CreatedAt, &endedAt, &report)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.State = session.State(state)
	sess.EndedAt = endedAt
	if len(report) > 0 {
		var r session.Report
		if err := json.Unmarshal(report, &r); err != nil {
			return session.Session{}, fmt.Errorf("decode report: %w", err)
		}
		sess.Report = &r
	}
	return sess, nil
}

func (s *PostgresStore) History(ctx context.Context, id string) ([]session.Turn, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM interview_sessions WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return nil, session.ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT speaker, content, created_at FROM interview_turns WHERE session_id=$1 ORDER BY seq ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	turns := make([]session.Turn, 0, 16)
	for rows.Next() {
		var (
			t       session.Turn
			speaker string
		)
		if err := rows.Scan(&speaker, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Speaker = session.Speaker(speaker)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func (s *PostgresStore) AppendTurns(ctx context.Context, id string, next session.State, turns ...session.Turn) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var state string
	err = tx.QueryRow(ctx, `SELECT state FROM interview_sessions WHERE id=$1 FOR UPDATE`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	if err := checkAppend(session.State(state), next, turns); err != nil {
		return err
	}

	var seq int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM interview_turns WHERE session_id=$1`, id).Scan(&seq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	batch := &pgx.Batch{}
	for _, t := range turns {
		seq++
		batch.Queue(
			`INSERT INTO interview_turns (session_id, seq, speaker, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
			id, seq, string(t.Speaker), t.Content, t.CreatedAt,
		)
	}
	batch.Queue(`UPDATE interview_sessions SET state=$2 WHERE id=$1`, id, string(next))
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append turns: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *PostgresStore) AttachReport(ctx context.Context, id string, report session.Report, endedAt time.Time) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin attach: %w", err)
	}
	defer tx.Rollback(ctx)

	var state string
	err = tx.QueryRow(ctx, `SELECT state FROM interview_sessions WHERE id=$1 FOR UPDATE`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	if !session.State(state).CanTransition(session.StateEnded) {
		return fmt.Errorf("%w: %s -> %s", session.ErrInvalidTransition, state, session.StateEnded)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE interview_sessions SET state=$2, ended_at=$3, report=$4 WHERE id=$1`,
		id, string(session.StateEnded), endedAt.UTC(), payload,
	); err != nil {
		return fmt.Errorf("attach report: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit attach: %w", err)
	}
	return nil
}

func (s *PostgresStore) Backend() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
