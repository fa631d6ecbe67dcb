// Package store persists sessions and their histories. Backends: in-memory,
// PostgreSQL (pgx) and SQLite (modernc).
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/mockinterview/internal/session"
)

// Store is the persistence collaborator of the interview service. AppendTurns
// and AttachReport are atomic: either every change lands or none does.
type Store interface {
	CreateSession(ctx context.Context, s session.Session) error
	GetSession(ctx context.Context, id string) (session.Session, error)
	History(ctx context.Context, id string) ([]session.Turn, error)
	AppendTurns(ctx context.Context, id string, next session.State, turns ...session.Turn) error
	AttachReport(ctx context.Context, id string, report session.Report, endedAt time.Time) error
	Backend() string
	Close() error
}

// New picks a backend from databaseURL:
//
//	""                       in-memory
//	postgres://, postgresql:// PostgreSQL
//	sqlite://<path>, file:<path> SQLite
func New(ctx context.Context, databaseURL string) (Store, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	switch {
	case databaseURL == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresStore(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "file:"):
		return NewSQLiteStore(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", databaseURL)
	}
}

func checkAppend(current session.State, next session.State, turns []session.Turn) error {
	if len(turns) == 0 {
		return fmt.Errorf("append: no turns")
	}
	if !current.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", session.ErrInvalidTransition, current, next)
	}
	for i, t := range turns {
		if !t.Speaker.Valid() || strings.TrimSpace(t.Content) == "" {
			return fmt.Errorf("append: turn %d is invalid", i)
		}
	}
	return nil
}
