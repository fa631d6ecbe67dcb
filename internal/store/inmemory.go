package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ent0n29/mockinterview/internal/session"
)

// InMemoryStore keeps everything in process. Used for local runs and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
}

type record struct {
	session session.Session
	turns   []session.Turn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*record)}
}

func (s *InMemoryStore) CreateSession(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[sess.ID]; exists {
		return fmt.Errorf("create session: id %q already exists", sess.ID)
	}
	s.records[sess.ID] = &record{session: sess.Clone()}
	return nil
}

func (s *InMemoryStore) GetSession(_ context.Context, id string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return r.session.Clone(), nil
}

func (s *InMemoryStore) History(_ context.Context, id string) ([]session.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	out := make([]session.Turn, len(r.turns))
	copy(out, r.turns)
	return out, nil
}

func (s *InMemoryStore) AppendTurns(ctx context.Context, id string, next session.State, turns ...session.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return session.ErrNotFound
	}
	if err := checkAppend(r.session.State, next, turns); err != nil {
		return err
	}
	r.turns = append(r.turns, turns...)
	r.session.State = next
	return nil
}

func (s *InMemoryStore) AttachReport(ctx context.Context, id string, report session.Report, endedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return session.ErrNotFound
	}
	if !r.session.State.CanTransition(session.StateEnded) {
		return fmt.Errorf("%w: %s -> %s", session.ErrInvalidTransition, r.session.State, session.StateEnded)
	}
	rep := report.Clone()
	ended := endedAt.UTC()
	r.session.Report = &rep
	r.session.EndedAt = &ended
	r.session.State = session.StateEnded
	return nil
}

// ActiveCount returns the number of sessions that have not ended.
func (s *InMemoryStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if r.session.State != session.StateEnded {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) Backend() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }
