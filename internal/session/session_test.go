package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateCreated, StateInProgress, true},
		{StateCreated, StateEnded, false},
		{StateInProgress, StateInProgress, true},
		{StateInProgress, StateEnded, true},
		{StateInProgress, StateCreated, false},
		{StateEnded, StateInProgress, false},
		{StateEnded, StateEnded, false},
		{StateEnded, StateCreated, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestReportOverallScore(t *testing.T) {
	r := Report{TechnicalDepth: 7, Clarity: 8, Confidence: 6}
	if got := r.OverallScore(); got != 7 {
		t.Fatalf("OverallScore() = %v, want 7", got)
	}
	r = Report{TechnicalDepth: 7, Clarity: 8, Confidence: 8}
	if got := r.OverallScore(); got != 7.7 {
		t.Fatalf("OverallScore() = %v, want 7.7", got)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	s := Session{
		ID:      "s1",
		EndedAt: &now,
		Report:  &Report{Strengths: []string{"a"}, ModelAnswers: []ModelAnswer{{Question: "q"}}},
	}
	c := s.Clone()
	c.Report.Strengths[0] = "changed"
	c.Report.ModelAnswers[0].Question = "changed"
	*c.EndedAt = now.Add(time.Hour)

	if s.Report.Strengths[0] != "a" || s.Report.ModelAnswers[0].Question != "q" {
		t.Fatalf("clone shares report slices: %+v", s.Report)
	}
	if !s.EndedAt.Equal(now) {
		t.Fatalf("clone shares EndedAt")
	}
}

func TestLockerSerializesSameID(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "s1")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxSeen)
	}
	if n := l.Held(); n != 0 {
		t.Fatalf("Held() = %d after all unlocks, want 0", n)
	}
}

func TestLockerDistinctIDsDoNotBlock(t *testing.T) {
	l := NewLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock(a) error = %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock(b) blocked behind a: %v", err)
	}
	unlockB()
}

func TestLockerHonorsContext(t *testing.T) {
	l := NewLocker()
	unlock, err := l.Lock(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "s1"); err == nil {
		t.Fatalf("second Lock() should fail once ctx expires")
	}

	unlock()
	unlock()
	if n := l.Held(); n != 0 {
		t.Fatalf("Held() = %d, want 0", n)
	}
}
