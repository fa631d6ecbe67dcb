package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/mockinterview/internal/protocol"
)

func TestWSURLForSession(t *testing.T) {
	got, err := wsURLForSession("https://example.test/base/", "abc 1")
	if err != nil {
		t.Fatalf("wsURLForSession() error = %v", err)
	}
	want := "wss://example.test/base/api/interview/ws?session_id=abc+1"
	if got != want {
		t.Fatalf("wsURLForSession() = %q, want %q", got, want)
	}

	if _, err := wsURLForSession("ftp://example.test", "x"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestParseFlagsDefaultsAndAnswers(t *testing.T) {
	cfg, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.sessions != 1 || cfg.turns != 4 {
		t.Fatalf("defaults = sessions %d turns %d", cfg.sessions, cfg.turns)
	}
	if len(cfg.answers) != len(defaultAnswers) {
		t.Fatalf("answers = %d, want %d", len(cfg.answers), len(defaultAnswers))
	}

	cfg, err = parseFlags([]string{"-answers", " one | |two ", "-turn-timeout-ms", "5"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if len(cfg.answers) != 2 || cfg.answers[1] != "two" {
		t.Fatalf("answers = %#v", cfg.answers)
	}
	if cfg.turnTimeout != time.Second {
		t.Fatalf("turnTimeout = %s, want 1s floor", cfg.turnTimeout)
	}

	if _, err := parseFlags([]string{"-sessions", "0"}); err == nil {
		t.Fatalf("expected error for zero sessions")
	}
}

func TestSummarizePercentiles(t *testing.T) {
	var samples []time.Duration
	for i := 20; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}
	s := summarize(samples)
	if s.count != 20 {
		t.Fatalf("count = %d", s.count)
	}
	if s.p50 != 10*time.Millisecond {
		t.Fatalf("p50 = %s, want 10ms", s.p50)
	}
	if s.p95 != 19*time.Millisecond {
		t.Fatalf("p95 = %s, want 19ms", s.p95)
	}
	if s.max != 20*time.Millisecond {
		t.Fatalf("max = %s, want 20ms", s.max)
	}
	if samples[0] != 20*time.Millisecond {
		t.Fatalf("summarize mutated its input")
	}
}

func TestAwaitFrameSkipsSystemEvents(t *testing.T) {
	frames := make(chan wsEnvelope, 3)
	frames <- wsEnvelope{Type: string(protocol.TypeSystemEvent), Code: "session_state"}
	frames <- wsEnvelope{Type: string(protocol.TypeInterviewerQuestion), Text: "next"}
	got, err := awaitFrame(frames, make(chan error), time.Second, protocol.TypeInterviewerQuestion)
	if err != nil {
		t.Fatalf("awaitFrame() error = %v", err)
	}
	if got.Text != "next" {
		t.Fatalf("text = %q", got.Text)
	}

	frames <- wsEnvelope{Type: string(protocol.TypeErrorEvent), Code: "generation_failed", Retryable: true}
	if _, err := awaitFrame(frames, make(chan error), time.Second, protocol.TypeInterviewerQuestion); err == nil || !strings.Contains(err.Error(), "generation_failed") {
		t.Fatalf("expected error_event failure, got %v", err)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, []replayResult{{
		start:   5 * time.Millisecond,
		answers: []time.Duration{time.Millisecond, 3 * time.Millisecond},
		end:     9 * time.Millisecond,
	}})
	out := buf.String()
	for _, want := range []string{"sessions=1", "start", "answer  n=2", "end"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
