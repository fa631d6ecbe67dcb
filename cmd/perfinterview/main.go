package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/mockinterview/internal/protocol"
)

type options struct {
	baseURL        string
	role           string
	level          string
	sessions       int
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	answers        []string
	verbose        bool
}

type startRequest struct {
	Role  string `json:"role"`
	Level string `json:"level"`
}

type startResponse struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
}

type wsEnvelope struct {
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Text      string `json:"text,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// replayResult holds the latencies one synthetic session observed.
type replayResult struct {
	start   time.Duration
	answers []time.Duration
	end     time.Duration
}

var defaultAnswers = []string{
	"I would start by clarifying requirements and the expected load.",
	"I led a migration from a monolith to services and owned the rollout plan.",
	"The main trade-off was consistency against latency, so we picked idempotent writes.",
	"I would add tracing first, then look at the slowest dependency.",
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfinterview: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfinterview: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var answersRaw string
	var interTurnMS int
	var turnTimeoutMS int

	fs := flag.NewFlagSet("perfinterview", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "mock interview server base URL")
	fs.StringVar(&cfg.role, "role", "Backend Engineer", "role used for synthetic sessions")
	fs.StringVar(&cfg.level, "level", "Senior", "level used for synthetic sessions")
	fs.IntVar(&cfg.sessions, "sessions", 1, "number of concurrent sessions to replay")
	fs.IntVar(&cfg.turns, "turns", 4, "answers per session before ending")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between answers in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for each server reply in milliseconds")
	fs.StringVar(&answersRaw, "answers", "", "candidate answers separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", false, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.sessions <= 0 || cfg.sessions > 256 {
		return options{}, fmt.Errorf("sessions must be in [1,256]")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if strings.TrimSpace(cfg.role) == "" || strings.TrimSpace(cfg.level) == "" {
		return options{}, fmt.Errorf("role and level are required")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(answersRaw) == "" {
		cfg.answers = append([]string(nil), defaultAnswers...)
	} else {
		for _, part := range strings.Split(answersRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.answers = append(cfg.answers, t)
			}
		}
		if len(cfg.answers) == 0 {
			return options{}, fmt.Errorf("answers produced no non-empty text")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 60 * time.Second}
	results := make([]replayResult, cfg.sessions)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.sessions; i++ {
		g.Go(func() error {
			res, err := replaySession(gctx, httpClient, cfg, i)
			if err != nil {
				return fmt.Errorf("session %d: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printSummary(os.Stdout, results)
	return nil
}

func replaySession(ctx context.Context, client *http.Client, cfg options, index int) (replayResult, error) {
	var out replayResult

	began := time.Now()
	started, err := startInterview(ctx, client, cfg)
	if err != nil {
		return out, fmt.Errorf("start interview: %w", err)
	}
	out.start = time.Since(began)
	if cfg.verbose {
		fmt.Printf("perfinterview: [%d] session=%s question=%q\n", index+1, started.SessionID, started.Question)
	}

	wsURL, err := wsURLForSession(cfg.baseURL, started.SessionID)
	if err != nil {
		return out, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return out, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	frames := make(chan wsEnvelope, 32)
	readErrCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readLoop(conn, frames, readErrCh, done)

	// The server replays the current question on connect.
	if _, err := awaitFrame(frames, readErrCh, cfg.turnTimeout, protocol.TypeInterviewerQuestion); err != nil {
		return out, fmt.Errorf("await replayed question: %w", err)
	}

	for turn := 0; turn < cfg.turns; turn++ {
		answer := cfg.answers[(index+turn)%len(cfg.answers)]
		sent := time.Now()
		if err := conn.WriteJSON(protocol.ClientAnswer{
			Type:      protocol.TypeClientAnswer,
			SessionID: started.SessionID,
			Text:      answer,
		}); err != nil {
			return out, fmt.Errorf("turn %d send answer: %w", turn+1, err)
		}
		frame, err := awaitFrame(frames, readErrCh, cfg.turnTimeout, protocol.TypeInterviewerQuestion)
		if err != nil {
			return out, fmt.Errorf("turn %d await question: %w", turn+1, err)
		}
		out.answers = append(out.answers, time.Since(sent))
		if cfg.verbose {
			fmt.Printf("perfinterview: [%d] turn %d/%d question=%q\n", index+1, turn+1, cfg.turns, frame.Text)
		}
		if cfg.interTurnDelay > 0 && turn < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	sent := time.Now()
	if err := conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: started.SessionID,
		Action:    protocol.ActionEnd,
	}); err != nil {
		return out, fmt.Errorf("send end: %w", err)
	}
	if _, err := awaitFrame(frames, readErrCh, cfg.turnTimeout, protocol.TypeEvaluationReport); err != nil {
		return out, fmt.Errorf("await report: %w", err)
	}
	out.end = time.Since(sent)
	return out, nil
}

func startInterview(ctx context.Context, client *http.Client, cfg options) (startResponse, error) {
	payload, err := json.Marshal(startRequest{Role: cfg.role, Level: cfg.level})
	if err != nil {
		return startResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/api/interview/start", bytes.NewReader(payload))
	if err != nil {
		return startResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return startResponse{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return startResponse{}, err
	}
	if res.StatusCode != http.StatusCreated {
		return startResponse{}, fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out startResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return startResponse{}, err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return startResponse{}, fmt.Errorf("missing sessionId in response")
	}
	return out, nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/interview/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, frames chan<- wsEnvelope, readErrCh chan<- error, done <-chan struct{}) {
	defer close(frames)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case frames <- env:
		case <-done:
			return
		}
	}
}

// awaitFrame skips system events and fails on the first error_event.
func awaitFrame(frames <-chan wsEnvelope, readErrCh <-chan error, timeout time.Duration, want protocol.MessageType) (wsEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				select {
				case err := <-readErrCh:
					return wsEnvelope{}, err
				default:
					return wsEnvelope{}, fmt.Errorf("connection closed")
				}
			}
			switch protocol.MessageType(frame.Type) {
			case want:
				return frame, nil
			case protocol.TypeErrorEvent:
				return wsEnvelope{}, fmt.Errorf("error_event code=%s retryable=%t detail=%s", frame.Code, frame.Retryable, frame.Detail)
			}
		case <-timer.C:
			return wsEnvelope{}, fmt.Errorf("timeout after %s waiting for %s", timeout, want)
		}
	}
}

type latencySummary struct {
	count int
	p50   time.Duration
	p95   time.Duration
	max   time.Duration
}

func summarize(samples []time.Duration) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return latencySummary{
		count: len(sorted),
		p50:   percentile(sorted, 0.50),
		p95:   percentile(sorted, 0.95),
		max:   sorted[len(sorted)-1],
	}
}

// percentile expects sorted input and uses nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted))+0.999999) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func printSummary(w io.Writer, results []replayResult) {
	var starts, answers, ends []time.Duration
	for _, res := range results {
		starts = append(starts, res.start)
		answers = append(answers, res.answers...)
		ends = append(ends, res.end)
	}

	fmt.Fprintf(w, "perfinterview: sessions=%d\n", len(results))
	for _, row := range []struct {
		name    string
		samples []time.Duration
	}{
		{"start", starts},
		{"answer", answers},
		{"end", ends},
	} {
		s := summarize(row.samples)
		fmt.Fprintf(w, "  %-7s n=%-4d p50=%-8s p95=%-8s max=%s\n",
			row.name, s.count, s.p50.Round(time.Millisecond), s.p95.Round(time.Millisecond), s.max.Round(time.Millisecond))
	}
}
