package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/mockinterview/internal/apperr"
	"github.com/ent0n29/mockinterview/internal/completion"
	"github.com/ent0n29/mockinterview/internal/config"
	"github.com/ent0n29/mockinterview/internal/evaluation"
	"github.com/ent0n29/mockinterview/internal/interview"
	"github.com/ent0n29/mockinterview/internal/observability"
	"github.com/ent0n29/mockinterview/internal/store"
)

func newTestServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test_httpapi")
	gateway := completion.NewGateway(completion.NewMockBackend(), completion.Config{Model: "mock"}, nil, metrics)
	svc := interview.New(
		store.NewInMemoryStore(),
		gateway,
		evaluation.New(gateway, nil, metrics),
		nil,
		interview.WithObserver(metrics),
	)
	ts := httptest.NewServer(New(cfg, svc, metrics, nil).Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer res.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s response: %v", url, err)
	}
	return res, out
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer res.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s response: %v", url, err)
	}
	return res, out
}

func TestInterviewFlow(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	res, started := postJSON(t, ts.URL+"/api/interview/start", map[string]string{
		"role":  "Backend Engineer",
		"level": "Mid",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, want %d (%v)", res.StatusCode, http.StatusCreated, started)
	}
	sessionID, _ := started["sessionId"].(string)
	if sessionID == "" || started["interviewId"] != sessionID {
		t.Fatalf("unexpected start response: %+v", started)
	}
	if q, _ := started["question"].(string); q == "" {
		t.Fatalf("start returned empty question")
	}

	// Older clients send interviewId/userAnswer.
	res, answered := postJSON(t, ts.URL+"/api/interview/answer", map[string]string{
		"interviewId": sessionID,
		"userAnswer":  "I used a hash map for O(1) lookups",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("answer status = %d, want %d (%v)", res.StatusCode, http.StatusOK, answered)
	}
	if q, _ := answered["question"].(string); q == "" {
		t.Fatalf("answer returned empty question")
	}

	res, notReady := getJSON(t, ts.URL+"/api/interview/report/"+sessionID)
	if res.StatusCode != http.StatusNotFound || notReady["code"] != string(apperr.ReportNotReady) {
		t.Fatalf("early report = %d %+v, want 404 ReportNotReady", res.StatusCode, notReady)
	}

	res, ended := postJSON(t, ts.URL+"/api/interview/end", map[string]string{"sessionId": sessionID})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d (%v)", res.StatusCode, http.StatusOK, ended)
	}
	report, _ := ended["report"].(map[string]any)
	for _, field := range []string{"technicalDepth", "clarity", "confidence", "overallScore"} {
		if _, ok := report[field].(float64); !ok {
			t.Fatalf("report.%s missing or not numeric: %+v", field, report)
		}
	}
	for _, field := range []string{"strengths", "weaknesses", "suggestedImprovements", "modelAnswers"} {
		if _, ok := report[field].([]any); !ok {
			t.Fatalf("report.%s missing or not an array: %+v", field, report)
		}
	}

	res, again := postJSON(t, ts.URL+"/api/interview/end", map[string]string{"sessionId": sessionID})
	if res.StatusCode != http.StatusBadRequest || again["code"] != string(apperr.AlreadyEnded) {
		t.Fatalf("second end = %d %+v, want 400 AlreadyEnded", res.StatusCode, again)
	}

	res, late := postJSON(t, ts.URL+"/api/interview/answer", map[string]string{
		"sessionId":     sessionID,
		"candidateText": "one more thing",
	})
	if res.StatusCode != http.StatusBadRequest || late["code"] != string(apperr.AlreadyEnded) {
		t.Fatalf("answer after end = %d %+v, want 400 AlreadyEnded", res.StatusCode, late)
	}

	for _, path := range []string{"/api/interview/report/" + sessionID, "/api/interview/" + sessionID + "/report"} {
		res, got := getJSON(t, ts.URL+path)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, res.StatusCode)
		}
		want, _ := json.Marshal(report)
		have, _ := json.Marshal(got["report"])
		if string(want) != string(have) {
			t.Fatalf("GET %s report = %s, want %s", path, have, want)
		}
	}

	res, transcript := getJSON(t, ts.URL+"/api/interview/session/"+sessionID)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("transcript status = %d, want 200", res.StatusCode)
	}
	history, _ := transcript["history"].([]any)
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
}

func TestInterviewErrors(t *testing.T) {
	ts := newTestServer(t, config.Config{AllowedLevels: []string{"Junior", "Senior"}})

	tests := []struct {
		name       string
		path       string
		payload    any
		wantStatus int
		wantCode   apperr.Kind
	}{
		{"start missing role", "/api/interview/start", map[string]string{"level": "Junior"}, http.StatusBadRequest, apperr.InvalidInput},
		{"start level outside policy", "/api/interview/start", map[string]string{"role": "SRE", "level": "Principal"}, http.StatusBadRequest, apperr.InvalidInput},
		{"answer missing text", "/api/interview/answer", map[string]string{"sessionId": "abc"}, http.StatusBadRequest, apperr.InvalidInput},
		{"answer unknown session", "/api/interview/answer", map[string]string{"sessionId": "abc", "candidateText": "hi"}, http.StatusNotFound, apperr.NotFound},
		{"end unknown session", "/api/interview/end", map[string]string{"sessionId": "abc"}, http.StatusNotFound, apperr.NotFound},
		{"end missing id", "/api/interview/end", map[string]string{}, http.StatusBadRequest, apperr.InvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, body := postJSON(t, ts.URL+tc.path, tc.payload)
			if res.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", res.StatusCode, tc.wantStatus, body)
			}
			if body["code"] != string(tc.wantCode) {
				t.Fatalf("code = %v, want %s", body["code"], tc.wantCode)
			}
			if msg, _ := body["error"].(string); msg == "" {
				t.Fatalf("missing error message: %+v", body)
			}
		})
	}

	res, err := http.Post(ts.URL+"/api/interview/start", "application/json", strings.NewReader(`{"role":`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", res.StatusCode)
	}

	res, body := getJSON(t, ts.URL+"/api/interview/report/missing")
	if res.StatusCode != http.StatusNotFound || body["code"] != string(apperr.NotFound) {
		t.Fatalf("unknown report = %d %+v, want 404 NotFound", res.StatusCode, body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.InvalidInput:        http.StatusBadRequest,
		apperr.AlreadyEnded:        http.StatusBadRequest,
		apperr.NotFound:            http.StatusNotFound,
		apperr.ReportNotReady:      http.StatusNotFound,
		apperr.GenerationFailed:    http.StatusInternalServerError,
		apperr.UpstreamUnavailable: http.StatusInternalServerError,
		apperr.UpstreamRejected:    http.StatusInternalServerError,
		apperr.MalformedResponse:   http.StatusInternalServerError,
		apperr.Internal:            http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Fatalf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestHealthRoutes(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	for path, want := range map[string]string{
		"/":           "healthy",
		"/api/health": "healthy",
		"/healthz":    "ok",
		"/readyz":     "ready",
	} {
		res, body := getJSON(t, ts.URL+path)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, res.StatusCode)
		}
		if body["status"] != want {
			t.Fatalf("GET %s status field = %v, want %s", path, body["status"], want)
		}
	}

	postJSON(t, ts.URL+"/api/interview/start", map[string]string{"role": "SRE", "level": "Senior"})
	res, body := getJSON(t, ts.URL+"/v1/perf/latency")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET /v1/perf/latency status = %d, want 200", res.StatusCode)
	}
	ops, ok := body["operations"].([]any)
	if !ok || len(ops) != 1 {
		t.Fatalf("latency snapshot operations = %+v, want start only", body["operations"])
	}
	if op, _ := ops[0].(map[string]any); op["name"] != "start" || op["samples"] != float64(1) {
		t.Fatalf("start stats = %+v", op)
	}
	if _, ok := body["completions"]; !ok {
		t.Fatalf("latency snapshot missing completions: %+v", body)
	}
}

func TestInterviewWebSocket(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	_, started := postJSON(t, ts.URL+"/api/interview/start", map[string]string{"role": "SRE", "level": "Senior"})
	sessionID, _ := started["sessionId"].(string)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/interview/ws?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	read := func(wantType string) map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %s: %v", wantType, err)
		}
		if msg["type"] != wantType {
			t.Fatalf("type = %v, want %s (%+v)", msg["type"], wantType, msg)
		}
		return msg
	}

	if state := read("system_event"); state["detail"] != "in_progress" {
		t.Fatalf("state event = %+v, want in_progress", state)
	}
	if q := read("interviewer_question"); q["text"] != started["question"] {
		t.Fatalf("replayed question = %v, want %v", q["text"], started["question"])
	}

	if err := conn.WriteJSON(map[string]string{"type": "client_answer", "text": "I would add a circuit breaker."}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	if q := read("interviewer_question"); q["text"] == "" {
		t.Fatalf("empty follow-up question")
	}

	if err := conn.WriteJSON(map[string]string{"type": "client_control", "action": "nope"}); err != nil {
		t.Fatalf("write bad control: %v", err)
	}
	if e := read("error_event"); e["code"] != string(apperr.InvalidInput) {
		t.Fatalf("error code = %v, want InvalidInput", e["code"])
	}

	if err := conn.WriteJSON(map[string]string{"type": "client_control", "action": "end"}); err != nil {
		t.Fatalf("write end: %v", err)
	}
	report := read("evaluation_report")
	if _, ok := report["overall_score"].(float64); !ok {
		t.Fatalf("report missing overall_score: %+v", report)
	}

	if err := conn.WriteJSON(map[string]string{"type": "client_control", "action": "end"}); err != nil {
		t.Fatalf("write second end: %v", err)
	}
	if e := read("error_event"); e["code"] != string(apperr.AlreadyEnded) {
		t.Fatalf("error code = %v, want AlreadyEnded", e["code"])
	}
}

func TestInterviewWebSocketUnknownSession(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/interview/ws?session_id=missing"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("dial error = nil, want handshake failure")
	}
	if res == nil || res.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %v, want 404", res)
	}
}
