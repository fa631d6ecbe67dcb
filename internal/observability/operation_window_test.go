package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestOperationWindowStats(t *testing.T) {
	w := newOperationWindow(32)
	for i := 1; i <= 20; i++ {
		w.Observe("answer", time.Duration(i)*time.Millisecond, i%5 == 0)
	}
	w.Observe("end", 20*time.Second, false)
	w.Observe("start", 3*time.Millisecond, false)
	w.Observe("warmup", time.Millisecond, false)
	w.Observe("", time.Millisecond, false)
	w.Observe("start", -time.Millisecond, false)

	stats := w.Stats()
	if len(stats) != 4 {
		t.Fatalf("len(stats) = %d, want 4: %+v", len(stats), stats)
	}
	for i, want := range []string{"start", "answer", "end", "warmup"} {
		if stats[i].Name != want {
			t.Fatalf("stats[%d].Name = %q, want %q", i, stats[i].Name, want)
		}
	}

	answer := stats[1]
	if answer.Samples != 20 || answer.Failures != 4 || answer.FailureRate != 0.2 {
		t.Fatalf("answer counts = %+v", answer)
	}
	if answer.P50MS != 10 || answer.P95MS != 19 || answer.MaxMS != 20 || answer.LastMS != 20 {
		t.Fatalf("answer latency = %+v", answer)
	}
	if answer.TargetP95MS != 4000 || answer.OverTarget {
		t.Fatalf("answer target = %+v", answer)
	}

	end := stats[2]
	if end.TargetP95MS != 15000 || !end.OverTarget {
		t.Fatalf("end target = %+v", end)
	}
	if stats[3].TargetP95MS != 0 || stats[3].OverTarget {
		t.Fatalf("untracked name got a target: %+v", stats[3])
	}
}

func TestOperationWindowWraps(t *testing.T) {
	w := newOperationWindow(4)
	for i := 1; i <= 6; i++ {
		w.Observe("start", time.Duration(i)*time.Millisecond, i <= 2)
	}
	got := w.Stats()[0]
	if got.Samples != 4 {
		t.Fatalf("samples = %d, want 4", got.Samples)
	}
	// The two failed calls were the oldest and have been overwritten.
	if got.Failures != 0 {
		t.Fatalf("failures = %d, want 0", got.Failures)
	}
	if got.P50MS != 4 || got.MaxMS != 6 || got.LastMS != 6 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestMetricsObservers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, "test")

	m.ObserveSessionEvent("started")
	m.ObserveSessionEvent("started")
	m.ObserveSessionEvent("ended")
	m.ObserveOperation("start", 40*time.Millisecond, false)
	m.ObserveOperation("end", 2*time.Second, true)
	m.ObserveCompletion("freeform", "ok", 35*time.Millisecond)
	m.ObserveCompletion("structured", "malformed_response", time.Second)
	m.ObserveCorrection("clarity")
	m.ObserveWSMessage("in", "candidate_answer")

	if got := metricValue(t, reg, "test_active_sessions", nil); got != 1 {
		t.Fatalf("active_sessions = %v, want 1", got)
	}
	if got := metricValue(t, reg, "test_completion_requests_total", map[string]string{"mode": "structured", "outcome": "malformed_response"}); got != 1 {
		t.Fatalf("completion_requests_total = %v, want 1", got)
	}
	if got := metricValue(t, reg, "test_operation_latency_ms", map[string]string{"operation": "end", "outcome": "error"}); got != 1 {
		t.Fatalf("operation_latency_ms count = %v, want 1", got)
	}
	if got := metricValue(t, reg, "test_report_corrections_total", map[string]string{"field": "clarity"}); got != 1 {
		t.Fatalf("report_corrections_total = %v, want 1", got)
	}

	snap := m.SnapshotLatency()
	if snap.WindowSize != 256 || snap.GeneratedAt.IsZero() {
		t.Fatalf("snapshot header = %+v", snap)
	}
	if len(snap.Operations) != 2 || snap.Operations[0].Name != "start" || snap.Operations[1].Failures != 1 {
		t.Fatalf("operations = %+v", snap.Operations)
	}
	if len(snap.Completions) != 2 || snap.Completions[0].Name != "freeform" || snap.Completions[1].Failures != 1 {
		t.Fatalf("completions = %+v", snap.Completions)
	}
}

// metricValue returns a counter or gauge value, or a histogram sample count.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if !labelsMatch(metric, labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}
