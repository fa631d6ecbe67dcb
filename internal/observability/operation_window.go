package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Interview operations in lifecycle order. Snapshots list them this way.
var lifecycleOrder = []string{"start", "answer", "end"}

// p95 budgets in milliseconds. end waits on a structured evaluation, so it
// gets the structured completion budget.
var p95Targets = map[string]float64{
	"start":      4000,
	"answer":     4000,
	"end":        15000,
	"freeform":   4000,
	"structured": 15000,
}

// OperationStats summarizes the recent calls of one operation.
type OperationStats struct {
	Name        string  `json:"name"`
	Samples     int     `json:"samples"`
	Failures    int     `json:"failures"`
	FailureRate float64 `json:"failure_rate"`
	LastMS      float64 `json:"last_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	MaxMS       float64 `json:"max_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	OverTarget  bool    `json:"over_target"`
}

// LatencySnapshot is served at /v1/perf/latency.
type LatencySnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Operations  []OperationStats `json:"operations"`
	Completions []OperationStats `json:"completions"`
}

type sample struct {
	ms     float64
	failed bool
}

// operationWindow keeps the last size samples per operation name.
type operationWindow struct {
	mu    sync.Mutex
	size  int
	rings map[string]*ring
}

type ring struct {
	samples []sample
	next    int
	full    bool
	last    float64
}

func newOperationWindow(size int) *operationWindow {
	if size <= 0 {
		size = 256
	}
	return &operationWindow{size: size, rings: make(map[string]*ring)}
}

func (w *operationWindow) Observe(name string, elapsed time.Duration, failed bool) {
	if name == "" || elapsed < 0 {
		return
	}
	ms := float64(elapsed.Microseconds()) / 1000

	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[name]
	if !ok {
		r = &ring{samples: make([]sample, w.size)}
		w.rings[name] = r
	}
	r.samples[r.next] = sample{ms: ms, failed: failed}
	r.last = ms
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
}

// Stats returns one entry per observed name. Lifecycle operations come first
// in their natural order, any other names follow sorted.
func (w *operationWindow) Stats() []OperationStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.rings))
	seen := make(map[string]bool, len(lifecycleOrder))
	for _, name := range lifecycleOrder {
		if _, ok := w.rings[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range w.rings {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)

	out := make([]OperationStats, 0, len(names))
	for _, name := range names {
		out = append(out, w.rings[name].stats(name))
	}
	return out
}

func (r *ring) stats(name string) OperationStats {
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	values := make([]float64, 0, n)
	failures := 0
	for _, s := range r.samples[:n] {
		values = append(values, s.ms)
		if s.failed {
			failures++
		}
	}
	sort.Float64s(values)

	st := OperationStats{
		Name:        name,
		Samples:     n,
		Failures:    failures,
		LastMS:      round2(r.last),
		TargetP95MS: p95Targets[name],
	}
	if n == 0 {
		return st
	}
	st.FailureRate = round2(float64(failures) / float64(n))
	st.P50MS = round2(nearestRank(values, 0.50))
	st.P95MS = round2(nearestRank(values, 0.95))
	st.MaxMS = round2(values[n-1])
	st.OverTarget = st.TargetP95MS > 0 && st.P95MS > st.TargetP95MS
	return st
}

// nearestRank expects sorted, non-empty input.
func nearestRank(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
