package observability

import (
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// stageBudgetsMS are the p95 targets for each turn stage, in milliseconds.
var stageBudgetsMS = map[string]float64{
	"load_history": 50,
	"classify":     1500,
	"handle":       4000,
	"plan":         1500,
	"dispatch":     3000,
	"reduce":       2000,
	"persist":      100,
	"turn_total":   10000,
}

// StageLatency summarizes the retained samples of one stage.
type StageLatency struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	BudgetP95MS float64 `json:"budget_p95_ms,omitempty"`
	OverBudget  int     `json:"over_budget,omitempty"`
	WithinSLO   bool    `json:"within_slo"`
}

// LatencyReport is the body of the perf latency endpoint.
type LatencyReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []StageLatency `json:"stages"`
	Counters    map[string]int `json:"counters,omitempty"`
}

// ring keeps the most recent samples of one stage.
type ring struct {
	samples []float64
	head    int
	full    bool
}

func (r *ring) push(v float64) {
	r.samples[r.head] = v
	r.head = (r.head + 1) % len(r.samples)
	if r.head == 0 {
		r.full = true
	}
}

func (r *ring) last() float64 {
	return r.samples[(r.head-1+len(r.samples))%len(r.samples)]
}

func (r *ring) values() []float64 {
	if r.full {
		return slices.Clone(r.samples)
	}
	return slices.Clone(r.samples[:r.head])
}

// latencyWindow is the in-process view behind LatencyReport. It is separate
// from the Prometheus histograms so the perf tool can read quantiles without
// a scrape pipeline.
type latencyWindow struct {
	mu       sync.Mutex
	size     int
	stages   map[string]*ring
	counters map[string]int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{
		size:     size,
		stages:   make(map[string]*ring),
		counters: make(map[string]int),
	}
}

func (w *latencyWindow) observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.stages[stage]
	if r == nil {
		r = &ring{samples: make([]float64, w.size)}
		w.stages[stage] = r
	}
	r.push(ms)
}

func (w *latencyWindow) count(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	w.counters[name]++
	w.mu.Unlock()
}

func (w *latencyWindow) report() LatencyReport {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := LatencyReport{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageLatency, 0, len(w.stages)),
	}
	stages := make([]string, 0, len(w.stages))
	for stage := range w.stages {
		stages = append(stages, stage)
	}
	slices.Sort(stages)
	for _, stage := range stages {
		r := w.stages[stage]
		vals := r.values()
		if len(vals) == 0 {
			continue
		}
		slices.Sort(vals)
		out.Stages = append(out.Stages, summarize(stage, vals, r.last()))
	}
	if len(w.counters) > 0 {
		out.Counters = maps.Clone(w.counters)
	}
	return out
}

func summarize(stage string, sorted []float64, last float64) StageLatency {
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	s := StageLatency{
		Stage:   stage,
		Samples: len(sorted),
		LastMS:  round2(last),
		AvgMS:   round2(sum / float64(len(sorted))),
		P50MS:   round2(interpolate(sorted, 0.50)),
		P95MS:   round2(interpolate(sorted, 0.95)),
		P99MS:   round2(interpolate(sorted, 0.99)),
	}
	budget, ok := stageBudgetsMS[stage]
	if !ok {
		s.WithinSLO = true
		return s
	}
	s.BudgetP95MS = budget
	for _, v := range sorted {
		if v > budget {
			s.OverBudget++
		}
	}
	s.WithinSLO = s.P95MS <= budget
	return s
}

// interpolate returns the q-quantile of sorted using linear interpolation
// between closest ranks.
func interpolate(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	i := int(pos)
	if i+1 >= len(sorted) {
		return sorted[i]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*(pos-float64(i))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
