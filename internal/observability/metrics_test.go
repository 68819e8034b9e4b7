package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLatencyWindowReport(t *testing.T) {
	w := newLatencyWindow(8)
	w.observe("handle", 500)
	w.observe("handle", 700)
	w.observe("handle", 4500)
	w.count("cache_hit")
	w.count("cache_hit")
	w.count("  ")

	rep := w.report()
	if rep.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", rep.WindowSize)
	}
	if len(rep.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(rep.Stages))
	}
	s := rep.Stages[0]
	if s.Stage != "handle" || s.Samples != 3 {
		t.Fatalf("stage = %q/%d, want handle/3", s.Stage, s.Samples)
	}
	if s.LastMS != 4500 {
		t.Fatalf("LastMS = %.2f, want 4500", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.BudgetP95MS != 4000 || s.OverBudget != 1 || s.WithinSLO {
		t.Fatalf("budget = %.0f over=%d within=%v, want 4000/1/false", s.BudgetP95MS, s.OverBudget, s.WithinSLO)
	}
	if rep.Counters["cache_hit"] != 2 || len(rep.Counters) != 1 {
		t.Fatalf("Counters = %v, want cache_hit x2", rep.Counters)
	}
}

func TestLatencyWindowKeepsNewestSamples(t *testing.T) {
	w := newLatencyWindow(3)
	for _, v := range []float64{100, 1, 2, 3} {
		w.observe("classify", v)
	}
	s := w.report().Stages[0]
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 3 || s.AvgMS != 2 {
		t.Fatalf("last/avg = %.2f/%.2f, want 3/2", s.LastMS, s.AvgMS)
	}
	if !s.WithinSLO {
		t.Fatalf("WithinSLO = false, want true")
	}
}

func TestLatencyWindowIgnoresInvalidSamples(t *testing.T) {
	w := newLatencyWindow(4)
	w.observe("", 10)
	w.observe("plan", -1)
	if got := len(w.report().Stages); got != 0 {
		t.Fatalf("len(Stages) = %d, want 0", got)
	}
}

func TestUnbudgetedStageIsWithinSLO(t *testing.T) {
	w := newLatencyWindow(4)
	w.observe("custom", 99999)
	s := w.report().Stages[0]
	if s.BudgetP95MS != 0 || !s.WithinSLO {
		t.Fatalf("custom stage = %+v, want no budget and within SLO", s)
	}
}

func TestInterpolate(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	if got := interpolate(sorted, 0.5); got != 25 {
		t.Fatalf("interpolate(0.5) = %v, want 25", got)
	}
	if got := interpolate(sorted, 1); got != 40 {
		t.Fatalf("interpolate(1) = %v, want 40", got)
	}
	if got := interpolate(nil, 0.5); got != 0 {
		t.Fatalf("interpolate(nil) = %v, want 0", got)
	}
}

func TestMetricsRecordTurnInstruments(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry(), "test")
	m.ObserveTurn("data_query", "ok")
	m.ObserveTurn("data_query", "ok")
	m.ObserveSideEffect("export", "success")
	m.ObserveCacheLookup("miss")
	m.ObserveRejection("forbidden_keyword")
	m.ObserveStage("classify", 120*time.Millisecond)

	if got := testutil.ToFloat64(m.Turns.WithLabelValues("data_query", "ok")); got != 2 {
		t.Fatalf("turns_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SideEffects.WithLabelValues("export", "success")); got != 1 {
		t.Fatalf("side_effects_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ValidatorRejections.WithLabelValues("forbidden_keyword")); got != 1 {
		t.Fatalf("sql_rejections_total = %v, want 1", got)
	}
	rep := m.LatencySnapshot()
	if len(rep.Stages) != 1 || rep.Stages[0].LastMS != 120 {
		t.Fatalf("LatencySnapshot() = %+v, want classify at 120ms", rep.Stages)
	}
	for _, k := range []string{"outcome_ok", "cache_miss", "rejected_forbidden_keyword"} {
		if rep.Counters[k] == 0 {
			t.Fatalf("Counters missing %q: %v", k, rep.Counters)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("x", "y")
	m.ObserveStage("classify", time.Second)
	m.SetActiveChats(3)
	if rep := m.LatencySnapshot(); len(rep.Stages) != 0 {
		t.Fatalf("nil metrics report has %d stages", len(rep.Stages))
	}
}
