package metrics_test

import (
	"testing"

	"github.com/benedict-anokye-davies/brain/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.SignalLatency.WithLabelValues("P1").Observe(0.01)
	m.DecisionsTotal.WithLabelValues("P1", "true").Inc()
	m.QueueDepth.WithLabelValues("P1").Set(3)
	m.PhaseModifier.WithLabelValues("P1").Set(1.1)
	m.CorrelationAgeSecs.Set(12)
	m.BreakerState.Set(metrics.BreakerStateValue("hard"))
	m.TreasuryRisky.Set(8000)
	m.TreasurySafe.Set(2000)
	m.TreasuryTotalSwept.Set(500)
	m.ActivePositions.Set(4)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected registered metric families, got none")
	}

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"brain_signal_latency_seconds",
		"brain_decisions_total",
		"brain_queue_depth",
		"brain_breaker_state",
		"brain_treasury_risky_balance",
	} {
		if !names[want] {
			t.Errorf("expected metric %s to be registered", want)
		}
	}
}

func TestBreakerStateValue(t *testing.T) {
	cases := map[string]float64{
		"normal":        0,
		"soft_cooldown": 1,
		"hard":          2,
		"unknown":       0,
	}
	for kind, want := range cases {
		if got := metrics.BreakerStateValue(kind); got != want {
			t.Errorf("BreakerStateValue(%q) = %v, want %v", kind, got, want)
		}
	}
}

