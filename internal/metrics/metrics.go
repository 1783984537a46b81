// Package metrics exposes the Brain's Prometheus instrumentation, covering
// every signal listed in spec §6.6 Observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the Brain emits. A single instance is
// constructed at startup and threaded through the components that feed it.
type Registry struct {
	SignalLatency       *prometheus.HistogramVec
	DecisionsTotal      *prometheus.CounterVec
	QueueDepth          *prometheus.GaugeVec
	PhaseModifier       *prometheus.GaugeVec
	CorrelationAgeSecs  prometheus.Gauge
	BreakerState        prometheus.Gauge
	TreasuryRisky       prometheus.Gauge
	TreasurySafe        prometheus.Gauge
	TreasuryTotalSwept  prometheus.Gauge
	ActivePositions     prometheus.Gauge
}

// New registers and returns the Brain's metric set against reg.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		SignalLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "brain",
			Name:      "signal_latency_seconds",
			Help:      "Latency from signal intake to persisted decision.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"phase"}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "decisions_total",
			Help:      "Decisions emitted, partitioned by phase and approval outcome.",
		}, []string{"phase", "approved"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "brain",
			Name:      "queue_depth",
			Help:      "Buffered signals awaiting dispatch, per priority.",
		}, []string{"phase"}),
		PhaseModifier: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "brain",
			Name:      "phase_modifier",
			Help:      "Current performance modifier per phase.",
		}, []string{"phase"}),
		CorrelationAgeSecs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "brain",
			Name:      "correlation_matrix_age_seconds",
			Help:      "Age of the last successfully recomputed correlation matrix.",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "brain",
			Name:      "breaker_state",
			Help:      "0=Normal, 1=SoftCooldown, 2=Hard.",
		}),
		TreasuryRisky: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "brain",
			Name:      "treasury_risky_balance",
			Help:      "Current risky balance.",
		}),
		TreasurySafe: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "brain",
			Name:      "treasury_safe_balance",
			Help:      "Current safe balance.",
		}),
		TreasuryTotalSwept: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "brain",
			Name:      "treasury_total_swept",
			Help:      "Lifetime total swept from risky to safe.",
		}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "brain",
			Name:      "active_positions",
			Help:      "Count of currently open positions in the last snapshot.",
		}),
	}
}

// BreakerStateValue maps a breaker kind string to the gauge encoding above.
func BreakerStateValue(kind string) float64 {
	switch kind {
	case "soft_cooldown":
		return 1
	case "hard":
		return 2
	default:
		return 0
	}
}
