package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the declaration lifecycle.
type Metrics struct {
	DeclarationsCreated prometheus.Counter
	Transitions         *prometheus.CounterVec
	RejectedTransitions *prometheus.CounterVec
	NetWorthJumps       prometheus.Counter
	AggregateBuild      prometheus.Histogram
	LockWait            prometheus.Histogram
}

// New creates a new Metrics instance with all declaration metrics registered.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DeclarationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "irpf_declarations_created_total",
			Help: "Declarations opened",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irpf_declaration_transitions_total",
			Help: "Declaration transitions applied, by target state",
		}, []string{"target"}),
		RejectedTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irpf_declaration_transitions_rejected_total",
			Help: "Declaration transitions refused, by reason",
		}, []string{"reason"}),
		NetWorthJumps: f.NewCounter(prometheus.CounterOpts{
			Name: "irpf_net_worth_jumps_flagged_total",
			Help: "Submissions whose net worth change exceeded the review threshold",
		}),
		AggregateBuild: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "irpf_aggregate_build_duration_seconds",
			Help:    "Time to assemble a yearly aggregate",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "irpf_declaration_lock_wait_seconds",
			Help:    "Time spent waiting for the per-declaration lock",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// ObserveAggregateBuild records the latency of an aggregate build that began at start.
func (m *Metrics) ObserveAggregateBuild(start time.Time) {
	m.AggregateBuild.Observe(time.Since(start).Seconds())
}
