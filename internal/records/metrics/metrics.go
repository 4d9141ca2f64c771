package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the records module.
type Metrics struct {
	RecordsCreated  *prometheus.CounterVec
	RecordsUpdated  *prometheus.CounterVec
	RecordsDeleted  *prometheus.CounterVec
	RecordsDisposed *prometheus.CounterVec
	Conflicts       *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	LockedMutations prometheus.Counter
}

// New creates a new Metrics instance with all records metrics registered.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irpf_records_created_total",
			Help: "Financial records created, by category",
		}, []string{"category"}),
		RecordsUpdated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irpf_records_updated_total",
			Help: "Financial records updated in place, by category",
		}, []string{"category"}),
		RecordsDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irpf_records_deleted_total",
			Help: "Financial records hard deleted, by category",
		}, []string{"category"}),
		RecordsDisposed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irpf_records_disposed_total",
			Help: "Assets disposed and debts settled, by category",
		}, []string{"category"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irpf_record_conflicts_total",
			Help: "Submissions rejected by the operation uniqueness key",
		}, []string{"category"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irpf_record_rejections_total",
			Help: "Submissions rejected by validation, by reason",
		}, []string{"category", "reason"}),
		LockedMutations: f.NewCounter(prometheus.CounterOpts{
			Name: "irpf_record_locked_mutations_total",
			Help: "Mutations refused because the year's declaration is submitted",
		}),
	}
}
