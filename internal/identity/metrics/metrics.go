package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for registration and login.
type Metrics struct {
	UsersCreated prometheus.Counter
	Logins       *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UsersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "irpf_users_created_total",
			Help: "Users registered",
		}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irpf_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
	}
}
