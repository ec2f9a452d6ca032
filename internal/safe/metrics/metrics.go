package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AuthFailures       prometheus.Counter
	AuthLockoutsTotal  prometheus.Counter
	StateTransitions   *prometheus.CounterVec
	CodeCommits        *prometheus.CounterVec
	CompartmentRelease prometheus.Counter
	SoftErrors         prometheus.Counter
	OccupiedCells      prometheus.Gauge
}

// New registers the safe collectors on reg. Passing nil uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "digisafe_auth_failures_total",
			Help: "Total number of code comparisons that did not match",
		}),
		AuthLockoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "digisafe_auth_lockouts_total",
			Help: "Total number of lockouts after consecutive failed comparisons",
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digisafe_state_transitions_total",
			Help: "Total number of state machine transitions by destination state",
		}, []string{"state"}),
		CodeCommits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digisafe_code_commits_total",
			Help: "Total number of codes written to persistent storage",
		}, []string{"slot"}),
		CompartmentRelease: factory.NewCounter(prometheus.CounterOpts{
			Name: "digisafe_compartment_releases_total",
			Help: "Total number of compartments released by their user",
		}),
		SoftErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "digisafe_soft_errors_total",
			Help: "Total number of soft input errors signalled to the operator",
		}),
		OccupiedCells: factory.NewGauge(prometheus.GaugeOpts{
			Name: "digisafe_heap_occupied_cells",
			Help: "Current number of occupied cells in the code heap",
		}),
	}
}

func (m *Metrics) IncrementAuthFailures() {
	if m == nil {
		return
	}
	m.AuthFailures.Inc()
}

func (m *Metrics) IncrementAuthLockouts() {
	if m == nil {
		return
	}
	m.AuthLockoutsTotal.Inc()
}

func (m *Metrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncrementCodeCommits(slotKind string) {
	if m == nil {
		return
	}
	m.CodeCommits.WithLabelValues(slotKind).Inc()
}

func (m *Metrics) IncrementReleases() {
	if m == nil {
		return
	}
	m.CompartmentRelease.Inc()
}

func (m *Metrics) IncrementSoftErrors() {
	if m == nil {
		return
	}
	m.SoftErrors.Inc()
}

func (m *Metrics) SetOccupiedCells(count int) {
	if m == nil {
		return
	}
	m.OccupiedCells.Set(float64(count))
}
