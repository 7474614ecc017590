package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "device_arbiter"

// Metrics records arbitration decisions.
type Metrics struct {
	selections   *prometheus.CounterVec
	failures     *prometheus.CounterVec
	releases     *prometheus.CounterVec
	reservations prometheus.Gauge
}

// NewMetrics creates the arbiter collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "selections_total",
			Help:      "Number of successful device selections by device and outcome.",
		}, []string{"device", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "selection_failures_total",
			Help:      "Number of failed device selections by reason.",
		}, []string{"reason"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "releases_total",
			Help:      "Number of release calls by result.",
		}, []string{"result"}),
		reservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "reservations",
			Help:      "Number of devices currently reserved.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.selections, m.failures, m.releases, m.reservations)
	}
	return m
}

func (m *Metrics) observeSelection(device string, outcome claimOutcome) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(device, string(outcome)).Inc()
}

func (m *Metrics) observeFailure(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeRelease(removed bool) {
	if m == nil {
		return
	}
	result := "ignored"
	if removed {
		result = "removed"
	}
	m.releases.WithLabelValues(result).Inc()
}

func (m *Metrics) setReservations(n int) {
	if m == nil {
		return
	}
	m.reservations.Set(float64(n))
}
