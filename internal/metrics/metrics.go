// README: Prometheus collectors shared by the API and background loops.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bagdrop"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	VicinityChecks  *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	LocationWrites  *prometheus.CounterVec
	ActiveWatches   prometheus.Gauge
	RequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_transitions_total",
			Help:      "Contract status transitions attempted, by action and result.",
		}, []string{"action", "result"}),
		VicinityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vicinity_checks_total",
			Help:      "Vicinity gate decisions, by action and outcome.",
		}, []string{"action", "outcome"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_notifications_total",
			Help:      "Push sends, by result.",
		}, []string{"result"}),
		LocationWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_writes_total",
			Help:      "Current-location writes to contract rows, by result.",
		}, []string{"result"}),
		ActiveWatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "location_active_watches",
			Help:      "Position watch subscriptions currently held by the forwarder.",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) ObserveTransition(action, result string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveVicinity(action, outcome string) {
	if m == nil {
		return
	}
	m.VicinityChecks.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLocationWrite(result string) {
	if m == nil {
		return
	}
	m.LocationWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) SetActiveWatches(n int) {
	if m == nil {
		return
	}
	m.ActiveWatches.Set(float64(n))
}

func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
