// Package metrics exposes Prometheus instrumentation for the monitor
// runtime and the metering engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors shared across components.
type Metrics struct {
	registry *prometheus.Registry

	EventsEvaluated     prometheus.Counter
	MatchesRecorded     prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	BillingCycles       prometheus.Counter
	TenantsDebited      prometheus.Counter
	InsolvencyCascades  prometheus.Counter

	ActiveSessions   prometheus.Gauge
	AttachedMonitors prometheus.Gauge
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EventsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "keywatch_events_evaluated_total",
			Help: "Inbound chat events dispatched to monitor listeners.",
		}),
		MatchesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "keywatch_matches_recorded_total",
			Help: "Keyword matches appended to monitor results.",
		}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "keywatch_notifications_sent_total",
			Help: "Outbound notifications delivered.",
		}),
		NotificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "keywatch_notifications_failed_total",
			Help: "Outbound notifications that could not be delivered.",
		}),
		BillingCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "keywatch_billing_cycles_total",
			Help: "Completed daily billing cycles.",
		}),
		TenantsDebited: factory.NewCounter(prometheus.CounterOpts{
			Name: "keywatch_tenants_debited_total",
			Help: "Tenants successfully debited during billing cycles.",
		}),
		InsolvencyCascades: factory.NewCounter(prometheus.CounterOpts{
			Name: "keywatch_insolvency_cascades_total",
			Help: "Insolvency events that paused all of a tenant's monitors.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "keywatch_active_sessions",
			Help: "Authenticated per-tenant connection sessions.",
		}),
		AttachedMonitors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "keywatch_attached_monitors",
			Help: "Monitors currently attached to live connections.",
		}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
