// Package metrics exposes Prometheus instrumentation for the price monitor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

// Cycle outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
	OutcomeIdle    = "idle"
)

// Metrics holds all Prometheus metrics for the alert pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal        *prometheus.CounterVec // labels: outcome
	CycleDuration      prometheus.Histogram
	ActiveAlerts       prometheus.Gauge
	AlertsTriggered    prometheus.Counter
	CooldownSkips      prometheus.Counter
	UnpricedTokens     prometheus.Counter
	NotificationsTotal *prometheus.CounterVec // labels: channel, status
}

// New creates the metrics on a dedicated registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orbit_monitor_cycles_total",
			Help: "Price monitor cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "orbit_monitor_cycle_duration_seconds",
			Help:    "Wall time of a full monitor cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orbit_monitor_active_alerts",
			Help: "Active alerts seen by the last cycle",
		}),
		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbit_alerts_triggered_total",
			Help: "Alerts whose condition held and were dispatched",
		}),
		CooldownSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbit_alerts_cooldown_skips_total",
			Help: "Triggered alerts suppressed by the cooldown window",
		}),
		UnpricedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbit_pricefeed_unpriced_tokens_total",
			Help: "Tokens the price feed could not resolve",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orbit_notifications_total",
			Help: "Channel delivery attempts by channel and status",
		}, []string{"channel", "status"}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.ActiveAlerts,
		m.AlertsTriggered,
		m.CooldownSkips,
		m.UnpricedTokens,
		m.NotificationsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(outcome string, d time.Duration, active int) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
	m.ActiveAlerts.Set(float64(active))
}

func (m *Metrics) IncTriggered() {
	if m == nil {
		return
	}
	m.AlertsTriggered.Inc()
}

func (m *Metrics) IncCooldown() {
	if m == nil {
		return
	}
	m.CooldownSkips.Inc()
}

func (m *Metrics) AddUnpriced(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.UnpricedTokens.Add(float64(n))
}

// ObserveNotifications counts each channel result.
func (m *Metrics) ObserveNotifications(results []model.NotificationResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		status := "success"
		if !r.Success {
			status = "failure"
		}
		m.NotificationsTotal.WithLabelValues(string(r.Channel), status).Inc()
	}
}
