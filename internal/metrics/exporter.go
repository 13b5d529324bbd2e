// Package metrics exposes fetch-cycle counters over a Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter owns the registry and the per-account fetch counters.
type Exporter struct {
	registry *prometheus.Registry

	fetched    *prometheus.CounterVec
	failed     *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	bounces    *prometheus.CounterVec

	cycleDuration *prometheus.HistogramVec
	storedTotal   prometheus.Gauge
}

// NewExporter creates the exporter with its own registry, keeping the
// default global registry untouched for tests.
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()

	accountLabels := []string{"account"}
	exporter := &Exporter{
		registry: registry,

		fetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_messages_fetched_total",
			Help: "Messages fetched and persisted, per account",
		}, accountLabels),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_messages_failed_total",
			Help: "Messages that failed processing, per account",
		}, accountLabels),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_messages_duplicate_total",
			Help: "Messages skipped as already-known Message-Ids, per account",
		}, accountLabels),
		bounces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_messages_bounced_total",
			Help: "Delivery status notifications recognized, per account",
		}, accountLabels),

		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailgate_fetch_cycle_duration_seconds",
			Help:    "Duration of a complete fetch cycle, per account",
			Buckets: prometheus.DefBuckets,
		}, accountLabels),
		storedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailgate_messages_stored",
			Help: "Total messages in the database",
		}),
	}

	registry.MustRegister(
		exporter.fetched,
		exporter.failed,
		exporter.duplicates,
		exporter.bounces,
		exporter.cycleDuration,
		exporter.storedTotal,
	)

	return exporter
}

// Handler returns the HTTP handler serving the registry
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// IncFetched counts a persisted message
func (e *Exporter) IncFetched(account string) {
	e.fetched.WithLabelValues(account).Inc()
}

// IncFailed counts a message that could not be processed
func (e *Exporter) IncFailed(account string) {
	e.failed.WithLabelValues(account).Inc()
}

// IncDuplicate counts a message skipped by the dedup gate
func (e *Exporter) IncDuplicate(account string) {
	e.duplicates.WithLabelValues(account).Inc()
}

// IncBounce counts a recognized delivery status notification
func (e *Exporter) IncBounce(account string) {
	e.bounces.WithLabelValues(account).Inc()
}

// ObserveCycleDuration records how long a fetch cycle took
func (e *Exporter) ObserveCycleDuration(account string, seconds float64) {
	e.cycleDuration.WithLabelValues(account).Observe(seconds)
}

// SetStoredTotal sets the database message count
func (e *Exporter) SetStoredTotal(count float64) {
	e.storedTotal.Set(count)
}
