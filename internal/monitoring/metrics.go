package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for stage and scan activity. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal     *prometheus.CounterVec
	ScanDuration   *prometheus.HistogramVec
	PointsMeasured prometheus.Counter
	HomingTotal    *prometheus.CounterVec
	ScanActive     prometheus.Gauge
	ScansSaved     prometheus.Counter
}

// NewMetrics creates the collectors on a private registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagescan_scans_total",
				Help: "Scans finished, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stagescan_scan_duration_seconds",
				Help:    "Wall time of completed scans",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"kind"},
		),
		PointsMeasured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stagescan_points_measured_total",
			Help: "Scan points measured",
		}),
		HomingTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagescan_homing_total",
				Help: "Homing runs, by outcome",
			},
			[]string{"outcome"},
		),
		ScanActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stagescan_scan_active",
			Help: "1 while a scan is running",
		}),
		ScansSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stagescan_scans_saved_total",
			Help: "Scan results written to the database",
		}),
	}
	m.registry.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.PointsMeasured,
		m.HomingTotal,
		m.ScanActive,
		m.ScansSaved,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ScanStarted marks a scan as running.
func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.ScanActive.Set(1)
}

// ScanFinished records the outcome of a scan. seconds is only observed for
// completed scans.
func (m *Metrics) ScanFinished(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ScanActive.Set(0)
	m.ScansTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == "completed" {
		m.ScanDuration.WithLabelValues(kind).Observe(seconds)
	}
}

// PointMeasured counts one measured scan point.
func (m *Metrics) PointMeasured() {
	if m == nil {
		return
	}
	m.PointsMeasured.Inc()
}

// Homed records the outcome of a homing run.
func (m *Metrics) Homed(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.HomingTotal.WithLabelValues(outcome).Inc()
}

// ScanSaved counts one persisted scan result.
func (m *Metrics) ScanSaved() {
	if m == nil {
		return
	}
	m.ScansSaved.Inc()
}
