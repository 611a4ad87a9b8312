// Package metrics provides Prometheus metrics for the dose scheduler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	DosesTaken          prometheus.Counter
	DosesSkipped        prometheus.Counter
	DosesSnoozed        prometheus.Counter
	RemindersActivated  prometheus.Counter
	Notifications       *prometheus.CounterVec
	RegimenProblems     prometheus.Gauge
	ActiveReminder      prometheus.Gauge
	LowStockMedications prometheus.Gauge
	ScanDuration        prometheus.Histogram
	HTTPRequests        *prometheus.CounterVec
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DosesTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dosekeeper_doses_taken_total",
			Help: "Total doses logged as taken",
		}),
		DosesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dosekeeper_doses_skipped_total",
			Help: "Total doses skipped",
		}),
		DosesSnoozed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dosekeeper_doses_snoozed_total",
			Help: "Total reminders snoozed",
		}),
		RemindersActivated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dosekeeper_reminders_activated_total",
			Help: "Total reminders raised by the scanner",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dosekeeper_notifications_total",
			Help: "Notification requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		RegimenProblems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dosekeeper_regimen_problems",
			Help: "Medications whose regimen failed evaluation in the last scan",
		}),
		ActiveReminder: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dosekeeper_active_reminder",
			Help: "1 while a reminder is waiting for the user",
		}),
		LowStockMedications: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dosekeeper_low_stock_medications",
			Help: "Active medications at or below their refill threshold",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dosekeeper_scan_duration_seconds",
			Help:    "Due-dose scan duration",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dosekeeper_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DosesTaken,
		m.DosesSkipped,
		m.DosesSnoozed,
		m.RemindersActivated,
		m.Notifications,
		m.RegimenProblems,
		m.ActiveReminder,
		m.LowStockMedications,
		m.ScanDuration,
		m.HTTPRequests,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Notification records a notification attempt.
func (m *Metrics) Notification(kind, outcome string) {
	m.Notifications.WithLabelValues(kind, outcome).Inc()
}
