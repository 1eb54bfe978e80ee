// Package metrics exposes Prometheus collectors for the document watcher.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal             *prometheus.CounterVec
	cycleDurationSeconds    prometheus.Histogram
	fetchesTotal            *prometheus.CounterVec
	documentsTotal          *prometheus.CounterVec
	pageChangesTotal        *prometheus.CounterVec
	watermarkTimestampGauge *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docwatch_cycles_total",
				Help: "Total number of watch cycles, labeled by outcome (ok, error, panic).",
			},
			[]string{"status"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docwatch_cycle_duration_seconds",
				Help:    "Histogram of watch cycle durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docwatch_fetches_total",
				Help: "Total number of index page fetches, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docwatch_documents_total",
				Help: "Documents handled by the delivery pipeline, labeled by source and stage reached.",
			},
			[]string{"source", "stage"},
		)

		pageChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docwatch_page_changes_total",
				Help: "Total number of detected page content changes, labeled by source.",
			},
			[]string{"source"},
		)

		watermarkTimestampGauge = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "docwatch_watermark_timestamp_seconds",
				Help: "Unix time of the newest committed document, labeled by source.",
			},
			[]string{"source"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle records one completed cycle.
func ObserveCycle(status string, duration time.Duration) {
	Init()
	cyclesTotal.WithLabelValues(status).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveFetch counts an index page fetch.
func ObserveFetch(source, status string) {
	Init()
	fetchesTotal.WithLabelValues(source, status).Inc()
}

// ObserveDocument counts a document by the delivery stage it reached.
func ObserveDocument(source, stage string) {
	Init()
	documentsTotal.WithLabelValues(source, stage).Inc()
}

// ObservePageChange counts a detected page change.
func ObservePageChange(source string) {
	Init()
	pageChangesTotal.WithLabelValues(source).Inc()
}

// SetWatermark exports the source's committed watermark.
func SetWatermark(source string, ts time.Time) {
	Init()
	watermarkTimestampGauge.WithLabelValues(source).Set(float64(ts.Unix()))
}
