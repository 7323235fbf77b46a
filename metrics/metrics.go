// Package metrics exposes Prometheus counters for calculations, index source
// selection and reference-table maintenance.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "legalcalc"

// Calculation kinds used as the "kind" label.
const (
	KindSeverance = "severance"
	KindArrears   = "arrears"
)

// Metrics groups every collector of the service. A nil *Metrics is valid and
// records nothing, so components can take it as an optional dependency.
type Metrics struct {
	calculations        *prometheus.CounterVec
	calculationDuration *prometheus.HistogramVec
	indexSource         *prometheus.CounterVec
	indexFetchDuration  prometheus.Histogram
	referenceAppends    *prometheus.CounterVec
}

// New builds the collectors and registers them. A nil registerer falls back to
// prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Calculations by kind and result status.",
		}, []string{"kind", "status"}),
		calculationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_seconds",
			Help:      "Calculation latency including the index fetch.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		indexSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_tables_total",
			Help:      "Monthly rate tables resolved, by requested index, applied index and source.",
		}, []string{"requested", "applied", "source"}),
		indexFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_fetch_duration_seconds",
			Help:      "Latency of official series fetches, successful or not.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		referenceAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_appends_total",
			Help:      "Administrative reference-table appends by series.",
		}, []string{"kind"}),
	}

	registerer.MustRegister(
		m.calculations,
		m.calculationDuration,
		m.indexSource,
		m.indexFetchDuration,
		m.referenceAppends,
	)
	return m
}

// ObserveCalculation records one finished calculation.
func (m *Metrics) ObserveCalculation(kind, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(kind, status).Inc()
	m.calculationDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// ObserveIndexTable records which source served a rate table.
func (m *Metrics) ObserveIndexTable(requested, applied, source string) {
	if m == nil {
		return
	}
	m.indexSource.WithLabelValues(requested, applied, source).Inc()
}

// ObserveIndexFetch records the latency of one series fetch.
func (m *Metrics) ObserveIndexFetch(took time.Duration) {
	if m == nil {
		return
	}
	m.indexFetchDuration.Observe(took.Seconds())
}

// ObserveReferenceAppend counts an administrative append.
func (m *Metrics) ObserveReferenceAppend(kind string) {
	if m == nil {
		return
	}
	m.referenceAppends.WithLabelValues(kind).Inc()
}
