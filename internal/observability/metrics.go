package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// bias estimation pipeline.
type Metrics struct {
	WindowsComputed prometheus.Counter
	WindowsSkipped  prometheus.Counter
	PairsCollected  prometheus.Counter

	UpdatesWithObservation    prometheus.Counter
	UpdatesWithoutObservation prometheus.Counter

	CyclesCompleted prometheus.Counter
	CycleDuration   prometheus.Histogram

	BiasUpdatesPublished prometheus.Counter

	// Current filter state.
	Beta       prometheus.Gauge
	Variance   prometheus.Gauge
	CorrFactor prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		WindowsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radarbias",
			Name:      "accumulation_windows_computed_total",
			Help:      "Accumulation windows successfully assembled.",
		}),
		WindowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radarbias",
			Name:      "accumulation_windows_skipped_total",
			Help:      "Accumulation windows skipped for missing radar data.",
		}),
		PairsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radarbias",
			Name:      "pairs_collected_total",
			Help:      "Colocated radar-gauge pairs collected after filtering.",
		}),
		UpdatesWithObservation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radarbias",
			Name:      "filter_updates_with_observation_total",
			Help:      "Kalman updates driven by an observed mean field bias.",
		}),
		UpdatesWithoutObservation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radarbias",
			Name:      "filter_updates_without_observation_total",
			Help:      "Kalman updates that fell back to the no-observation branch.",
		}),
		CyclesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radarbias",
			Name:      "cycles_completed_total",
			Help:      "Completed collect-estimate-persist cycles.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "radarbias",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete collect-estimate-persist cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		BiasUpdatesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radarbias",
			Name:      "bias_updates_published_total",
			Help:      "Bias updates published to the downstream topic.",
		}),
		Beta: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "radarbias",
			Name:      "mean_field_bias",
			Help:      "Current log10 mean field bias estimate (beta).",
		}),
		Variance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "radarbias",
			Name:      "mean_field_bias_variance",
			Help:      "Current variance of the mean field bias estimate (P).",
		}),
		CorrFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "radarbias",
			Name:      "correction_factor",
			Help:      "Current multiplicative radar correction factor.",
		}),
	}
}

// NewMetrics creates the pipeline metrics and registers them with the
// default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.WindowsComputed,
		m.WindowsSkipped,
		m.PairsCollected,
		m.UpdatesWithObservation,
		m.UpdatesWithoutObservation,
		m.CyclesCompleted,
		m.CycleDuration,
		m.BiasUpdatesPublished,
		m.Beta,
		m.Variance,
		m.CorrFactor,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default
// registry, avoiding "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
