// Package observability holds the Prometheus instrumentation for the
// transition engine's batch jobs and read path.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters and histograms shared by the engine
// components. One instance is created at startup and passed down.
type Metrics struct {
	EnsembleRowsWritten   prometheus.Counter
	EnsembleBatches       prometheus.Counter
	EnsembleBuildDuration prometheus.Histogram

	ViewRefreshes       *prometheus.CounterVec // labels: level, scope={all,scenario}
	ViewRefreshDuration prometheus.Histogram
	ExportedFiles       prometheus.Counter

	AggregateDuration   prometheus.Histogram
	FallbackResolutions prometheus.Counter
}

// New creates and registers all engine metrics. Pass
// prometheus.DefaultRegisterer in production; tests use a private registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EnsembleRowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landshift",
			Name:      "ensemble_rows_written_total",
			Help:      "Transition rows written by ensemble builds.",
		}),
		EnsembleBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landshift",
			Name:      "ensemble_batches_total",
			Help:      "Insert batches flushed by ensemble builds.",
		}),
		EnsembleBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "landshift",
			Name:      "ensemble_build_duration_seconds",
			Help:      "Wall time of a complete ensemble scenario build.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		ViewRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landshift",
			Name:      "view_refreshes_total",
			Help:      "Materialized view refreshes by level and scope.",
		}, []string{"level", "scope"}),
		ViewRefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "landshift",
			Name:      "view_refresh_duration_seconds",
			Help:      "Wall time of one materialized view refresh.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		ExportedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landshift",
			Name:      "exported_files_total",
			Help:      "Parquet files written by view exports.",
		}),
		AggregateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "landshift",
			Name:      "aggregate_duration_seconds",
			Help:      "Duration of ad hoc net-change aggregation queries.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		FallbackResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landshift",
			Name:      "time_window_fallbacks_total",
			Help:      "Requested time windows resolved via the nearest-step fallback.",
		}),
	}

	reg.MustRegister(
		m.EnsembleRowsWritten,
		m.EnsembleBatches,
		m.EnsembleBuildDuration,
		m.ViewRefreshes,
		m.ViewRefreshDuration,
		m.ExportedFiles,
		m.AggregateDuration,
		m.FallbackResolutions,
	)
	return m
}
