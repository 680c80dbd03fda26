package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks enrichment progress per credential.
type Metrics struct {
	RowsProcessed *prometheus.CounterVec
	RowErrors     *prometheus.CounterVec
	LimitHits     *prometheus.CounterVec
	SweepDuration prometheus.Histogram
}

// NewMetrics registers the enricher metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RowsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_rows_processed_total",
			Help: "Rows written with oracle results",
		}, []string{"session"}),
		RowErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_row_errors_total",
			Help: "Rows marked ERROR after a processing failure",
		}, []string{"session"}),
		LimitHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_limit_hits_total",
			Help: "Sweeps ended by an oracle service limit",
		}, []string{"session", "reason"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_sweep_duration_seconds",
			Help:    "Duration of one credential's sweep",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400},
		}),
	}
}
