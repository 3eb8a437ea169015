// Package metrics defines the Prometheus collectors exported by the indexer
// and an HTTP server for scraping them alongside health probes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Token kinds used as the "kind" label of TokensIndexedTotal.
const (
	KindTerm    = "term"
	KindSegment = "segment"
	KindMath    = "math"
)

// Metrics holds all Prometheus collectors for the indexing pipeline.
type Metrics struct {
	DocsIndexedTotal          prometheus.Counter
	DocsRejectedTotal         *prometheus.CounterVec
	TokensIndexedTotal        *prometheus.CounterVec
	TexParseFailuresTotal     prometheus.Counter
	MathIndexFailuresTotal    prometheus.Counter
	OffsetWriteFailuresTotal  prometheus.Counter
	BlobWriteFailuresTotal    *prometheus.CounterVec
	MaintenanceCyclesTotal    prometheus.Counter
	MaintenanceSettleDuration prometheus.Histogram
	SegmentFlushesTotal       *prometheus.CounterVec
	ActiveSegments            prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests independent of the global registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docs_indexed_total",
			Help: "Documents that completed the indexing pipeline.",
		}),
		DocsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docs_rejected_total",
			Help: "Documents skipped before any write, by reason.",
		}, []string{"reason"}),
		TokensIndexedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokens_indexed_total",
			Help: "Positions consumed, by token kind.",
		}, []string{"kind"}),
		TexParseFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tex_parse_failures_total",
			Help: "Math expressions the TeX parser rejected.",
		}),
		MathIndexFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "math_index_failures_total",
			Help: "Parsed math expressions the math index failed to store.",
		}),
		OffsetWriteFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offset_write_failures_total",
			Help: "Offset map entries that could not be written.",
		}),
		BlobWriteFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blob_write_failures_total",
			Help: "Blob writes that failed, by channel.",
		}, []string{"channel"}),
		MaintenanceCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "index_maintenance_cycles_total",
			Help: "Term index maintenance cycles that actually ran.",
		}),
		MaintenanceSettleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "index_maintenance_settle_seconds",
			Help:    "Time the pipeline waited for a maintenance cycle to settle.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SegmentFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "index_segment_flushes_total",
			Help: "Term index segment flushes and merges by operation and status.",
		}, []string{"op", "status"}),
		ActiveSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "index_active_segments",
			Help: "Number of on-disk term index segments.",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.DocsRejectedTotal,
		m.TokensIndexedTotal,
		m.TexParseFailuresTotal,
		m.MathIndexFailuresTotal,
		m.OffsetWriteFailuresTotal,
		m.BlobWriteFailuresTotal,
		m.MaintenanceCyclesTotal,
		m.MaintenanceSettleDuration,
		m.SegmentFlushesTotal,
		m.ActiveSegments,
	)
	return m
}

// Handler returns the scrape handler for the registry m was built on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
