// Package observability bundles Prometheus metrics for the classification
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineCollector registers and exposes the pipeline's Prometheus metrics.
type PipelineCollector struct {
	SegmentsIngested  *prometheus.CounterVec
	SegmentsRejected  *prometheus.CounterVec
	DuplicateSegments prometheus.Counter
	QueueLength       prometheus.Gauge
	Verdicts          *prometheus.GaugeVec
	CasesOpened       prometheus.Counter
	FoldDuration      prometheus.Histogram
}

// NewPipelineCollector registers pipeline metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	ingested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satwatch_segments_ingested_total",
		Help: "Capture segments accepted into the pipeline, labeled by satellite.",
	}, []string{"satellite"})

	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satwatch_segments_rejected_total",
		Help: "Capture segments rejected before classification, labeled by reason.",
	}, []string{"reason"})

	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satwatch_segments_duplicate_total",
		Help: "Redelivered segments ignored by the ledger's at-most-once accounting.",
	})

	queueLength := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satwatch_ingest_queue_length",
		Help: "Current number of segments buffered awaiting classification.",
	})

	verdicts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "satwatch_transponder_verdicts",
		Help: "Current number of transponders per encryption verdict.",
	}, []string{"verdict"})

	casesOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satwatch_disclosure_cases_opened_total",
		Help: "Disclosure cases opened for unencrypted transponders.",
	})

	foldDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satwatch_fold_duration_seconds",
		Help:    "Time to fold one segment's evidence into the ledger.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	for _, c := range []prometheus.Collector{
		ingested, rejected, duplicates, queueLength, verdicts, casesOpened, foldDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &PipelineCollector{
		SegmentsIngested:  ingested,
		SegmentsRejected:  rejected,
		DuplicateSegments: duplicates,
		QueueLength:       queueLength,
		Verdicts:          verdicts,
		CasesOpened:       casesOpened,
		FoldDuration:      foldDuration,
	}, nil
}

// NopCollector returns a collector backed by a throwaway registry, for
// callers that don't scrape metrics.
func NopCollector() *PipelineCollector {
	collector, err := NewPipelineCollector(prometheus.NewRegistry())
	if err != nil {
		// A fresh registry cannot collide.
		panic(err)
	}
	return collector
}
