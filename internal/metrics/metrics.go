// Package metrics exposes Prometheus instrumentation for the inspection
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AnalyzeDuration tracks end-to-end latency of one analyze call.
	AnalyzeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analyze_duration_seconds",
		Help:    "Duration of a single image analysis.",
		Buckets: prometheus.DefBuckets,
	})

	// AnalyzeCacheHits counts analyze calls answered from the stored
	// result of an identical image.
	AnalyzeCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analyze_cache_hits_total",
		Help: "Analyze requests served from a previously stored result.",
	})

	// AnalyzeAborts counts session aborts by reason.
	AnalyzeAborts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analyze_aborts_total",
		Help: "Sessions aborted during analysis.",
	}, []string{"reason"})

	// Finalizations counts finalized inspections by terminal status.
	Finalizations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inspection_finalizations_total",
		Help: "Finalized inspections by status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(
		AnalyzeDuration,
		AnalyzeCacheHits,
		AnalyzeAborts,
		Finalizations,
	)
}
