// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

// Package metrics provides Prometheus metrics for Cadenza.
//
// All collectors are registered with the default registry via promauto
// and exposed at /metrics by the API router.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cadenza"

var (
	// SuggestionDuration observes end-to-end suggestion query latency.
	SuggestionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "recommend",
		Name:      "suggestion_duration_seconds",
		Help:      "End-to-end suggestion query latency.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"mode", "source"})

	// SuggestionErrors counts failed suggestion queries by error code.
	SuggestionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recommend",
		Name:      "suggestion_errors_total",
		Help:      "Failed suggestion queries by error code.",
	}, []string{"code"})

	// KNNScanDuration observes brute-force scan latency.
	KNNScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "knn_scan_duration_seconds",
		Help:      "Brute-force k-NN scan latency.",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	})

	// KNNScannedEntries observes how many embeddings one scan visited.
	KNNScannedEntries = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "knn_scanned_entries",
		Help:      "Embeddings visited per k-NN scan.",
		Buckets:   prometheus.ExponentialBuckets(8, 4, 9),
	})

	// IndexEmbeddings gauges the total embedding entries in the index.
	IndexEmbeddings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "embeddings",
		Help:      "Embedding entries currently in the index.",
	})

	// IndexAnalyses gauges the total analysis records in the index.
	IndexAnalyses = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "analyses",
		Help:      "Analysis records currently in the index.",
	})

	// ContextCacheOps counts context store reads by result.
	ContextCacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "contextcache",
		Name:      "ops_total",
		Help:      "Context store reads by result (hit, miss, expired).",
	}, []string{"result"})

	// ContextCacheDegraded is 1 once the store has latched to its
	// in-process backend.
	ContextCacheDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "contextcache",
		Name:      "degraded",
		Help:      "Whether the context store has latched to the in-process backend.",
	})

	// IngestResults counts ingest outcomes.
	IngestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "results_total",
		Help:      "Ingest outcomes (ok, duplicate, dimension_mismatch, capacity, invalid).",
	}, []string{"result"})

	// EventsConsumed counts events delivered to the ingest handlers.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "consumed_total",
		Help:      "Events consumed by topic and result.",
	}, []string{"topic", "result"})

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "route", "status"})
)

// ObserveSuggestion records one completed suggestion query.
func ObserveSuggestion(mode, source string, d time.Duration) {
	SuggestionDuration.WithLabelValues(mode, source).Observe(d.Seconds())
}

// ObserveKNNScan records one completed k-NN scan.
func ObserveKNNScan(entries int, d time.Duration) {
	KNNScanDuration.Observe(d.Seconds())
	KNNScannedEntries.Observe(float64(entries))
}

// SetIndexSize updates the index gauges.
func SetIndexSize(embeddings, analyses int) {
	IndexEmbeddings.Set(float64(embeddings))
	IndexAnalyses.Set(float64(analyses))
}
