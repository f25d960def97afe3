// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaiwa_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kaiwa_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// Rate limiting

	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaiwa_rate_limit_decisions_total",
		Help: "Admission decisions by result (allowed, denied_global, denied_client).",
	}, []string{"result"})

	RateLimitTrackedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaiwa_rate_limit_tracked_clients",
		Help: "Per-client windows currently held in memory.",
	})

	RateLimitGlobalCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaiwa_rate_limit_global_count",
		Help: "Requests counted against the global window.",
	})

	// Chat dispatch

	ChatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaiwa_chat_requests_total",
		Help: "Chat requests by mode and outcome status code.",
	}, []string{"mode", "status"})

	// Gemini

	GeminiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaiwa_gemini_requests_total",
		Help: "Successful Gemini generations by mode.",
	}, []string{"mode"})

	GeminiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaiwa_gemini_errors_total",
		Help: "Gemini failures by reason.",
	}, []string{"reason"})

	GeminiAPILatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kaiwa_gemini_api_latency_seconds",
		Help:    "Gemini generateContent round trip latency.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
	})

	// Translation

	TranslationRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaiwa_translation_requests_total",
		Help: "Translations served by source (cache, gemini, google_api, generator).",
	}, []string{"source"})

	TranslationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaiwa_translation_errors_total",
		Help: "Cloud Translation failures by reason.",
	}, []string{"reason"})

	TranslationAPILatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kaiwa_translation_api_latency_seconds",
		Help:    "Cloud Translation round trip latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	TranslationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaiwa_translation_cache_hits_total",
		Help: "Translation cache hits.",
	})

	TranslationCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaiwa_translation_cache_misses_total",
		Help: "Translation cache misses (including expired entries).",
	})

	TranslationCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaiwa_translation_cache_entries",
		Help: "Rows in the translation cache table.",
	})
)
