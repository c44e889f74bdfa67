package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	layerMemory = "memory"
	layerRedis  = "redis"
)

var (
	// CacheHits tracks store hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "so24_cache_hits_total",
			Help: "Total number of response cache store hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks store misses by layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "so24_cache_misses_total",
			Help: "Total number of response cache store misses",
		},
		[]string{"layer"},
	)

	// CacheEntries tracks the number of entries held by bounded layers
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "so24_cache_entries",
			Help: "Current number of entries in the response cache",
		},
		[]string{"layer"},
	)

	// ServedFromCache tracks responses answered without a network call
	ServedFromCache = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "so24_cache_served_total",
			Help: "Total number of responses served from cache without a request",
		},
	)

	// ConditionalRequestsSent tracks revalidation requests
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "so24_conditional_requests_total",
			Help: "Total number of conditional requests sent with If-None-Match or If-Modified-Since",
		},
	)

	// NotModifiedResponses tracks 304 Not Modified responses
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "so24_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "so24_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"layer", "operation"}, // "get", "set", "delete"
	)
)
