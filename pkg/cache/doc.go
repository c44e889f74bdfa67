// Package cache provides transport-level response caching for the API client.
//
// The caching transport implements the following behavior:
//
// - GET responses with status 200 are stored for a configured TTL
// - Fresh entries are answered without a network call (X-Cache: HIT)
// - Expired entries with ETag or Last-Modified are revalidated with
// If-None-Match / If-Modified-Since; a 304 refreshes the entry (X-Cache: REVALIDATED)
// - Successful POST/PUT/PATCH/DELETE requests invalidate the GET entry for the same path
// - Cache-Control: no-store responses are never stored
//
// # Stores
//
//	// Process-local, bounded by entry count
//	store, err := cache.NewMemoryStore(100, 10*time.Minute)
//
//	// Shared across processes
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewRedisStore(redisClient)
//
// # Transport
//
//	transport := cache.NewTransport(http.DefaultTransport, store)
//	transport.TTL = 5 * time.Minute
//	transport.Namespace = organizationID
//	httpClient := &http.Client{Transport: transport}
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - so24_cache_hits_total{layer} - Store hits (memory, redis)
//   - so24_cache_misses_total{layer} - Store misses
//   - so24_cache_entries{layer} - Entries held by the memory store
//   - so24_cache_served_total - Responses served without a request
//   - so24_conditional_requests_total - Revalidation requests sent
//   - so24_304_responses_total - Revalidations answered with 304
//   - so24_cache_errors_total{layer,operation} - Store errors
package cache
