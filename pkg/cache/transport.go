package cache

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Transport is an http.RoundTripper that answers GET requests from a Store.
//
// Fresh entries are served without a network call. Expired entries that
// carry an ETag or Last-Modified are revalidated with a conditional request;
// a 304 refreshes the entry and serves the cached body. Successful non-GET
// requests invalidate the cached GET for the same path.
type Transport struct {
	// Base performs the actual requests (http.DefaultTransport if nil).
	Base http.RoundTripper

	// Store holds the entries.
	Store Store

	// TTL is how long entries are served without revalidation.
	TTL time.Duration

	// Revalidate is how long expired entries with validators are kept for
	// conditional requests.
	Revalidate time.Duration

	// Namespace separates tenants in a shared store.
	Namespace string

	Logger zerolog.Logger
}

// NewTransport creates a caching transport with DefaultTTL.
func NewTransport(base http.RoundTripper, store Store) *Transport {
	return &Transport{
		Base:       base,
		Store:      store,
		TTL:        DefaultTTL,
		Revalidate: DefaultTTL,
		Logger:     zerolog.Nop(),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.roundTripMutation(req)
	}

	ctx := req.Context()
	key := KeyForRequest(t.Namespace, req)

	entry, err := t.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		t.Logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
	}

	if entry != nil && !entry.IsExpired() {
		ServedFromCache.Inc()
		t.Logger.Debug().Str("key", key.String()).Dur("ttl", entry.TTL()).Msg("Serving response from cache")
		resp := EntryToResponse(entry, req)
		resp.Header.Set(HeaderCache, "HIT")
		return resp, nil
	}

	outReq := req
	if ShouldMakeConditionalRequest(entry) {
		outReq = req.Clone(ctx)
		AddConditionalHeaders(outReq, entry)
		ConditionalRequestsSent.Inc()
		t.Logger.Debug().
			Str("key", key.String()).
			Str("etag", entry.ETag).
			Msg("Making conditional request")
	}

	resp, err := t.base().RoundTrip(outReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified && entry != nil {
		resp.Body.Close()
		NotModifiedResponses.Inc()

		refreshed := entry.Clone()
		stamp(refreshed, t.TTL, t.Revalidate)
		if err := t.Store.Set(ctx, key, refreshed); err != nil {
			t.Logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}

		t.Logger.Debug().Str("key", key.String()).Msg("304 Not Modified - using cache")
		cached := EntryToResponse(refreshed, req)
		cached.Header.Set(HeaderCache, "REVALIDATED")
		return cached, nil
	}

	if IsStorable(resp) {
		newEntry, err := ResponseToEntry(resp, t.TTL, t.Revalidate)
		if err != nil {
			return nil, err
		}
		if err := t.Store.Set(ctx, key, newEntry); err != nil {
			t.Logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			t.Logger.Debug().
				Str("key", key.String()).
				Dur("ttl", newEntry.TTL()).
				Msg("Cached response")
		}
	}

	return resp, nil
}

func (t *Transport) roundTripMutation(req *http.Request) (*http.Response, error) {
	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		key := Key{Namespace: t.Namespace, Method: http.MethodGet, Path: req.URL.Path}
		if err := t.Store.Delete(req.Context(), key); err != nil {
			t.Logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to invalidate cache entry")
		}
	}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
