package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached API response.
type Key struct {
	// Namespace separates tenants sharing one store (the organization id).
	Namespace string

	// Method is the HTTP method (GET or HEAD).
	Method string

	// Path is the resource path (e.g., "/customers/42")
	Path string

	// Query are the query parameters (e.g., {"page": "1"})
	Query url.Values
}

// KeyForRequest builds the cache key for an outbound request.
func KeyForRequest(namespace string, req *http.Request) Key {
	return Key{
		Namespace: namespace,
		Method:    req.Method,
		Path:      req.URL.Path,
		Query:     req.URL.Query(),
	}
}

// String generates a deterministic cache key string.
// Format: so24:namespace:METHOD:path:query1=val1:query2=val2
//
// Example:
//
//	so24:4711:GET:v1/customers:page=1:pageSize=50
func (k Key) String() string {
	parts := []string{"so24"}

	if k.Namespace != "" {
		parts = append(parts, k.Namespace)
	}

	method := strings.ToUpper(k.Method)
	if method == "" {
		method = http.MethodGet
	}
	parts = append(parts, method)

	if path := strings.Trim(k.Path, "/"); path != "" {
		parts = append(parts, path)
	}

	// Query params sorted for determinism; repeated values keep their order.
	if len(k.Query) > 0 {
		queryKeys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			for _, v := range k.Query[key] {
				parts = append(parts, fmt.Sprintf("%s=%s", key, v))
			}
		}
	}

	return strings.Join(parts, ":")
}
