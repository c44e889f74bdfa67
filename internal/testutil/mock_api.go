// Package testutil provides testing utilities for the 24SevenOffice client.
package testutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Paths served by MockAPI.
const (
	TokenPath = "/oauth2/token"
	APIPrefix = "/v1"
)

// Credentials accepted by the mock token endpoint.
const (
	MockClientID     = "test-client"
	MockClientSecret = "test-secret"
	MockOrganization = "4711"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock 24SevenOffice server for testing. It serves
// the token endpoint, in-memory collections under /v1, invoice actions and
// the batch endpoint. Handlers set with SetHandler or SetResponse take
// precedence over the built-in behavior.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	scripted map[string][]MockResponse
	store    map[string]map[string]map[string]any
	nextID   int

	// Tracking
	RequestCount      int
	TokenCount        int
	BatchCount        int
	ConditionalCount  int
	LastRequestHeader http.Header
	paths             map[string]int
}

// NewMockAPI creates a new mock server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
		scripted: make(map[string][]MockResponse),
		store:    make(map[string]map[string]map[string]any),
		paths:    make(map[string]int),
		nextID:   1000,
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.serveHTTP))
	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// BaseURL returns the API base URL to configure a client with.
func (m *MockAPI) BaseURL() string {
	return m.server.URL + APIPrefix
}

// TokenURL returns the token endpoint URL.
func (m *MockAPI) TokenURL() string {
	return m.server.URL + TokenPath
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.TokenCount = 0
	m.BatchCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.paths = make(map[string]int)
}

// SetHandler sets a custom handler for a path relative to the API prefix,
// e.g. "/customers/1".
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.write)
}

// Script queues responses for a path. Each request consumes one; once the
// queue is empty the path falls back to its handler or the collections.
func (m *MockAPI) Script(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[path] = append(m.scripted[path], responses...)
}

// ScriptStatuses queues bare status responses for a path.
func (m *MockAPI) ScriptStatuses(path string, statuses ...int) {
	responses := make([]MockResponse, len(statuses))
	for i, status := range statuses {
		responses[i] = MockResponse{
			StatusCode: status,
			Body:       fmt.Sprintf(`{"message":"scripted %d"}`, status),
			Headers:    map[string]string{"Content-Type": "application/json"},
		}
	}
	m.Script(path, responses...)
}

// Seed stores items in a collection ("customers", "invoices", ...). Items
// are JSON encoded; an item without an "id" gets one assigned. It returns
// the ids in order.
func (m *MockAPI) Seed(collection string, items ...any) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		obj := toObject(item)
		ids = append(ids, m.insertLocked(collection, obj))
	}
	return ids
}

// Item returns a stored item or nil.
func (m *MockAPI) Item(collection, id string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store[collection][id]
}

// GetRequestCount returns the number of API requests made to the server,
// batch sub-requests and token requests excluded.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetTokenCount returns the number of token requests.
func (m *MockAPI) GetTokenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TokenCount
}

// GetBatchCount returns the number of batch calls.
func (m *MockAPI) GetBatchCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.BatchCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockAPI) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// RequestsFor returns how many requests hit path (relative to the prefix).
func (m *MockAPI) RequestsFor(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths[path]
}

// LastHeader returns the headers of the most recent API request.
func (m *MockAPI) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

func (m *MockAPI) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == TokenPath {
		m.serveToken(w, r)
		return
	}
	if !strings.HasPrefix(r.URL.Path, APIPrefix+"/") {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "missing bearer token"})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, APIPrefix)

	m.mu.Lock()
	m.RequestCount++
	m.paths[path]++
	m.LastRequestHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.ConditionalCount++
	}
	m.mu.Unlock()

	if path == "/batch" && r.Method == http.MethodPost {
		m.serveBatch(w, r)
		return
	}
	m.dispatch(w, r, path)
}

// dispatch routes one request by path. Batch sub-requests come through
// here as well.
func (m *MockAPI) dispatch(w http.ResponseWriter, r *http.Request, path string) {
	m.mu.Lock()
	if queue := m.scripted[path]; len(queue) > 0 {
		resp := queue[0]
		m.scripted[path] = queue[1:]
		m.mu.Unlock()
		resp.write(w, r)
		return
	}
	handler, exists := m.handlers[path]
	m.mu.Unlock()

	if exists {
		handler(w, r)
		return
	}
	m.serveCollection(w, r, path)
}

func (m *MockAPI) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	m.mu.Lock()
	m.TokenCount++
	count := m.TokenCount
	m.mu.Unlock()

	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	if r.PostForm.Get("client_id") != MockClientID || r.PostForm.Get("client_secret") != MockClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "invalid_client",
			"error_description": "Invalid client credentials",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": fmt.Sprintf("mock-token-%d", count),
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        r.PostForm.Get("scope"),
	})
}

func (m *MockAPI) serveBatch(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.BatchCount++
	m.mu.Unlock()

	var envelope struct {
		Requests []struct {
			ID     string          `json:"id"`
			Method string          `json:"method"`
			Path   string          `json:"path"`
			Body   json.RawMessage `json:"body"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid batch payload"})
		return
	}

	responses := make([]map[string]any, 0, len(envelope.Requests))
	for _, sub := range envelope.Requests {
		subReq := httptest.NewRequest(sub.Method, APIPrefix+sub.Path, bytes.NewReader(sub.Body))
		subReq.Header = r.Header.Clone()

		rec := httptest.NewRecorder()
		m.dispatch(rec, subReq, sub.Path)

		var decoded any
		if raw := bytes.TrimSpace(rec.Body.Bytes()); len(raw) > 0 {
			if err := json.Unmarshal(raw, &decoded); err != nil {
				decoded = string(raw)
			}
		}
		responses = append(responses, map[string]any{
			"id":     sub.ID,
			"status": rec.Code,
			"body":   decoded,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

// serveCollection implements list, get, create, update, delete and the
// invoice actions over the in-memory store.
func (m *MockAPI) serveCollection(w http.ResponseWriter, r *http.Request, path string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	collection := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		m.list(w, r, collection)
	case len(parts) == 1 && r.Method == http.MethodPost:
		obj, ok := readObject(w, r)
		if !ok {
			return
		}
		m.mu.Lock()
		delete(obj, "id")
		m.insertLocked(collection, obj)
		m.mu.Unlock()
		writeJSON(w, http.StatusCreated, obj)
	case len(parts) == 2:
		m.item(w, r, collection, parts[1])
	case len(parts) == 3 && collection == "invoices" && r.Method == http.MethodPost:
		m.invoiceAction(w, r, parts[1], parts[2])
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	}
}

func (m *MockAPI) list(w http.ResponseWriter, r *http.Request, collection string) {
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	size := atoiDefault(q.Get("pageSize"), 50)
	search := strings.ToLower(q.Get("search"))

	m.mu.RLock()
	items := make([]map[string]any, 0, len(m.store[collection]))
	for _, id := range sortedIDs(m.store[collection]) {
		obj := m.store[collection][id]
		if search != "" && !strings.Contains(strings.ToLower(fmt.Sprint(obj["name"])), search) {
			continue
		}
		if !matchesFilters(obj, q) {
			continue
		}
		items = append(items, obj)
	}
	m.mu.RUnlock()

	start := (page - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items[start:end]})
}

func (m *MockAPI) item(w http.ResponseWriter, r *http.Request, collection, id string) {
	m.mu.Lock()
	obj, ok := m.store[collection][id]
	if !ok {
		m.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"message": fmt.Sprintf("%s %s not found", collection, id)})
		return
	}

	switch r.Method {
	case http.MethodGet:
		data, _ := json.Marshal(obj)
		m.mu.Unlock()
		etag := fmt.Sprintf(`"%x"`, sha256.Sum256(data))
		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	case http.MethodPatch, http.MethodPut:
		m.mu.Unlock()
		patch, ok := readObject(w, r)
		if !ok {
			return
		}
		m.mu.Lock()
		for k, v := range patch {
			if k != "id" {
				obj[k] = v
			}
		}
		obj["updated_at"] = time.Now().UTC().Format(time.RFC3339)
		data, _ := json.Marshal(obj)
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	case http.MethodDelete:
		delete(m.store[collection], id)
		m.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		m.mu.Unlock()
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
	}
}

func (m *MockAPI) invoiceAction(w http.ResponseWriter, r *http.Request, id, action string) {
	var payload map[string]any
	if r.ContentLength != 0 {
		var ok bool
		if payload, ok = readObject(w, r); !ok {
			return
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	invoice, ok := m.store["invoices"][id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Invoice not found"})
		return
	}

	switch action {
	case "send":
		invoice["status"] = "SENT"
	case "mark-paid":
		invoice["status"] = "PAID"
		paid := time.Now().UTC().Format("2006-01-02")
		if d, ok := payload["paymentDate"].(string); ok && d != "" {
			paid = d
		}
		invoice["payment_date"] = paid
	case "credit":
		credit := make(map[string]any, len(invoice))
		for k, v := range invoice {
			credit[k] = v
		}
		delete(credit, "id")
		credit["is_credit_note"] = true
		credit["credited_invoice_id"] = id
		credit["status"] = "DRAFT"
		m.insertLocked("invoices", credit)
		invoice["status"] = "CREDITED"
		writeJSON(w, http.StatusCreated, credit)
		return
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Unknown invoice action"})
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (m *MockAPI) insertLocked(collection string, obj map[string]any) string {
	if m.store[collection] == nil {
		m.store[collection] = make(map[string]map[string]any)
	}
	id, _ := obj["id"].(string)
	if id == "" {
		m.nextID++
		id = strconv.Itoa(m.nextID)
		obj["id"] = id
	}
	if _, ok := obj["created_at"]; !ok && collection != "productcategories" {
		obj["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	m.store[collection][id] = obj
	return id
}

func (resp MockResponse) write(w http.ResponseWriter, _ *http.Request) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewJSONResponse creates a 200 OK response with a JSON body and an ETag.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"ETag":         fmt.Sprintf(`"%x"`, sha256.Sum256([]byte(data))),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":  "30",
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewValidationErrorResponse creates a 400 response with field details.
func NewValidationErrorResponse(message string, fields map[string]string) MockResponse {
	body, _ := json.Marshal(map[string]any{"message": message, "errors": fields})
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var obj map[string]any
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid JSON body"})
		return nil, false
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, true
}

func toObject(item any) map[string]any {
	if obj, ok := item.(map[string]any); ok {
		return obj
	}
	data, err := json.Marshal(item)
	if err != nil {
		panic(fmt.Sprintf("testutil: seed item: %v", err))
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		panic(fmt.Sprintf("testutil: seed item is not an object: %v", err))
	}
	return obj
}

func sortedIDs(items map[string]map[string]any) []string {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}

func matchesFilters(obj map[string]any, q url.Values) bool {
	if status := q.Get("status"); status != "" && fmt.Sprint(obj["status"]) != status {
		return false
	}
	if customer := q.Get("customerId"); customer != "" && fmt.Sprint(obj["customer_id"]) != customer {
		return false
	}
	return true
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
