package batch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/go24so/pkg/apierror"
)

// DefaultMaxSize is the largest envelope the API accepts.
const DefaultMaxSize = 20

// Request is one sub-request of an envelope.
type Request struct {
	ID     string
	Method string
	Path   string
	Body   any
	Query  url.Values
}

// IsMutation reports whether the sub-request may change server state.
func (r Request) IsMutation() bool {
	return r.Method != http.MethodGet && r.Method != http.MethodHead
}

// wireRequest is the JSON form of a sub-request.
type wireRequest struct {
	ID          string         `json:"id"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Body        any            `json:"body,omitempty"`
	QueryParams map[string]any `json:"query_params,omitempty"`
}

// Envelope is an ordered set of sub-requests with unique ids.
// An Envelope is not safe for concurrent use.
type Envelope struct {
	requests []Request
	ids      map[string]struct{}
	maxSize  int
}

// NewEnvelope creates an empty envelope holding at most maxSize
// sub-requests (DefaultMaxSize if maxSize <= 0).
func NewEnvelope(maxSize int) *Envelope {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Envelope{
		ids:     make(map[string]struct{}),
		maxSize: maxSize,
	}
}

// AddOption configures a sub-request.
type AddOption func(*Request)

// WithID sets the sub-request id (default "req_<index>").
func WithID(id string) AddOption {
	return func(r *Request) { r.ID = id }
}

// WithBody sets the JSON body.
func WithBody(body any) AddOption {
	return func(r *Request) { r.Body = body }
}

// WithQuery sets the query parameters.
func WithQuery(query url.Values) AddOption {
	return func(r *Request) { r.Query = query }
}

// Add appends a sub-request and returns its id.
// Adding to a full envelope or reusing an id fails with KindValidation.
func (e *Envelope) Add(method, path string, opts ...AddOption) (string, error) {
	if e.IsFull() {
		return "", apierror.New(apierror.KindValidation,
			fmt.Sprintf("batch is full (max size: %d)", e.maxSize))
	}

	req := Request{
		Method: strings.ToUpper(method),
		Path:   path,
	}
	for _, opt := range opts {
		opt(&req)
	}
	if req.ID == "" {
		req.ID = fmt.Sprintf("req_%d", len(e.requests))
	}
	if _, dup := e.ids[req.ID]; dup {
		return "", apierror.New(apierror.KindValidation,
			fmt.Sprintf("duplicate batch request id %q", req.ID))
	}

	e.requests = append(e.requests, req)
	e.ids[req.ID] = struct{}{}
	return req.ID, nil
}

// Len returns the number of sub-requests.
func (e *Envelope) Len() int {
	return len(e.requests)
}

// MaxSize returns the capacity of the envelope.
func (e *Envelope) MaxSize() int {
	return e.maxSize
}

// IsEmpty reports whether no sub-request was added.
func (e *Envelope) IsEmpty() bool {
	return len(e.requests) == 0
}

// IsFull reports whether the envelope reached its capacity.
func (e *Envelope) IsFull() bool {
	return len(e.requests) >= e.maxSize
}

// IDs returns the sub-request ids in insertion order.
func (e *Envelope) IDs() []string {
	ids := make([]string, len(e.requests))
	for i, r := range e.requests {
		ids[i] = r.ID
	}
	return ids
}

// Requests returns a copy of the sub-requests.
func (e *Envelope) Requests() []Request {
	return append([]Request(nil), e.requests...)
}

// HasMutations reports whether any sub-request is not a GET or HEAD.
func (e *Envelope) HasMutations() bool {
	for _, r := range e.requests {
		if r.IsMutation() {
			return true
		}
	}
	return false
}

// Clear removes all sub-requests.
func (e *Envelope) Clear() {
	e.requests = nil
	e.ids = make(map[string]struct{})
}

// MarshalJSON encodes the physical batch payload.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	payload := struct {
		Requests []wireRequest `json:"requests"`
	}{Requests: make([]wireRequest, len(e.requests))}

	for i, r := range e.requests {
		payload.Requests[i] = wireRequest{
			ID:          r.ID,
			Method:      r.Method,
			Path:        r.Path,
			Body:        r.Body,
			QueryParams: queryParams(r.Query),
		}
	}
	return json.Marshal(payload)
}

// queryParams flattens single-valued parameters to strings.
func queryParams(q url.Values) map[string]any {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]any, len(q))
	for k, vs := range q {
		if len(vs) == 1 {
			out[k] = vs[0]
		} else {
			out[k] = vs
		}
	}
	return out
}
