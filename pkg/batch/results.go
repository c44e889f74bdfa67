package batch

import (
	"bytes"
	"encoding/json"

	"github.com/Sternrassler/go24so/pkg/apierror"
)

// Result is the outcome of one sub-request.
type Result struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// IsSuccessful reports a 2xx status.
func (r Result) IsSuccessful() bool {
	return r.Status >= 200 && r.Status < 300
}

// Results maps the ids of an envelope to their outcomes. Results are
// immutable once returned.
type Results struct {
	ids     []string
	results map[string]Result
}

// parseResults demultiplexes a physical batch response for the given ids.
// Entries for unknown ids are ignored; the first entry for an id wins.
func parseResults(ids []string, body []byte) (*Results, error) {
	var payload struct {
		Responses []struct {
			ID     *string         `json:"id"`
			Status int             `json:"status"`
			Body   json.RawMessage `json:"body"`
		} `json:"responses"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &apierror.Error{
			Kind:    apierror.KindBatch,
			Message: "invalid batch response",
			Body:    body,
			Err:     err,
		}
	}

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	results := make(map[string]Result, len(ids))
	for _, r := range payload.Responses {
		if r.ID == nil {
			continue
		}
		if _, ok := known[*r.ID]; !ok {
			continue
		}
		if _, seen := results[*r.ID]; seen {
			continue
		}

		var respBody json.RawMessage
		if trimmed := bytes.TrimSpace(r.Body); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			respBody = r.Body
		}
		results[*r.ID] = Result{ID: *r.ID, Status: r.Status, Body: respBody}
	}

	return &Results{
		ids:     append([]string(nil), ids...),
		results: results,
	}, nil
}

// Get returns the result for id and whether the response contained it.
func (r *Results) Get(id string) (Result, bool) {
	res, ok := r.results[id]
	return res, ok
}

// Status returns the status for id, or 0 if the id is missing.
func (r *Results) Status(id string) int {
	return r.results[id].Status
}

// Body returns the raw body for id, or nil if missing or empty.
func (r *Results) Body(id string) json.RawMessage {
	return r.results[id].Body
}

// IsSuccessful reports whether id is present with a 2xx status.
func (r *Results) IsSuccessful(id string) bool {
	res, ok := r.results[id]
	return ok && res.IsSuccessful()
}

// AllSuccessful reports whether every id of the envelope succeeded.
// Missing ids count as failures.
func (r *Results) AllSuccessful() bool {
	for _, id := range r.ids {
		if !r.IsSuccessful(id) {
			return false
		}
	}
	return true
}

// IDs returns the ids of the originating envelope in order.
func (r *Results) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Missing returns the ids absent from the response.
func (r *Results) Missing() []string {
	var missing []string
	for _, id := range r.ids {
		if _, ok := r.results[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Failed returns the ids that did not succeed, missing ones included.
func (r *Results) Failed() []string {
	var failed []string
	for _, id := range r.ids {
		if !r.IsSuccessful(id) {
			failed = append(failed, id)
		}
	}
	return failed
}

// Len returns the number of ids in the originating envelope.
func (r *Results) Len() int {
	return len(r.ids)
}

// merge appends other, keeping the first result for ids seen twice.
func (r *Results) merge(other *Results) {
	seen := make(map[string]struct{}, len(r.ids))
	for _, id := range r.ids {
		seen[id] = struct{}{}
	}
	for _, id := range other.ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		r.ids = append(r.ids, id)
		if res, ok := other.results[id]; ok {
			r.results[id] = res
		}
	}
}

// DecodeAll decodes the bodies of the successful sub-requests. Failed and
// missing ids are absent from the map.
func DecodeAll[T any](r *Results) (map[string]T, error) {
	out := make(map[string]T)
	for _, id := range r.ids {
		res, ok := r.results[id]
		if !ok || !res.IsSuccessful() || len(res.Body) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(res.Body, &v); err != nil {
			return nil, apierror.Wrap(apierror.KindValidation, "decode batch result "+id, err)
		}
		out[id] = v
	}
	return out, nil
}
