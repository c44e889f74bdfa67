// Package resources provides typed access to the 24SevenOffice customer,
// invoice, product and product category endpoints.
package resources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/go24so/pkg/apierror"
	"github.com/Sternrassler/go24so/pkg/batch"
	"github.com/Sternrassler/go24so/pkg/client"
	"github.com/Sternrassler/go24so/pkg/pagination"
)

// Default list paging.
const (
	DefaultPage     = 1
	DefaultPageSize = 50
)

// API executes requests against the REST API. *client.Client implements it.
type API interface {
	Execute(ctx context.Context, req client.Request) (*client.Response, error)
}

// ListOptions select a page of a list endpoint.
type ListOptions struct {
	Page     int
	PageSize int
	// Search is a free text filter; not every endpoint honors it.
	Search string
	// Filters are passed through as additional query parameters.
	Filters url.Values
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	for k, vs := range o.Filters {
		q[k] = append([]string(nil), vs...)
	}
	page, size := o.Page, o.PageSize
	if page <= 0 {
		page = DefaultPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(size))
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	return q
}

// Service is the CRUD surface shared by every resource. T is the resource
// model and U its partial update payload.
type Service[T, U any] struct {
	api   API
	batch *batch.Coordinator
	path  string
	pages pagination.Config
}

func newService[T, U any](api API, coordinator *batch.Coordinator, path string, pages pagination.Config) *Service[T, U] {
	return &Service[T, U]{api: api, batch: coordinator, path: path, pages: pages}
}

// Path returns the collection path, e.g. "/customers".
func (s *Service[T, U]) Path() string {
	return s.path
}

func (s *Service[T, U]) itemPath(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", apierror.New(apierror.KindValidation, "resource id is required")
	}
	return s.path + "/" + url.PathEscape(id), nil
}

// List returns one page of the collection.
func (s *Service[T, U]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	resp, err := s.api.Execute(ctx, client.Request{
		Method: http.MethodGet,
		Path:   s.path,
		Query:  opts.query(),
	})
	if err != nil {
		return nil, err
	}
	return client.DecodeList[T](resp)
}

// ListAll walks every page of the collection concurrently. PageSize and
// Page in opts are ignored; the page size comes from the pagination config.
func (s *Service[T, U]) ListAll(ctx context.Context, opts ListOptions) ([]T, error) {
	fetcher := pagination.NewBatchFetcher(func(ctx context.Context, page int) ([]T, error) {
		o := opts
		o.Page = page
		o.PageSize = s.pages.PageSize
		return s.List(ctx, o)
	}, s.pages)
	return fetcher.FetchAll(ctx, s.path)
}

// Get fetches one resource by id.
func (s *Service[T, U]) Get(ctx context.Context, id string) (*T, error) {
	path, err := s.itemPath(id)
	if err != nil {
		return nil, err
	}
	resp, err := s.api.Execute(ctx, client.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	return decodeOne[T](resp)
}

// Create posts a new resource and returns the stored version.
func (s *Service[T, U]) Create(ctx context.Context, item *T) (*T, error) {
	if err := validatePayload(item); err != nil {
		return nil, err
	}
	resp, err := s.api.Execute(ctx, client.Request{
		Method: http.MethodPost,
		Path:   s.path,
		Body:   item,
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[T](resp)
}

// Update applies a partial update and returns the stored version.
func (s *Service[T, U]) Update(ctx context.Context, id string, update *U) (*T, error) {
	path, err := s.itemPath(id)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(update); err != nil {
		return nil, err
	}
	resp, err := s.api.Execute(ctx, client.Request{Method: http.MethodPatch, Path: path, Body: update})
	if err != nil {
		return nil, err
	}
	return decodeOne[T](resp)
}

// Delete removes a resource.
func (s *Service[T, U]) Delete(ctx context.Context, id string) error {
	path, err := s.itemPath(id)
	if err != nil {
		return err
	}
	_, err = s.api.Execute(ctx, client.Request{Method: http.MethodDelete, Path: path})
	return err
}

// BatchGet fetches several resources through the batch endpoint. The result
// is keyed by id; ids that failed or were missing from the batch response
// are absent.
func (s *Service[T, U]) BatchGet(ctx context.Context, ids []string) (map[string]T, error) {
	if len(ids) == 0 {
		return map[string]T{}, nil
	}

	requests := make([]batch.Request, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		path, err := s.itemPath(id)
		if err != nil {
			return nil, err
		}
		requests = append(requests, batch.Request{ID: id, Method: http.MethodGet, Path: path})
	}

	results, err := s.batch.SendAll(ctx, requests)
	if err != nil {
		return nil, err
	}
	return batch.DecodeAll[T](results)
}

func decodeOne[T any](resp *client.Response) (*T, error) {
	v, err := client.Decode[T](resp)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func validatePayload[P any](v *P) error {
	if v == nil {
		return apierror.New(apierror.KindValidation, "request payload is required")
	}
	if validator, ok := any(v).(client.Validator); ok {
		if err := validator.Validate(); err != nil {
			return apierror.Wrap(apierror.KindValidation, "invalid request payload", err)
		}
	}
	return nil
}
