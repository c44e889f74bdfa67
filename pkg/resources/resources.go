package resources

import (
	"github.com/rs/zerolog"

	"github.com/Sternrassler/go24so/pkg/batch"
	"github.com/Sternrassler/go24so/pkg/pagination"
)

// Collection paths.
const (
	CustomersPath         = "/customers"
	InvoicesPath          = "/invoices"
	ProductsPath          = "/products"
	ProductCategoriesPath = "/productcategories"
)

type (
	// Customers is the customer endpoint.
	Customers = Service[Customer, CustomerUpdate]
	// Products is the product endpoint.
	Products = Service[Product, ProductUpdate]
	// ProductCategories is the product category endpoint.
	ProductCategories = Service[ProductCategory, ProductCategoryUpdate]
)

// Set bundles the resource endpoints over one API.
type Set struct {
	Customers         *Customers
	Invoices          *Invoices
	Products          *Products
	ProductCategories *ProductCategories
}

// Option configures New.
type Option func(*options)

type options struct {
	batch []batch.Option
	pages pagination.Config
}

// WithBatchOptions configures the coordinator used by BatchGet.
func WithBatchOptions(opts ...batch.Option) Option {
	return func(o *options) { o.batch = append(o.batch, opts...) }
}

// WithPagination configures the page walker used by ListAll.
func WithPagination(cfg pagination.Config) Option {
	return func(o *options) {
		if cfg.Logger == nil {
			cfg.Logger = o.pages.Logger
		}
		o.pages = cfg
	}
}

// New returns the resource endpoints bound to api. When api exposes a
// Logger (as *client.Client does), batch and pagination log through it.
func New(api API, opts ...Option) *Set {
	o := options{pages: pagination.DefaultConfig()}
	if src, ok := api.(interface{ Logger() zerolog.Logger }); ok {
		logger := src.Logger()
		o.pages.Logger = &logger
		o.batch = append(o.batch, batch.WithLogger(logger))
	}
	for _, opt := range opts {
		opt(&o)
	}
	// Fill defaults the same way the fetcher does so ListAll requests the
	// page size the fetcher compares against.
	o.pages = pagination.NewBatchFetcher[struct{}](nil, o.pages).Config()

	coordinator := batch.NewCoordinator(api, o.batch...)
	return &Set{
		Customers:         newService[Customer, CustomerUpdate](api, coordinator, CustomersPath, o.pages),
		Invoices:          &Invoices{newService[Invoice, InvoiceUpdate](api, coordinator, InvoicesPath, o.pages)},
		Products:          newService[Product, ProductUpdate](api, coordinator, ProductsPath, o.pages),
		ProductCategories: newService[ProductCategory, ProductCategoryUpdate](api, coordinator, ProductCategoriesPath, o.pages),
	}
}
