package resources

import (
	"context"
	"net/http"

	"github.com/Sternrassler/go24so/pkg/client"
)

// InvoiceListOptions add the invoice filters to ListOptions.
type InvoiceListOptions struct {
	ListOptions
	Status     InvoiceStatus
	CustomerID string
}

func (o InvoiceListOptions) listOptions() ListOptions {
	lo := o.ListOptions
	if o.Status == "" && o.CustomerID == "" {
		return lo
	}
	filters := make(map[string][]string, len(lo.Filters)+2)
	for k, v := range lo.Filters {
		filters[k] = v
	}
	if o.Status != "" {
		filters["status"] = []string{string(o.Status)}
	}
	if o.CustomerID != "" {
		filters["customerId"] = []string{o.CustomerID}
	}
	lo.Filters = filters
	return lo
}

// Invoices is the invoice endpoint with its lifecycle actions.
type Invoices struct {
	*Service[Invoice, InvoiceUpdate]
}

// ListInvoices returns one page of invoices matching the filters.
func (s *Invoices) ListInvoices(ctx context.Context, opts InvoiceListOptions) ([]Invoice, error) {
	return s.List(ctx, opts.listOptions())
}

// ListAllInvoices walks every page of invoices matching the filters.
func (s *Invoices) ListAllInvoices(ctx context.Context, opts InvoiceListOptions) ([]Invoice, error) {
	return s.ListAll(ctx, opts.listOptions())
}

// Send delivers the invoice to the customer.
func (s *Invoices) Send(ctx context.Context, id string) (*Invoice, error) {
	return s.action(ctx, id, "send", nil)
}

// MarkPaid marks the invoice as paid. A zero paymentDate lets the server
// use the current date.
func (s *Invoices) MarkPaid(ctx context.Context, id string, paymentDate Date) (*Invoice, error) {
	body := map[string]string{}
	if !paymentDate.IsZero() {
		body["paymentDate"] = paymentDate.String()
	}
	return s.action(ctx, id, "mark-paid", body)
}

// CreditNote creates a credit note for the invoice and returns it.
func (s *Invoices) CreditNote(ctx context.Context, id string) (*Invoice, error) {
	return s.action(ctx, id, "credit", nil)
}

func (s *Invoices) action(ctx context.Context, id, name string, body any) (*Invoice, error) {
	path, err := s.itemPath(id)
	if err != nil {
		return nil, err
	}
	resp, err := s.api.Execute(ctx, client.Request{
		Method: http.MethodPost,
		Path:   path + "/" + name,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[Invoice](resp)
}
