package resources

import (
	"errors"
	"fmt"
	"time"
)

// DefaultCurrency is applied by the API when a customer, invoice or price
// omits its currency.
const DefaultCurrency = "NOK"

// CustomFields holds free-form values attached to a resource.
type CustomFields map[string]any

// Address is a postal address of a customer.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Type       string `json:"type,omitempty"`
}

// Contact is a person at a customer.
type Contact struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Position  string `json:"position,omitempty"`
}

// Customer is a customer record. Fields the server assigns (ID, timestamps)
// are omitted when a Customer is sent as a create payload.
type Customer struct {
	ID             ID           `json:"id,omitempty"`
	Name           string       `json:"name"`
	Email          string       `json:"email,omitempty"`
	Phone          string       `json:"phone,omitempty"`
	Website        string       `json:"website,omitempty"`
	TaxID          string       `json:"tax_id,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	CustomerNumber string       `json:"customer_number,omitempty"`
	Currency       string       `json:"currency,omitempty"`
	PaymentTerms   *int         `json:"payment_terms,omitempty"`
	Addresses      []Address    `json:"addresses,omitempty"`
	Contacts       []Contact    `json:"contacts,omitempty"`
	CustomFields   CustomFields `json:"custom_fields,omitempty"`
	IsActive       *bool        `json:"is_active,omitempty"`
	CreatedAt      *time.Time   `json:"created_at,omitempty"`
	UpdatedAt      *time.Time   `json:"updated_at,omitempty"`
}

func (c *Customer) Validate() error {
	if c.Name == "" {
		return errors.New("customer name is required")
	}
	return nil
}

// CustomerUpdate is a partial update; nil fields are left unchanged.
type CustomerUpdate struct {
	Name           *string      `json:"name,omitempty"`
	Email          *string      `json:"email,omitempty"`
	Phone          *string      `json:"phone,omitempty"`
	Website        *string      `json:"website,omitempty"`
	TaxID          *string      `json:"tax_id,omitempty"`
	Notes          *string      `json:"notes,omitempty"`
	CustomerNumber *string      `json:"customer_number,omitempty"`
	Currency       *string      `json:"currency,omitempty"`
	PaymentTerms   *int         `json:"payment_terms,omitempty"`
	Addresses      []Address    `json:"addresses,omitempty"`
	Contacts       []Contact    `json:"contacts,omitempty"`
	CustomFields   CustomFields `json:"custom_fields,omitempty"`
	IsActive       *bool        `json:"is_active,omitempty"`
}

func (u *CustomerUpdate) Validate() error {
	if u.Name != nil && *u.Name == "" {
		return errors.New("customer name cannot be empty")
	}
	return nil
}

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoiceSent      InvoiceStatus = "SENT"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceOverdue   InvoiceStatus = "OVERDUE"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
	InvoiceCredited  InvoiceStatus = "CREDITED"
)

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled, InvoiceCredited:
		return true
	}
	return false
}

// InvoiceLineItem is one line of an invoice. LineTotal is computed by the
// server.
type InvoiceLineItem struct {
	Description  string       `json:"description"`
	Quantity     float64      `json:"quantity"`
	UnitPrice    float64      `json:"unit_price"`
	VATRate      *float64     `json:"vat_rate,omitempty"`
	Discount     *float64     `json:"discount,omitempty"`
	ProductID    string       `json:"product_id,omitempty"`
	Unit         string       `json:"unit,omitempty"`
	LineTotal    *float64     `json:"line_total,omitempty"`
	CustomFields CustomFields `json:"custom_fields,omitempty"`
}

func (li InvoiceLineItem) validate() error {
	if li.Description == "" {
		return errors.New("description is required")
	}
	return nil
}

// InvoiceTotals are the server computed sums of an invoice.
type InvoiceTotals struct {
	Subtotal       float64 `json:"subtotal"`
	VATAmount      float64 `json:"vat_amount"`
	DiscountAmount float64 `json:"discount_amount"`
	Total          float64 `json:"total"`
}

// Invoice is an invoice or credit note.
type Invoice struct {
	ID                ID                `json:"id,omitempty"`
	InvoiceNumber     string            `json:"invoice_number,omitempty"`
	CustomerID        ID                `json:"customer_id"`
	InvoiceDate       Date              `json:"invoice_date,omitzero"`
	DueDate           Date              `json:"due_date,omitzero"`
	LineItems         []InvoiceLineItem `json:"line_items"`
	Notes             string            `json:"notes,omitempty"`
	PaymentTerms      *int              `json:"payment_terms,omitempty"`
	Currency          string            `json:"currency,omitempty"`
	Reference         string            `json:"reference,omitempty"`
	Status            InvoiceStatus     `json:"status,omitempty"`
	CustomFields      CustomFields      `json:"custom_fields,omitempty"`
	Totals            *InvoiceTotals    `json:"totals,omitempty"`
	PaymentDate       Date              `json:"payment_date,omitzero"`
	IsCreditNote      bool              `json:"is_credit_note,omitempty"`
	CreditedInvoiceID ID                `json:"credited_invoice_id,omitempty"`
	CreatedAt         *time.Time        `json:"created_at,omitempty"`
	UpdatedAt         *time.Time        `json:"updated_at,omitempty"`
}

func (inv *Invoice) Validate() error {
	if inv.CustomerID == "" {
		return errors.New("invoice customer_id is required")
	}
	if inv.Status != "" && !inv.Status.Valid() {
		return fmt.Errorf("invoice status %q is unknown", inv.Status)
	}
	for i, li := range inv.LineItems {
		if err := li.validate(); err != nil {
			return fmt.Errorf("invoice line item %d: %w", i, err)
		}
	}
	return nil
}

// InvoiceUpdate is a partial update; nil and zero fields are left unchanged.
type InvoiceUpdate struct {
	CustomerID   *string           `json:"customer_id,omitempty"`
	InvoiceDate  Date              `json:"invoice_date,omitzero"`
	DueDate      Date              `json:"due_date,omitzero"`
	LineItems    []InvoiceLineItem `json:"line_items,omitempty"`
	Notes        *string           `json:"notes,omitempty"`
	PaymentTerms *int              `json:"payment_terms,omitempty"`
	Currency     *string           `json:"currency,omitempty"`
	Reference    *string           `json:"reference,omitempty"`
	Status       InvoiceStatus     `json:"status,omitempty"`
	CustomFields CustomFields      `json:"custom_fields,omitempty"`
}

func (u *InvoiceUpdate) Validate() error {
	if u.Status != "" && !u.Status.Valid() {
		return fmt.Errorf("invoice status %q is unknown", u.Status)
	}
	for i, li := range u.LineItems {
		if err := li.validate(); err != nil {
			return fmt.Errorf("invoice line item %d: %w", i, err)
		}
	}
	return nil
}

// PriceInfo is the sales price of a product.
type PriceInfo struct {
	Price    float64  `json:"price"`
	Currency string   `json:"currency,omitempty"`
	VATRate  *float64 `json:"vat_rate,omitempty"`
	Discount *float64 `json:"discount,omitempty"`
	Unit     string   `json:"unit,omitempty"`
}

// StockInfo is the inventory position of a product.
type StockInfo struct {
	Quantity     *float64 `json:"quantity,omitempty"`
	ReorderPoint *float64 `json:"reorder_point,omitempty"`
	Location     string   `json:"location,omitempty"`
}

// Product is a product or service sold by the organization.
type Product struct {
	ID           ID           `json:"id,omitempty"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	SKU          string       `json:"sku,omitempty"`
	Barcode      string       `json:"barcode,omitempty"`
	Category     string       `json:"category,omitempty"`
	Brand        string       `json:"brand,omitempty"`
	PriceInfo    *PriceInfo   `json:"price_info,omitempty"`
	StockInfo    *StockInfo   `json:"stock_info,omitempty"`
	TaxCode      string       `json:"tax_code,omitempty"`
	IsService    bool         `json:"is_service,omitempty"`
	IsActive     *bool        `json:"is_active,omitempty"`
	CustomFields CustomFields `json:"custom_fields,omitempty"`
	CreatedAt    *time.Time   `json:"created_at,omitempty"`
	UpdatedAt    *time.Time   `json:"updated_at,omitempty"`
}

func (p *Product) Validate() error {
	if p.Name == "" {
		return errors.New("product name is required")
	}
	if p.PriceInfo != nil && p.PriceInfo.Price < 0 {
		return errors.New("product price cannot be negative")
	}
	return nil
}

// ProductUpdate is a partial update; nil fields are left unchanged.
type ProductUpdate struct {
	Name         *string      `json:"name,omitempty"`
	Description  *string      `json:"description,omitempty"`
	SKU          *string      `json:"sku,omitempty"`
	Barcode      *string      `json:"barcode,omitempty"`
	Category     *string      `json:"category,omitempty"`
	Brand        *string      `json:"brand,omitempty"`
	PriceInfo    *PriceInfo   `json:"price_info,omitempty"`
	StockInfo    *StockInfo   `json:"stock_info,omitempty"`
	TaxCode      *string      `json:"tax_code,omitempty"`
	IsService    *bool        `json:"is_service,omitempty"`
	IsActive     *bool        `json:"is_active,omitempty"`
	CustomFields CustomFields `json:"custom_fields,omitempty"`
}

func (u *ProductUpdate) Validate() error {
	if u.Name != nil && *u.Name == "" {
		return errors.New("product name cannot be empty")
	}
	if u.PriceInfo != nil && u.PriceInfo.Price < 0 {
		return errors.New("product price cannot be negative")
	}
	return nil
}

// ProductCategory groups products. Unlike the other resources this endpoint
// uses camelCase field names.
type ProductCategory struct {
	ID                   ID     `json:"id,omitempty"`
	Name                 string `json:"name"`
	ParentID             ID     `json:"parentId,omitempty"`
	AlternativeReference string `json:"alternativeReference,omitempty"`
	ModifiedAt           string `json:"modifiedAt,omitempty"`
}

func (c *ProductCategory) Validate() error {
	if c.Name == "" {
		return errors.New("product category name is required")
	}
	return nil
}

// ProductCategoryUpdate is a partial update; nil fields are left unchanged.
type ProductCategoryUpdate struct {
	Name                 *string `json:"name,omitempty"`
	ParentID             *string `json:"parentId,omitempty"`
	AlternativeReference *string `json:"alternativeReference,omitempty"`
}

func (u *ProductCategoryUpdate) Validate() error {
	if u.Name != nil && *u.Name == "" {
		return errors.New("product category name cannot be empty")
	}
	return nil
}
