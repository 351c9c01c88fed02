package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound          = errors.New("invoice_not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrInvalidDiscount   = errors.New("invalid_discount")
	ErrInvalidTaxRate    = errors.New("invalid_tax_rate")
	ErrEmptyLineItems    = errors.New("empty_line_items_on_send")
	ErrMissingClient     = errors.New("missing_client_reference")
	ErrInvalidPayment    = errors.New("invalid_payment_amount")
	ErrImmutable         = errors.New("invoice_immutable")
)

// DerivedTotals carries the recomputed monetary fields of an invoice.
type DerivedTotals struct {
	Subtotal       int64  `json:"subtotal"`
	TaxableBase    int64  `json:"taxable_base"`
	TaxAmount      int64  `json:"tax_amount"`
	DiscountAmount int64  `json:"discount_amount"`
	Total          int64  `json:"total"`
	Currency       string `json:"currency"`
}

// TransitionKind identifies an external lifecycle signal.
type TransitionKind string

const (
	TransitionSend    TransitionKind = "send"
	TransitionView    TransitionKind = "view"
	TransitionPayment TransitionKind = "payment"
	TransitionCancel  TransitionKind = "cancel"
)

// TransitionEvent is a lifecycle signal applied to one invoice. Payment events
// carry the received amount in minor units.
type TransitionEvent struct {
	Kind   TransitionKind
	Amount int64
	At     time.Time
}

// LineItemInput is a caller-supplied line prior to derivation.
type LineItemInput struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	RateAmount  int64  `json:"rate_amount"`
	Taxable     bool   `json:"taxable"`
}

type CreateInvoiceRequest struct {
	ClientID       string          `json:"client_id"`
	Currency       string          `json:"currency"`
	TaxRate        float64         `json:"tax_rate"`
	DiscountAmount int64           `json:"discount_amount"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	LineItems      []LineItemInput `json:"line_items"`
	Notes          string          `json:"notes,omitempty"`
	Terms          string          `json:"terms,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

type ApplyLineItemsRequest struct {
	TaxRate        float64         `json:"tax_rate"`
	DiscountAmount int64           `json:"discount_amount"`
	LineItems      []LineItemInput `json:"line_items"`
}

type ListInvoiceRequest struct {
	ClientID *string
	Status   *InvoiceStatus
	DueFrom  *time.Time
	DueTo    *time.Time
	Limit    int
}

type ListInvoiceResponse struct {
	Invoices []Invoice `json:"invoices"`
}

// ClientDirectory resolves client references by id. Invoices hold ids only,
// never client back-pointers.
type ClientDirectory interface {
	ClientExists(ctx context.Context, id snowflake.ID) (bool, error)
	// PaymentWindowDays returns the client's agreed payment window, used to
	// derive a due date for invoices sent without one.
	PaymentWindowDays(ctx context.Context, id snowflake.ID) (int, error)
}

// Service is the invoice lifecycle engine contract.
type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	ApplyLineItems(ctx context.Context, id string, req ApplyLineItemsRequest) (Invoice, error)
	Transition(ctx context.Context, id string, ev TransitionEvent) (Invoice, error)
	MarkEmail(ctx context.Context, id string, status EmailStatus) (Invoice, error)
	SweepOverdue(ctx context.Context, asOf time.Time, limit int) (int, error)
}
