// Package domain contains persistence models and contracts for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusViewed    InvoiceStatus = "viewed"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Terminal reports whether no further lifecycle transition is allowed.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// Valid reports whether the status is a known lifecycle state.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// EmailStatus tracks delivery of the invoice email.
type EmailStatus string

const (
	EmailStatusNotSent   EmailStatus = "not_sent"
	EmailStatusSent      EmailStatus = "sent"
	EmailStatusDelivered EmailStatus = "delivered"
	EmailStatusOpened    EmailStatus = "opened"
	EmailStatusBounced   EmailStatus = "bounced"
)

// Valid reports whether the email status is known.
func (s EmailStatus) Valid() bool {
	switch s {
	case EmailStatusNotSent, EmailStatusSent, EmailStatusDelivered,
		EmailStatusOpened, EmailStatusBounced:
		return true
	}
	return false
}

// Invoice represents a client invoice. Subtotal, tax and total are derived
// from the line items and never written independently.
type Invoice struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceNumber string       `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	ClientID      snowflake.ID `gorm:"not null;index" json:"client_id"`

	Status      InvoiceStatus `gorm:"type:text;not null;default:'draft'" json:"status"`
	EmailStatus EmailStatus   `gorm:"type:text;not null;default:'not_sent'" json:"email_status"`

	Currency       string  `gorm:"type:text;not null" json:"currency"`
	TaxRate        float64 `gorm:"not null;default:0" json:"tax_rate"`
	DiscountAmount int64   `gorm:"not null;default:0" json:"discount_amount"`
	SubtotalAmount int64   `gorm:"not null;default:0" json:"subtotal_amount"`
	TaxAmount      int64   `gorm:"not null;default:0" json:"tax_amount"`
	TotalAmount    int64   `gorm:"not null;default:0" json:"total_amount"`
	AmountPaid     int64   `gorm:"not null;default:0" json:"amount_paid"`

	IssueDate *time.Time `gorm:"" json:"issue_date,omitempty"`
	DueDate   *time.Time `gorm:"" json:"due_date,omitempty"`
	PaidDate  *time.Time `gorm:"" json:"paid_date,omitempty"`

	LineItems []LineItem `gorm:"constraint:OnDelete:CASCADE" json:"line_items"`

	Notes    string            `gorm:"type:text" json:"notes,omitempty"`
	Terms    string            `gorm:"type:text" json:"terms,omitempty"`
	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Billable reports whether the invoice counts toward a client's lifetime
// billed amount.
func (i Invoice) Billable() bool {
	return i.Status != InvoiceStatusDraft && i.Status != InvoiceStatusCancelled
}

// Outstanding returns the unpaid remainder on the invoice.
func (i Invoice) Outstanding() int64 {
	remaining := i.TotalAmount - i.AmountPaid
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LineItem represents a line on an invoice. Line items are owned by their
// invoice and removed with it.
type LineItem struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Position    int          `gorm:"not null" json:"position"`
	Description string       `gorm:"type:text" json:"description"`
	Quantity    int64        `gorm:"not null" json:"quantity"`
	RateAmount  int64        `gorm:"not null" json:"rate_amount"`
	Amount      int64        `gorm:"not null" json:"amount"`
	Taxable     bool         `gorm:"not null;default:true" json:"taxable"`
}

// TableName sets the database table name.
func (LineItem) TableName() string { return "line_items" }

// InvoiceSequence backs per-day invoice number generation.
type InvoiceSequence struct {
	Day     string `gorm:"primaryKey;type:text"`
	LastSeq int64  `gorm:"not null;default:0"`
}

// TableName sets the database table name.
func (InvoiceSequence) TableName() string { return "invoice_sequences" }
