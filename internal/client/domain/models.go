// Package domain contains persistence models and contracts for clients.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ClientStatus represents the account standing of a client.
type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "active"
	ClientStatusInactive ClientStatus = "inactive"
	ClientStatusArchived ClientStatus = "archived"
)

// Valid reports whether the status is a known account standing.
func (s ClientStatus) Valid() bool {
	switch s {
	case ClientStatusActive, ClientStatusInactive, ClientStatusArchived:
		return true
	}
	return false
}

// PaymentTerms is the agreed payment window for new invoices.
type PaymentTerms string

const (
	PaymentTermsNet30        PaymentTerms = "net_30"
	PaymentTermsNet60        PaymentTerms = "net_60"
	PaymentTermsNet90        PaymentTerms = "net_90"
	PaymentTermsDueOnReceipt PaymentTerms = "due_on_receipt"
)

// DueInDays returns the payment window length.
func (t PaymentTerms) DueInDays() int {
	switch t {
	case PaymentTermsNet60:
		return 60
	case PaymentTermsNet90:
		return 90
	case PaymentTermsDueOnReceipt:
		return 0
	default:
		return 30
	}
}

// Health is the payment-behavior risk tier derived from a client's invoices.
type Health string

const (
	HealthExcellent Health = "excellent"
	HealthGood      Health = "good"
	HealthWarning   Health = "warning"
	HealthAtRisk    Health = "at_risk"
)

// Client represents a billed party. The financial aggregate columns are
// derived from the client's invoices and never written by callers.
type Client struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	Name  string       `gorm:"type:text;not null" json:"name"`
	Email string       `gorm:"type:text;not null" json:"email"`
	Phone string       `gorm:"type:text" json:"phone,omitempty"`

	Address string `gorm:"type:text" json:"address,omitempty"`
	City    string `gorm:"type:text" json:"city,omitempty"`
	State   string `gorm:"type:text" json:"state,omitempty"`
	ZipCode string `gorm:"type:text" json:"zip_code,omitempty"`
	Country string `gorm:"type:text" json:"country,omitempty"`
	TaxID   string `gorm:"type:text" json:"tax_id,omitempty"`

	Status       ClientStatus `gorm:"type:text;not null;default:'active'" json:"status"`
	PaymentTerms PaymentTerms `gorm:"type:text;not null;default:'net_30'" json:"payment_terms"`

	LifetimeBilled     int64   `gorm:"not null;default:0" json:"lifetime_billed"`
	LifetimePaid       int64   `gorm:"not null;default:0" json:"lifetime_paid"`
	Outstanding        int64   `gorm:"not null;default:0" json:"outstanding"`
	AveragePaymentDays float64 `gorm:"not null;default:0" json:"average_payment_days"`
	Health             Health  `gorm:"type:text;not null;default:'excellent'" json:"health"`

	Notes    string            `gorm:"type:text" json:"notes,omitempty"`
	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Client) TableName() string { return "clients" }
