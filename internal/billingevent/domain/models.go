// Package domain defines the outbox rows emitted by the lifecycle engine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventType identifies a lifecycle or scheduler event.
type EventType string

const (
	EventInvoiceSent       EventType = "invoice.sent"
	EventInvoiceViewed     EventType = "invoice.viewed"
	EventInvoicePaid       EventType = "invoice.paid"
	EventInvoiceOverdue    EventType = "invoice.overdue"
	EventInvoiceCancelled  EventType = "invoice.cancelled"
	EventPaymentRecorded   EventType = "invoice.payment_recorded"
	EventGenerateRequested EventType = "invoice.generate_requested"
)

// BillingEvent captures outbox events for billing workflows. Consumers (email
// delivery, external sync) poll unpublished rows; the engine itself only
// appends.
type BillingEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	EventType   EventType         `gorm:"type:text;not null;index"`
	InvoiceID   snowflake.ID      `gorm:"not null;index"`
	ClientID    snowflake.ID      `gorm:"index"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey   string            `gorm:"type:text;uniqueIndex:ux_billing_event_dedupe"`
	Published   bool              `gorm:"not null;default:false"`
	PublishedAt *time.Time        `gorm:""`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }
