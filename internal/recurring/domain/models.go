// Package domain contains persistence models for invoice recurrences.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Frequency is the recurrence cadence.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Valid reports whether the frequency is a known cadence.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// Advance returns t moved forward one interval. Month-based cadences are
// calendar-aware (Jan 31 + 1 month lands in early March per time.AddDate).
func (f Frequency) Advance(t time.Time) time.Time {
	switch f {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return t.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	case FrequencyQuarterly:
		return t.AddDate(0, 3, 0)
	case FrequencyYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t
	}
}

// RecurringInvoice schedules periodic regeneration of a template invoice.
type RecurringInvoice struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Frequency Frequency    `gorm:"type:text;not null" json:"frequency"`
	NextDate  time.Time    `gorm:"not null;index" json:"next_date"`
	EndDate   *time.Time   `gorm:"" json:"end_date,omitempty"`
	Active    bool         `gorm:"not null;default:true;index" json:"active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (RecurringInvoice) TableName() string { return "recurring_invoices" }
