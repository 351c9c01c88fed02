package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	recurringdomain "github.com/smallbiznis/billora/internal/recurring/domain"
	"go.uber.org/zap"
)

var (
	ErrInvalidFrequency = errors.New("invalid_frequency")
	ErrInvalidSchedule  = errors.New("invalid_schedule")
)

type CreateRecurrenceRequest struct {
	InvoiceID string                    `json:"invoice_id"`
	Frequency recurringdomain.Frequency `json:"frequency"`
	EndDate   *time.Time                `json:"end_date,omitempty"`
}

type ListRecurrenceRequest struct {
	Active *bool
	Limit  int
}

// CreateRecurrence registers a template invoice for periodic regeneration.
// The first occurrence is one interval after the template's issue date, or
// after now for invoices not yet sent.
func (s *Scheduler) CreateRecurrence(ctx context.Context, req CreateRecurrenceRequest) (recurringdomain.RecurringInvoice, error) {
	if !req.Frequency.Valid() {
		return recurringdomain.RecurringInvoice{}, ErrInvalidFrequency
	}

	invoiceID, err := snowflake.ParseString(req.InvoiceID)
	if err != nil {
		return recurringdomain.RecurringInvoice{}, invoicedomain.ErrNotFound
	}
	inv, err := s.invoiceSvc.GetByID(ctx, invoiceID.String())
	if err != nil {
		return recurringdomain.RecurringInvoice{}, err
	}

	now := s.clock.Now()
	anchor := now
	if inv.IssueDate != nil {
		anchor = *inv.IssueDate
	}

	rec := recurringdomain.RecurringInvoice{
		ID:        s.genID.Generate(),
		InvoiceID: invoiceID,
		Frequency: req.Frequency,
		EndDate:   req.EndDate,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	next, ok := NextOccurrence(rec, anchor)
	if !ok {
		return recurringdomain.RecurringInvoice{}, ErrInvalidSchedule
	}
	rec.NextDate = next

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return recurringdomain.RecurringInvoice{}, err
	}

	s.log.Info("recurrence created",
		zap.String("recurring_id", rec.ID.String()),
		zap.String("template_invoice_id", rec.InvoiceID.String()),
		zap.String("frequency", string(rec.Frequency)),
		zap.Time("next_date", rec.NextDate),
	)
	return rec, nil
}

func (s *Scheduler) ListRecurrences(ctx context.Context, req ListRecurrenceRequest) ([]recurringdomain.RecurringInvoice, error) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Order("next_date asc").Limit(limit)
	if req.Active != nil {
		q = q.Where("active = ?", *req.Active)
	}

	var recs []recurringdomain.RecurringInvoice
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
