// Package recurring derives the next occurrence of recurring invoices and
// emits generation requests for the external invoice-creation collaborator.
// It never constructs the new invoice itself.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/billora/internal/billingevent/domain"
	"github.com/smallbiznis/billora/internal/clock"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/billora/internal/observability/metrics"
	recurringdomain "github.com/smallbiznis/billora/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
	Config     Config `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("recurring").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
	}, nil
}

// RunForever runs the scheduler loop until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("scheduler run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes one pass of every scheduler job.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if err := s.runJob(ctx, "generate_recurrences", s.GenerateDueRecurrencesJob); err != nil {
		return err
	}
	return s.runJob(ctx, "sweep_overdue", s.SweepOverdueJob)
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	m := obsmetrics.Engine()
	m.IncJobRun(name)

	err := fn(ctx)
	m.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	m.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out", zap.String("job", name), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// GenerateDueRecurrencesJob emits a generation request for every active
// recurrence whose next date has arrived, then advances or deactivates it.
func (s *Scheduler) GenerateDueRecurrencesJob(ctx context.Context) error {
	now := s.clock.Now()

	var due []recurringdomain.RecurringInvoice
	err := s.db.WithContext(ctx).
		Where("active = ? AND next_date <= ?", true, now).
		Order("next_date asc").
		Limit(s.cfg.BatchSize).
		Find(&due).Error
	if err != nil {
		return err
	}

	for _, rec := range due {
		if err := s.generateOccurrence(ctx, rec, rec.NextDate); err != nil {
			s.log.Error("recurrence generation failed",
				zap.String("recurring_id", rec.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// SweepOverdueJob delegates to the invoice service's overdue sweep.
func (s *Scheduler) SweepOverdueJob(ctx context.Context) error {
	swept, err := s.invoiceSvc.SweepOverdue(ctx, s.clock.Now(), s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if swept > 0 {
		s.log.Info("overdue invoices swept", zap.Int("count", swept))
	}
	return nil
}

// HandleLifecycleEvent reschedules the recurrence attached to an invoice that
// was just sent or paid: the next occurrence is derived from the invoice's
// issue date.
func (s *Scheduler) HandleLifecycleEvent(ctx context.Context, invoiceID snowflake.ID) error {
	var rec recurringdomain.RecurringInvoice
	err := s.db.WithContext(ctx).
		First(&rec, "invoice_id = ? AND active = ?", invoiceID, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	inv, err := s.invoiceSvc.GetByID(ctx, invoiceID.String())
	if err != nil {
		return err
	}
	anchor := s.clock.Now()
	if inv.IssueDate != nil {
		anchor = *inv.IssueDate
	}

	next, ok := NextOccurrence(rec, anchor)
	if !ok {
		return s.deactivate(ctx, rec)
	}
	return s.schedule(ctx, rec, next)
}

// generateOccurrence emits the generation request for one occurrence and
// moves the recurrence forward, deactivating it once the cadence passes the
// end date.
func (s *Scheduler) generateOccurrence(ctx context.Context, rec recurringdomain.RecurringInvoice, occurrence time.Time) error {
	inv, err := s.invoiceSvc.GetByID(ctx, rec.InvoiceID.String())
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.appendGenerateRequest(ctx, tx, rec, inv, occurrence); err != nil {
			return err
		}

		next, ok := NextOccurrence(rec, occurrence)
		if !ok {
			return s.deactivateTx(tx, rec)
		}
		return s.scheduleTx(tx, rec, next)
	})
	if err != nil {
		return err
	}

	obsmetrics.Engine().IncRecurrence(obsmetrics.RecurrenceOutcomeGenerated)
	s.log.Info("generation requested",
		zap.String("recurring_id", rec.ID.String()),
		zap.String("template_invoice_id", rec.InvoiceID.String()),
		zap.Time("occurrence", occurrence),
	)
	return nil
}

func (s *Scheduler) appendGenerateRequest(ctx context.Context, tx *gorm.DB, rec recurringdomain.RecurringInvoice, inv invoicedomain.Invoice, occurrence time.Time) error {
	row := eventdomain.BillingEvent{
		ID:        s.genID.Generate(),
		EventType: eventdomain.EventGenerateRequested,
		InvoiceID: rec.InvoiceID,
		ClientID:  inv.ClientID,
		Payload: datatypes.JSONMap{
			"recurring_id":    rec.ID.String(),
			"frequency":       string(rec.Frequency),
			"occurrence_date": occurrence.Format(time.RFC3339),
		},
		DedupeKey: fmt.Sprintf("%s:%s:%s", eventdomain.EventGenerateRequested, rec.ID, occurrence.Format("2006-01-02")),
		CreatedAt: s.clock.Now(),
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		obsmetrics.Engine().IncOutboxEvent(string(eventdomain.EventGenerateRequested))
	}
	return nil
}

func (s *Scheduler) schedule(ctx context.Context, rec recurringdomain.RecurringInvoice, next time.Time) error {
	return s.scheduleTx(s.db.WithContext(ctx), rec, next)
}

func (s *Scheduler) scheduleTx(tx *gorm.DB, rec recurringdomain.RecurringInvoice, next time.Time) error {
	return tx.Model(&recurringdomain.RecurringInvoice{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"next_date":  next,
			"updated_at": s.clock.Now(),
		}).Error
}

func (s *Scheduler) deactivate(ctx context.Context, rec recurringdomain.RecurringInvoice) error {
	return s.deactivateTx(s.db.WithContext(ctx), rec)
}

func (s *Scheduler) deactivateTx(tx *gorm.DB, rec recurringdomain.RecurringInvoice) error {
	err := tx.Model(&recurringdomain.RecurringInvoice{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"active":     false,
			"updated_at": s.clock.Now(),
		}).Error
	if err != nil {
		return err
	}

	obsmetrics.Engine().IncRecurrence(obsmetrics.RecurrenceOutcomeDeactivated)
	s.log.Info("recurrence deactivated", zap.String("recurring_id", rec.ID.String()))
	return nil
}
