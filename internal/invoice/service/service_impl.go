package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	eventdomain "github.com/smallbiznis/billora/internal/billingevent/domain"
	"github.com/smallbiznis/billora/internal/clock"
	"github.com/smallbiznis/billora/internal/config"
	"github.com/smallbiznis/billora/internal/events"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	"github.com/smallbiznis/billora/internal/invoice/format"
	obsmetrics "github.com/smallbiznis/billora/internal/observability/metrics"
	"github.com/smallbiznis/billora/pkg/db"
	"github.com/smallbiznis/billora/pkg/db/option"
	"github.com/smallbiznis/billora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Dispatcher *events.Dispatcher
	Directory  invoicedomain.ClientDirectory
	Cfg        config.Config
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	dispatcher *events.Dispatcher
	directory  invoicedomain.ClientDirectory
	cfg        config.Config

	invoicerepo repository.Repository[invoicedomain.Invoice]
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		dispatcher: p.Dispatcher,
		directory:  p.Directory,
		cfg:        p.Cfg,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrMissingClient
	}
	exists, err := s.directory.ClientExists(ctx, clientID)
	if err != nil {
		return invoicedomain.Invoice{}, fmt.Errorf("client lookup: %w", err)
	}
	if !exists {
		return invoicedomain.Invoice{}, invoicedomain.ErrMissingClient
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	items, err := buildLineItems(req.LineItems, currency)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	totals, err := ComputeTotals(items, req.TaxRate, req.DiscountAmount, currency)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	now := s.clock.Now()
	inv := invoicedomain.Invoice{
		ID:             s.genID.Generate(),
		ClientID:       clientID,
		Status:         invoicedomain.InvoiceStatusDraft,
		EmailStatus:    invoicedomain.EmailStatusNotSent,
		Currency:       currency,
		TaxRate:        req.TaxRate,
		DiscountAmount: totals.DiscountAmount,
		SubtotalAmount: totals.Subtotal,
		TaxAmount:      totals.TaxAmount,
		TotalAmount:    totals.Total,
		DueDate:        req.DueDate,
		Notes:          req.Notes,
		Terms:          req.Terms,
		Metadata:       datatypes.JSONMap(req.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i := range items {
		items[i].ID = s.genID.Generate()
		items[i].InvoiceID = inv.ID
	}
	inv.LineItems = items

	// concurrent creates can race on the daily sequence; a number collision
	// gets one retry with a fresh sequence value
	for attempt := 0; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			seq, err := s.nextSequence(tx, now)
			if err != nil {
				return err
			}
			number, err := format.InvoiceNumber(s.cfg.InvoiceNumberFormat, now, seq)
			if err != nil {
				return err
			}
			inv.InvoiceNumber = number
			return tx.Create(&inv).Error
		})
		if err == nil {
			break
		}
		if db.IsDuplicateKeyErr(err) && attempt == 0 {
			continue
		}
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("client_id", clientID.String()),
		zap.Int64("total", inv.TotalAmount),
	)
	return inv, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return s.load(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	filter := &invoicedomain.Invoice{}
	if req.ClientID != nil {
		clientID, err := snowflake.ParseString(strings.TrimSpace(*req.ClientID))
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrMissingClient
		}
		filter.ClientID = clientID
	}
	if req.Status != nil {
		filter.Status = *req.Status
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true, "due_date": true}}),
	}
	if req.DueFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field: "due_date", Operator: option.GTE, Value: *req.DueFrom,
		}))
	}
	if req.DueTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field: "due_date", Operator: option.LTE, Value: *req.DueTo,
		}))
	}
	if req.Limit > 0 {
		options = append(options, option.WithLimit(req.Limit))
	}

	items, err := s.invoicerepo.Find(ctx, filter, options...)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoicedomain.ListInvoiceResponse{Invoices: invoices}, nil
}

// ApplyLineItems replaces the line items of a draft invoice and recomputes the
// derived totals. Anything past draft keeps its financial fields frozen; only
// notes and metadata stay editable there.
func (s *Service) ApplyLineItems(ctx context.Context, id string, req invoicedomain.ApplyLineItemsRequest) (invoicedomain.Invoice, error) {
	var updated invoicedomain.Invoice

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if inv.Status != invoicedomain.InvoiceStatusDraft {
			return fmt.Errorf("%w: line items frozen in %s", invoicedomain.ErrImmutable, inv.Status)
		}

		items, err := buildLineItems(req.LineItems, inv.Currency)
		if err != nil {
			return err
		}
		totals, err := ComputeTotals(items, req.TaxRate, req.DiscountAmount, inv.Currency)
		if err != nil {
			return err
		}

		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&invoicedomain.LineItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = s.genID.Generate()
			items[i].InvoiceID = inv.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}

		inv.LineItems = items
		inv.TaxRate = req.TaxRate
		inv.DiscountAmount = totals.DiscountAmount
		inv.SubtotalAmount = totals.Subtotal
		inv.TaxAmount = totals.TaxAmount
		inv.TotalAmount = totals.Total
		inv.UpdatedAt = s.clock.Now()

		if err := tx.Omit("LineItems").Save(&inv).Error; err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return updated, nil
}

// Transition applies one lifecycle signal. The status change, the derived
// payment fields and the outbox row commit atomically; the in-process event
// fans out only after commit.
func (s *Service) Transition(ctx context.Context, id string, ev invoicedomain.TransitionEvent) (invoicedomain.Invoice, error) {
	var (
		updated invoicedomain.Invoice
		emitted *events.Event
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}

		res, err := applyTransition(&inv, ev, s.clock.Now())
		if err != nil {
			return err
		}
		if !res.Changed {
			updated = inv
			return nil
		}

		// a send without an explicit due date falls back to the client's
		// payment terms
		if res.Event == eventdomain.EventInvoiceSent && inv.DueDate == nil && inv.IssueDate != nil {
			days, err := s.directory.PaymentWindowDays(ctx, inv.ClientID)
			if err != nil {
				return fmt.Errorf("payment terms lookup: %w", err)
			}
			due := inv.IssueDate.AddDate(0, 0, days)
			inv.DueDate = &due
		}

		inv.UpdatedAt = s.clock.Now()
		if err := tx.Omit("LineItems").Save(&inv).Error; err != nil {
			return err
		}
		if err := s.appendOutbox(ctx, tx, res.Event, inv); err != nil {
			return err
		}

		updated = inv
		emitted = &events.Event{
			Type:      res.Event,
			InvoiceID: inv.ID,
			ClientID:  inv.ClientID,
			Payload: map[string]any{
				"status":      string(inv.Status),
				"total":       inv.TotalAmount,
				"amount_paid": inv.AmountPaid,
			},
		}
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	if emitted != nil {
		obsmetrics.Engine().IncTransition(string(emitted.Type))
		s.log.Info("invoice transition",
			zap.String("invoice_id", updated.ID.String()),
			zap.String("event", string(emitted.Type)),
			zap.String("status", string(updated.Status)),
		)
		s.dispatcher.Dispatch(ctx, *emitted)
	}
	return updated, nil
}

// MarkEmail advances the delivery status of the invoice email. An opened
// receipt on a sent invoice also counts as the viewed signal. The view is
// attempted on every opened receipt, not only when the email status itself
// advances, so a callback replay recovers a view lost between the two writes.
func (s *Service) MarkEmail(ctx context.Context, id string, status invoicedomain.EmailStatus) (invoicedomain.Invoice, error) {
	inv, err := s.load(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	if emailStatusAdvances(inv.EmailStatus, status) {
		now := s.clock.Now()
		err = s.db.WithContext(ctx).
			Model(&invoicedomain.Invoice{}).
			Where("id = ?", inv.ID).
			Updates(map[string]any{
				"email_status": status,
				"updated_at":   now,
			}).Error
		if err != nil {
			return invoicedomain.Invoice{}, err
		}
		inv.EmailStatus = status
		inv.UpdatedAt = now
	}

	if status == invoicedomain.EmailStatusOpened && inv.Status == invoicedomain.InvoiceStatusSent {
		return s.Transition(ctx, id, invoicedomain.TransitionEvent{Kind: invoicedomain.TransitionView})
	}
	return inv, nil
}

// SweepOverdue marks open invoices past their due date as overdue and returns
// how many changed.
func (s *Service) SweepOverdue(ctx context.Context, asOf time.Time, limit int) (int, error) {
	var due []invoicedomain.Invoice
	query := s.db.WithContext(ctx).
		Where("status IN ?", []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusViewed}).
		Where("due_date IS NOT NULL AND due_date < ?", asOf).
		Order("due_date asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&due).Error; err != nil {
		return 0, err
	}

	swept := 0
	for _, inv := range due {
		res, err := markOverdue(&inv, asOf)
		if err != nil || !res.Changed {
			continue
		}

		inv.UpdatedAt = s.clock.Now()
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("LineItems").Save(&inv).Error; err != nil {
				return err
			}
			return s.appendOutbox(ctx, tx, res.Event, inv)
		})
		if err != nil {
			s.log.Error("overdue sweep failed for invoice",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
			continue
		}

		obsmetrics.Engine().IncTransition(string(res.Event))
		s.dispatcher.Dispatch(ctx, events.Event{
			Type:      res.Event,
			InvoiceID: inv.ID,
			ClientID:  inv.ClientID,
			Payload:   map[string]any{"status": string(inv.Status)},
		})
		swept++
	}
	return swept, nil
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
	}

	var inv invoicedomain.Invoice
	err = tx.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		First(&inv, "id = ?", invoiceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
		}
		return invoicedomain.Invoice{}, err
	}
	return inv, nil
}

// appendOutbox writes the lifecycle event row inside the transition
// transaction. Once-per-invoice events use deterministic dedupe keys so a
// replayed signal cannot double-append.
func (s *Service) appendOutbox(ctx context.Context, tx *gorm.DB, t eventdomain.EventType, inv invoicedomain.Invoice) error {
	dedupe := fmt.Sprintf("%s:%s", t, inv.ID)
	if t == eventdomain.EventPaymentRecorded {
		dedupe = fmt.Sprintf("%s:%s:%s", t, inv.ID, uuid.NewString())
	}

	row := eventdomain.BillingEvent{
		ID:        s.genID.Generate(),
		EventType: t,
		InvoiceID: inv.ID,
		ClientID:  inv.ClientID,
		Payload: datatypes.JSONMap{
			"invoice_number": inv.InvoiceNumber,
			"status":         string(inv.Status),
			"currency":       inv.Currency,
			"total":          inv.TotalAmount,
			"amount_paid":    inv.AmountPaid,
		},
		DedupeKey: dedupe,
		CreatedAt: s.clock.Now(),
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		obsmetrics.Engine().IncOutboxEvent(string(t))
	}
	return nil
}

func (s *Service) nextSequence(tx *gorm.DB, now time.Time) (int64, error) {
	day := now.Format("2006-01-02")
	seq := invoicedomain.InvoiceSequence{Day: day, LastSeq: 1}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day"}},
		DoUpdates: clause.Assignments(map[string]any{"last_seq": gorm.Expr("last_seq + 1")}),
	}).Create(&seq).Error
	if err != nil {
		return 0, err
	}
	var row invoicedomain.InvoiceSequence
	if err := tx.First(&row, "day = ?", day).Error; err != nil {
		return 0, err
	}
	return row.LastSeq, nil
}

func emailStatusAdvances(from, to invoicedomain.EmailStatus) bool {
	rank := map[invoicedomain.EmailStatus]int{
		invoicedomain.EmailStatusNotSent:   0,
		invoicedomain.EmailStatusSent:      1,
		invoicedomain.EmailStatusDelivered: 2,
		invoicedomain.EmailStatusOpened:    3,
		invoicedomain.EmailStatusBounced:   4,
	}
	if to == invoicedomain.EmailStatusBounced {
		return from != invoicedomain.EmailStatusBounced && from != invoicedomain.EmailStatusOpened
	}
	return rank[to] > rank[from]
}
