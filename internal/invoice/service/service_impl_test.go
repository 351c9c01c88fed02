package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	eventdomain "github.com/smallbiznis/billora/internal/billingevent/domain"
	clientdomain "github.com/smallbiznis/billora/internal/client/domain"
	clientservice "github.com/smallbiznis/billora/internal/client/service"
	"github.com/smallbiznis/billora/internal/clock"
	"github.com/smallbiznis/billora/internal/config"
	"github.com/smallbiznis/billora/internal/events"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	invoiceservice "github.com/smallbiznis/billora/internal/invoice/service"
	recurringdomain "github.com/smallbiznis/billora/internal/recurring/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	dispatcher *events.Dispatcher
	clientSvc  clientdomain.Service
	invoiceSvc invoicedomain.Service
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&clientdomain.Client{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
		&invoicedomain.InvoiceSequence{},
		&recurringdomain.RecurringInvoice{},
		&eventdomain.BillingEvent{},
	)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	dispatcher := events.NewDispatcher(log)

	clientSvc := clientservice.New(clientservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fakeClock,
	})
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fakeClock,
		Dispatcher: dispatcher,
		Directory:  clientSvc,
		Cfg: config.Config{
			DefaultCurrency:     "USD",
			InvoiceNumberFormat: "INV-{YYYY}{MM}{DD}-{SEQ6}",
		},
	})

	// client aggregates follow lifecycle events, as wired in the fx module
	recompute := func(ctx context.Context, ev events.Event) error {
		if ev.ClientID == 0 {
			return nil
		}
		_, err := clientSvc.RecomputeAggregates(ctx, ev.ClientID)
		return err
	}
	for _, et := range []eventdomain.EventType{
		eventdomain.EventInvoiceSent,
		eventdomain.EventInvoicePaid,
		eventdomain.EventInvoiceOverdue,
		eventdomain.EventInvoiceCancelled,
		eventdomain.EventPaymentRecorded,
	} {
		dispatcher.Subscribe(et, recompute)
	}

	return &testEnv{
		db:         db,
		clock:      fakeClock,
		dispatcher: dispatcher,
		clientSvc:  clientSvc,
		invoiceSvc: invoiceSvc,
	}
}

func (e *testEnv) newClient(t *testing.T, terms clientdomain.PaymentTerms) clientdomain.Client {
	t.Helper()
	c, err := e.clientSvc.Create(context.Background(), clientdomain.CreateClientRequest{
		Name:         "Acme Corp",
		Email:        "billing@acme.test",
		PaymentTerms: terms,
	})
	require.NoError(t, err)
	return c
}

func (e *testEnv) newDraft(t *testing.T, clientID snowflake.ID) invoicedomain.Invoice {
	t.Helper()
	inv, err := e.invoiceSvc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		ClientID: clientID.String(),
		Currency: "usd",
		TaxRate:  0.08,
		LineItems: []invoicedomain.LineItemInput{
			{Description: "consulting", Quantity: 2, RateAmount: 5000, Taxable: true},
			{Description: "expenses", Quantity: 1, RateAmount: 5000, Taxable: false},
		},
	})
	require.NoError(t, err)
	return inv
}

func TestCreateInvoice(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	_, err := env.invoiceSvc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ClientID:  "12345",
		LineItems: []invoicedomain.LineItemInput{{Quantity: 1, RateAmount: 100}},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrMissingClient)

	c := env.newClient(t, clientdomain.PaymentTermsNet30)
	inv := env.newDraft(t, c.ID)

	assert.Equal(t, "INV-20260310-000001", inv.InvoiceNumber)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, int64(15000), inv.SubtotalAmount)
	assert.Equal(t, int64(800), inv.TaxAmount)
	assert.Equal(t, int64(15800), inv.TotalAmount)
	require.Len(t, inv.LineItems, 2)
	assert.Equal(t, int64(10000), inv.LineItems[0].Amount)

	second := env.newDraft(t, c.ID)
	assert.Equal(t, "INV-20260310-000002", second.InvoiceNumber)
}

func TestSendDerivesDueDateFromPaymentTerms(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	c := env.newClient(t, clientdomain.PaymentTermsNet60)
	inv := env.newDraft(t, c.ID)

	sent, err := env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionSend,
	})
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusSent, sent.Status)
	require.NotNil(t, sent.IssueDate)
	require.NotNil(t, sent.DueDate)
	assert.Equal(t, sent.IssueDate.AddDate(0, 0, 60), *sent.DueDate)

	// the outbox row committed with the transition
	var count int64
	err = env.db.Model(&eventdomain.BillingEvent{}).
		Where("event_type = ? AND invoice_id = ?", eventdomain.EventInvoiceSent, inv.ID).
		Count(&count).Error
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// aggregates recomputed via the dispatcher
	refreshed, err := env.clientSvc.GetByID(ctx, c.ID.String())
	require.NoError(t, err)
	assert.Equal(t, sent.TotalAmount, refreshed.LifetimeBilled)
	assert.Equal(t, sent.TotalAmount, refreshed.Outstanding)
}

func TestPaymentFlowUpdatesAggregates(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	c := env.newClient(t, clientdomain.PaymentTermsNet30)
	inv := env.newDraft(t, c.ID)

	_, err := env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionSend,
	})
	require.NoError(t, err)

	partial, err := env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind:   invoicedomain.TransitionPayment,
		Amount: 5800,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, partial.Status)
	assert.Equal(t, int64(5800), partial.AmountPaid)

	// partial payments leave the lifetime aggregates untouched
	refreshed, err := env.clientSvc.GetByID(ctx, c.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), refreshed.LifetimePaid)
	assert.Equal(t, partial.TotalAmount, refreshed.Outstanding)

	env.clock.Advance(5 * 24 * time.Hour)

	paid, err := env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind:   invoicedomain.TransitionPayment,
		Amount: 10000,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidDate)

	refreshed, err = env.clientSvc.GetByID(ctx, c.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paid.TotalAmount, refreshed.LifetimeBilled)
	assert.Equal(t, paid.TotalAmount, refreshed.LifetimePaid)
	assert.Equal(t, int64(0), refreshed.Outstanding)
	assert.InDelta(t, 5.0, refreshed.AveragePaymentDays, 0.01)
}

func TestApplyLineItemsOnlyInDraft(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	c := env.newClient(t, clientdomain.PaymentTermsNet30)
	inv := env.newDraft(t, c.ID)

	updated, err := env.invoiceSvc.ApplyLineItems(ctx, inv.ID.String(), invoicedomain.ApplyLineItemsRequest{
		TaxRate: 0.1,
		LineItems: []invoicedomain.LineItemInput{
			{Description: "retainer", Quantity: 1, RateAmount: 20000, Taxable: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), updated.SubtotalAmount)
	assert.Equal(t, int64(2000), updated.TaxAmount)
	assert.Equal(t, int64(22000), updated.TotalAmount)
	require.Len(t, updated.LineItems, 1)

	_, err = env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionSend,
	})
	require.NoError(t, err)

	_, err = env.invoiceSvc.ApplyLineItems(ctx, inv.ID.String(), invoicedomain.ApplyLineItemsRequest{
		LineItems: []invoicedomain.LineItemInput{
			{Description: "tamper", Quantity: 1, RateAmount: 1},
		},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrImmutable)
}

func TestMarkEmailOpenedCountsAsView(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	c := env.newClient(t, clientdomain.PaymentTermsNet30)
	inv := env.newDraft(t, c.ID)

	_, err := env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionSend,
	})
	require.NoError(t, err)

	delivered, err := env.invoiceSvc.MarkEmail(ctx, inv.ID.String(), invoicedomain.EmailStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.EmailStatusDelivered, delivered.EmailStatus)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, delivered.Status)

	opened, err := env.invoiceSvc.MarkEmail(ctx, inv.ID.String(), invoicedomain.EmailStatusOpened)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.EmailStatusOpened, opened.EmailStatus)
	assert.Equal(t, invoicedomain.InvoiceStatusViewed, opened.Status)

	// stale delivery callback cannot walk the status backwards
	stale, err := env.invoiceSvc.MarkEmail(ctx, inv.ID.String(), invoicedomain.EmailStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.EmailStatusOpened, stale.EmailStatus)
}

func TestMarkEmailReplayRecoversLostView(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	c := env.newClient(t, clientdomain.PaymentTermsNet30)
	inv := env.newDraft(t, c.ID)

	_, err := env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionSend,
	})
	require.NoError(t, err)

	// email status landed as opened but the process died before the view
	// transition could run
	err = env.db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", inv.ID).
		Update("email_status", invoicedomain.EmailStatusOpened).Error
	require.NoError(t, err)

	// the provider retries the same callback; the view must still apply even
	// though the email status no longer advances
	recovered, err := env.invoiceSvc.MarkEmail(ctx, inv.ID.String(), invoicedomain.EmailStatusOpened)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.EmailStatusOpened, recovered.EmailStatus)
	assert.Equal(t, invoicedomain.InvoiceStatusViewed, recovered.Status)
}

func TestSweepOverdue(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	c := env.newClient(t, clientdomain.PaymentTermsNet30)
	inv := env.newDraft(t, c.ID)

	_, err := env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionSend,
	})
	require.NoError(t, err)

	// inside the payment window nothing is swept
	env.clock.Advance(29 * 24 * time.Hour)
	swept, err := env.invoiceSvc.SweepOverdue(ctx, env.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	env.clock.Advance(2 * 24 * time.Hour)
	swept, err = env.invoiceSvc.SweepOverdue(ctx, env.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := env.invoiceSvc.GetByID(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, got.Status)

	// sweeping again is a no-op
	swept, err = env.invoiceSvc.SweepOverdue(ctx, env.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	// payment clears an overdue invoice
	paid, err := env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind:   invoicedomain.TransitionPayment,
		Amount: got.TotalAmount,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
}

func TestTransitionReplayDoesNotDuplicateOutbox(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	c := env.newClient(t, clientdomain.PaymentTermsNet30)
	inv := env.newDraft(t, c.ID)

	_, err := env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionSend,
	})
	require.NoError(t, err)

	_, err = env.invoiceSvc.Transition(ctx, inv.ID.String(), invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionSend,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	var count int64
	err = env.db.Model(&eventdomain.BillingEvent{}).
		Where("invoice_id = ?", inv.ID).
		Count(&count).Error
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
