package service

import (
	"fmt"
	"time"

	eventdomain "github.com/smallbiznis/billora/internal/billingevent/domain"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
)

// transitionResult describes the outcome of applying one lifecycle signal.
type transitionResult struct {
	Event   eventdomain.EventType
	Changed bool
}

// applyTransition mutates inv according to the signal, or returns an error
// leaving inv untouched. Callers pass a copy and persist only on success, so a
// failed transition never partially mutates stored state.
func applyTransition(inv *invoicedomain.Invoice, ev invoicedomain.TransitionEvent, now time.Time) (transitionResult, error) {
	if ev.At.IsZero() {
		ev.At = now
	}

	if inv.Status.Terminal() {
		return transitionResult{}, fmt.Errorf("%w: invoice is %s", invoicedomain.ErrInvalidTransition, inv.Status)
	}

	switch ev.Kind {
	case invoicedomain.TransitionSend:
		return applySend(inv, ev)
	case invoicedomain.TransitionView:
		return applyView(inv)
	case invoicedomain.TransitionPayment:
		return applyPayment(inv, ev)
	case invoicedomain.TransitionCancel:
		inv.Status = invoicedomain.InvoiceStatusCancelled
		return transitionResult{Event: eventdomain.EventInvoiceCancelled, Changed: true}, nil
	default:
		return transitionResult{}, fmt.Errorf("%w: unknown signal %q", invoicedomain.ErrInvalidTransition, ev.Kind)
	}
}

func applySend(inv *invoicedomain.Invoice, ev invoicedomain.TransitionEvent) (transitionResult, error) {
	if inv.Status != invoicedomain.InvoiceStatusDraft {
		return transitionResult{}, fmt.Errorf("%w: cannot send from %s", invoicedomain.ErrInvalidTransition, inv.Status)
	}
	if len(inv.LineItems) == 0 {
		return transitionResult{}, invoicedomain.ErrEmptyLineItems
	}
	if inv.ClientID == 0 {
		return transitionResult{}, invoicedomain.ErrMissingClient
	}

	if inv.IssueDate == nil {
		at := ev.At
		inv.IssueDate = &at
	}
	inv.Status = invoicedomain.InvoiceStatusSent
	if inv.EmailStatus == invoicedomain.EmailStatusNotSent {
		inv.EmailStatus = invoicedomain.EmailStatusSent
	}
	return transitionResult{Event: eventdomain.EventInvoiceSent, Changed: true}, nil
}

func applyView(inv *invoicedomain.Invoice) (transitionResult, error) {
	switch inv.Status {
	case invoicedomain.InvoiceStatusSent:
		inv.Status = invoicedomain.InvoiceStatusViewed
		return transitionResult{Event: eventdomain.EventInvoiceViewed, Changed: true}, nil
	case invoicedomain.InvoiceStatusViewed, invoicedomain.InvoiceStatusOverdue:
		// read receipts may repeat or arrive after the overdue sweep
		return transitionResult{}, nil
	default:
		return transitionResult{}, fmt.Errorf("%w: cannot view from %s", invoicedomain.ErrInvalidTransition, inv.Status)
	}
}

func applyPayment(inv *invoicedomain.Invoice, ev invoicedomain.TransitionEvent) (transitionResult, error) {
	switch inv.Status {
	case invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusViewed, invoicedomain.InvoiceStatusOverdue:
	default:
		return transitionResult{}, fmt.Errorf("%w: cannot record payment from %s", invoicedomain.ErrInvalidTransition, inv.Status)
	}
	if ev.Amount <= 0 {
		return transitionResult{}, fmt.Errorf("%w: amount %d", invoicedomain.ErrInvalidPayment, ev.Amount)
	}
	if inv.AmountPaid+ev.Amount > inv.TotalAmount {
		return transitionResult{}, fmt.Errorf("%w: %d exceeds outstanding %d",
			invoicedomain.ErrInvalidPayment, ev.Amount, inv.Outstanding())
	}

	inv.AmountPaid += ev.Amount
	if inv.AmountPaid == inv.TotalAmount {
		at := ev.At
		inv.Status = invoicedomain.InvoiceStatusPaid
		inv.PaidDate = &at
		return transitionResult{Event: eventdomain.EventInvoicePaid, Changed: true}, nil
	}
	// partial payment: tracked, status unchanged
	return transitionResult{Event: eventdomain.EventPaymentRecorded, Changed: true}, nil
}

// markOverdue flips an open invoice past its due date to overdue. Paid and
// cancelled invoices are never touched.
func markOverdue(inv *invoicedomain.Invoice, asOf time.Time) (transitionResult, error) {
	switch inv.Status {
	case invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusViewed:
	default:
		return transitionResult{}, nil
	}
	if inv.DueDate == nil || !asOf.After(*inv.DueDate) {
		return transitionResult{}, nil
	}
	inv.Status = invoicedomain.InvoiceStatusOverdue
	return transitionResult{Event: eventdomain.EventInvoiceOverdue, Changed: true}, nil
}
