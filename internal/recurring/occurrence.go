package recurring

import (
	"time"

	recurringdomain "github.com/smallbiznis/billora/internal/recurring/domain"
)

// NextOccurrence returns the occurrence date after `from` for the recurrence,
// or false when the recurrence yields nothing more: it is inactive, the
// frequency is unknown, or the computed date passes the end date. A computed
// date exactly on the end date still generates.
func NextOccurrence(rec recurringdomain.RecurringInvoice, from time.Time) (time.Time, bool) {
	if !rec.Active || !rec.Frequency.Valid() {
		return time.Time{}, false
	}
	next := rec.Frequency.Advance(from)
	if rec.EndDate != nil && next.After(*rec.EndDate) {
		return time.Time{}, false
	}
	return next, true
}
