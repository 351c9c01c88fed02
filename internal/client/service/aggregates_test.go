package service

import (
	"math/rand"
	"testing"
	"time"

	clientdomain "github.com/smallbiznis/billora/internal/client/domain"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(day int) *time.Time {
	t := time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestComputeFinancialsEmpty(t *testing.T) {
	fin := ComputeFinancials(nil)

	assert.Equal(t, int64(0), fin.LifetimeBilled)
	assert.Equal(t, int64(0), fin.LifetimePaid)
	assert.Equal(t, int64(0), fin.Outstanding)
	assert.Equal(t, 0.0, fin.AveragePaymentDays)
	assert.Equal(t, clientdomain.HealthExcellent, fin.Health)
}

func TestComputeFinancialsExcludesDraftAndCancelled(t *testing.T) {
	invoices := []invoicedomain.Invoice{
		{Status: invoicedomain.InvoiceStatusDraft, TotalAmount: 100000},
		{Status: invoicedomain.InvoiceStatusCancelled, TotalAmount: 50000},
		{Status: invoicedomain.InvoiceStatusSent, TotalAmount: 20000},
		{Status: invoicedomain.InvoiceStatusPaid, TotalAmount: 30000, IssueDate: ts(1), PaidDate: ts(11)},
	}

	fin := ComputeFinancials(invoices)

	assert.Equal(t, int64(50000), fin.LifetimeBilled)
	assert.Equal(t, int64(30000), fin.LifetimePaid)
	assert.Equal(t, int64(20000), fin.Outstanding)
	assert.Equal(t, 10.0, fin.AveragePaymentDays)
}

func TestComputeFinancialsOrderIndependent(t *testing.T) {
	invoices := []invoicedomain.Invoice{
		{Status: invoicedomain.InvoiceStatusPaid, TotalAmount: 10000, IssueDate: ts(1), PaidDate: ts(5)},
		{Status: invoicedomain.InvoiceStatusPaid, TotalAmount: 20000, IssueDate: ts(2), PaidDate: ts(22)},
		{Status: invoicedomain.InvoiceStatusOverdue, TotalAmount: 5000},
		{Status: invoicedomain.InvoiceStatusViewed, TotalAmount: 7000},
		{Status: invoicedomain.InvoiceStatusDraft, TotalAmount: 9999},
	}

	expected := ComputeFinancials(invoices)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]invoicedomain.Invoice, len(invoices))
		copy(shuffled, invoices)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, expected, ComputeFinancials(shuffled))
	}
}

func TestComputeFinancialsIdempotent(t *testing.T) {
	invoices := []invoicedomain.Invoice{
		{Status: invoicedomain.InvoiceStatusPaid, TotalAmount: 123457, IssueDate: ts(3), PaidDate: ts(9)},
		{Status: invoicedomain.InvoiceStatusSent, TotalAmount: 77777},
	}

	first := ComputeFinancials(invoices)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, ComputeFinancials(invoices))
	}
	assert.Equal(t, first.LifetimeBilled-first.LifetimePaid, first.Outstanding)
}

func TestClassifyHealthTiers(t *testing.T) {
	cases := []struct {
		name        string
		billed      int64
		outstanding int64
		avgDays     float64
		want        clientdomain.Health
	}{
		{"no history", 0, 0, 0, clientdomain.HealthExcellent},
		{"fast payer all settled", 100000, 0, 12, clientdomain.HealthExcellent},
		{"settled but slow", 100000, 0, 20, clientdomain.HealthGood},
		{"small balance prompt", 100000, 9000, 25, clientdomain.HealthGood},
		{"moderate balance", 100000, 25000, 45, clientdomain.HealthWarning},
		{"large balance but quick", 100000, 80000, 50, clientdomain.HealthWarning},
		{"large balance and slow", 100000, 80000, 90, clientdomain.HealthAtRisk},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyHealth(tc.billed, tc.outstanding, tc.avgDays)
			assert.Equal(t, tc.want, got)
		})
	}
}
