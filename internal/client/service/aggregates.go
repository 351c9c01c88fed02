package service

import (
	clientdomain "github.com/smallbiznis/billora/internal/client/domain"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
)

const hoursPerDay = 24

// ComputeFinancials derives a client's financial summary from its invoice set.
// Pure and order-independent: any permutation of the same invoices yields the
// same result, so recomputation is idempotent.
//
// lifetimeBilled sums totals of non-draft, non-cancelled invoices;
// lifetimePaid sums totals of paid invoices; outstanding is their difference.
func ComputeFinancials(invoices []invoicedomain.Invoice) clientdomain.Financials {
	var (
		billed   int64
		paid     int64
		paidDays float64
		paidN    int
	)

	for _, inv := range invoices {
		if inv.Billable() {
			billed += inv.TotalAmount
		}
		if inv.Status != invoicedomain.InvoiceStatusPaid {
			continue
		}
		paid += inv.TotalAmount
		if inv.PaidDate != nil && inv.IssueDate != nil {
			paidDays += inv.PaidDate.Sub(*inv.IssueDate).Hours() / hoursPerDay
			paidN++
		}
	}

	avgDays := 0.0
	if paidN > 0 {
		avgDays = paidDays / float64(paidN)
	}

	outstanding := billed - paid
	return clientdomain.Financials{
		LifetimeBilled:     billed,
		LifetimePaid:       paid,
		Outstanding:        outstanding,
		AveragePaymentDays: avgDays,
		Health:             classifyHealth(billed, outstanding, avgDays),
	}
}

func classifyHealth(billed, outstanding int64, avgDays float64) clientdomain.Health {
	ratio := 0.0
	if billed > 0 {
		ratio = float64(outstanding) / float64(billed)
	}

	switch {
	case outstanding == 0 && avgDays <= 15:
		return clientdomain.HealthExcellent
	case ratio <= 0.1 && avgDays <= 30:
		return clientdomain.HealthGood
	case ratio <= 0.3 || avgDays <= 60:
		return clientdomain.HealthWarning
	default:
		return clientdomain.HealthAtRisk
	}
}
