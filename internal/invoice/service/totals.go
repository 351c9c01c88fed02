package service

import (
	"fmt"

	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	"github.com/smallbiznis/billora/internal/money"
)

// ComputeTotals derives subtotal, taxable base, tax and grand total from the
// line items. Pure: the caller writes the result back onto the invoice.
//
// Tax is rounded exactly once, from the full taxable base, so recomputing the
// same invoice any number of times yields identical amounts.
func ComputeTotals(items []invoicedomain.LineItem, taxRate float64, discountAmount int64, currency string) (invoicedomain.DerivedTotals, error) {
	if taxRate < 0 || taxRate >= 1 {
		return invoicedomain.DerivedTotals{}, fmt.Errorf("%w: %v", invoicedomain.ErrInvalidTaxRate, taxRate)
	}
	if discountAmount < 0 {
		return invoicedomain.DerivedTotals{}, fmt.Errorf("%w: discount is negative", invoicedomain.ErrInvalidDiscount)
	}

	subtotal := money.Zero(currency)
	taxableBase := money.Zero(currency)

	var err error
	for _, item := range items {
		amount := money.New(item.Amount, currency)
		if subtotal, err = subtotal.Add(amount); err != nil {
			return invoicedomain.DerivedTotals{}, err
		}
		if item.Taxable {
			if taxableBase, err = taxableBase.Add(amount); err != nil {
				return invoicedomain.DerivedTotals{}, err
			}
		}
	}

	if discountAmount > subtotal.Amount {
		return invoicedomain.DerivedTotals{}, fmt.Errorf("%w: discount %d exceeds subtotal %d",
			invoicedomain.ErrInvalidDiscount, discountAmount, subtotal.Amount)
	}

	tax := taxableBase.MulScalar(taxRate)

	afterDiscount, err := subtotal.Sub(money.New(discountAmount, currency))
	if err != nil {
		return invoicedomain.DerivedTotals{}, err
	}
	total, err := afterDiscount.Add(tax)
	if err != nil {
		return invoicedomain.DerivedTotals{}, err
	}

	return invoicedomain.DerivedTotals{
		Subtotal:       subtotal.Amount,
		TaxableBase:    taxableBase.Amount,
		TaxAmount:      tax.Amount,
		DiscountAmount: discountAmount,
		Total:          total.Amount,
		Currency:       currency,
	}, nil
}

// buildLineItems materializes caller input into owned line rows, deriving each
// amount as quantity * rate.
func buildLineItems(inputs []invoicedomain.LineItemInput, currency string) ([]invoicedomain.LineItem, error) {
	items := make([]invoicedomain.LineItem, 0, len(inputs))
	for i, in := range inputs {
		if in.Quantity < 0 {
			return nil, fmt.Errorf("line %d: negative quantity %d", i, in.Quantity)
		}
		amount := money.New(in.RateAmount, currency).MulInt(in.Quantity)
		items = append(items, invoicedomain.LineItem{
			Position:    i,
			Description: in.Description,
			Quantity:    in.Quantity,
			RateAmount:  in.RateAmount,
			Amount:      amount.Amount,
			Taxable:     in.Taxable,
		})
	}
	return items, nil
}
