package service

import (
	"testing"

	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTotalsMixedTaxability(t *testing.T) {
	items := []invoicedomain.LineItem{
		{Description: "consulting", Quantity: 1, RateAmount: 10000, Amount: 10000, Taxable: true},
		{Description: "expenses", Quantity: 1, RateAmount: 5000, Amount: 5000, Taxable: false},
	}

	totals, err := ComputeTotals(items, 0.08, 1000, "USD")
	require.NoError(t, err)

	assert.Equal(t, int64(15000), totals.Subtotal)
	assert.Equal(t, int64(10000), totals.TaxableBase)
	assert.Equal(t, int64(800), totals.TaxAmount)
	assert.Equal(t, int64(1000), totals.DiscountAmount)
	assert.Equal(t, int64(14800), totals.Total)
}

func TestComputeTotalsEmptyItems(t *testing.T) {
	totals, err := ComputeTotals(nil, 0.1, 0, "USD")
	require.NoError(t, err)

	assert.Equal(t, int64(0), totals.Subtotal)
	assert.Equal(t, int64(0), totals.TaxAmount)
	assert.Equal(t, int64(0), totals.Total)
}

func TestComputeTotalsTaxRoundedOnce(t *testing.T) {
	// three odd amounts whose per-line tax would each round; summing first and
	// rounding once must be stable under recomputation
	items := []invoicedomain.LineItem{
		{Amount: 333, Taxable: true},
		{Amount: 333, Taxable: true},
		{Amount: 333, Taxable: true},
	}

	first, err := ComputeTotals(items, 0.0725, 0, "USD")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := ComputeTotals(items, 0.0725, 0, "USD")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	// 999 * 0.0725 = 72.4275 -> 72
	assert.Equal(t, int64(72), first.TaxAmount)
}

func TestComputeTotalsValidation(t *testing.T) {
	items := []invoicedomain.LineItem{{Amount: 1000, Taxable: true}}

	_, err := ComputeTotals(items, -0.1, 0, "USD")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTaxRate)

	_, err = ComputeTotals(items, 1.0, 0, "USD")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTaxRate)

	_, err = ComputeTotals(items, 0.1, -1, "USD")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidDiscount)

	_, err = ComputeTotals(items, 0.1, 1001, "USD")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidDiscount)

	// discount equal to subtotal is allowed
	totals, err := ComputeTotals(items, 0.1, 1000, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(100), totals.Total)
}

func TestBuildLineItemsDerivesAmounts(t *testing.T) {
	items, err := buildLineItems([]invoicedomain.LineItemInput{
		{Description: "dev hours", Quantity: 12, RateAmount: 7500, Taxable: true},
		{Description: "hosting", Quantity: 1, RateAmount: 2000},
	}, "USD")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(90000), items[0].Amount)
	assert.Equal(t, 0, items[0].Position)
	assert.Equal(t, int64(2000), items[1].Amount)
	assert.Equal(t, 1, items[1].Position)

	_, err = buildLineItems([]invoicedomain.LineItemInput{
		{Quantity: -1, RateAmount: 100},
	}, "USD")
	assert.Error(t, err)
}
