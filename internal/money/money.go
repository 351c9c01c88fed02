// Package money implements fixed-point currency arithmetic on integer minor
// units. Amounts never pass through float64: scalar multiplication computes
// its product on a 128-bit big.Float and rounds half-to-even at that
// precision.
package money

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrCurrencyMismatch = errors.New("currency_mismatch")
	ErrInvalidWeights   = errors.New("invalid_allocation_weights")
)

// Money is an amount in minor units (cents for USD) plus an ISO 4217 code.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New returns a Money value in minor units.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns the zero amount for a currency.
func Zero(currency string) Money {
	return Money{Currency: currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// Negative reports whether the amount is below zero.
func (m Money) Negative() bool { return m.Amount < 0 }

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// Add returns m + other. Currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m - other. Currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// MulScalar multiplies the amount by a scalar and rounds half-to-even to the
// nearest minor unit. Tax computation applies this exactly once per invoice so
// repeated recomputation cannot compound rounding drift.
func (m Money) MulScalar(scalar float64) Money {
	product := new(big.Float).SetPrec(128).Mul(
		new(big.Float).SetInt64(m.Amount),
		big.NewFloat(scalar),
	)
	return Money{Amount: roundHalfEven(product), Currency: m.Currency}
}

// MulInt multiplies the amount by an integer quantity. No rounding involved.
func (m Money) MulInt(n int64) Money {
	return Money{Amount: m.Amount * n, Currency: m.Currency}
}

// AllocateProRata splits m across weights proportionally without losing minor
// units: remainders from truncation are distributed one unit at a time in
// weight order, so the parts always sum exactly to m.
func (m Money) AllocateProRata(weights []int64) ([]Money, error) {
	if len(weights) == 0 {
		return nil, ErrInvalidWeights
	}
	var totalWeight int64
	for _, w := range weights {
		if w < 0 {
			return nil, ErrInvalidWeights
		}
		totalWeight += w
	}
	if totalWeight == 0 {
		return nil, ErrInvalidWeights
	}

	parts := make([]Money, len(weights))
	var allocated int64
	for i, w := range weights {
		share := m.Amount * w / totalWeight
		parts[i] = Money{Amount: share, Currency: m.Currency}
		allocated += share
	}

	remainder := m.Amount - allocated
	for i := 0; remainder > 0; i = (i + 1) % len(parts) {
		if weights[i] == 0 {
			continue
		}
		parts[i].Amount++
		remainder--
	}
	return parts, nil
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}

// roundHalfEven rounds f to the nearest integer at full big.Float precision,
// never passing through float64.
func roundHalfEven(f *big.Float) int64 {
	n, acc := f.Int(nil)
	if f.Sign() < 0 && acc == big.Above {
		n.Sub(n, one)
	}

	floor := new(big.Float).SetPrec(f.Prec()).SetInt(n)
	frac := new(big.Float).SetPrec(f.Prec()).Sub(f, floor)
	switch frac.Cmp(half) {
	case 1:
		n.Add(n, one)
	case 0:
		// exactly halfway: round to even
		if n.Bit(0) == 1 {
			n.Add(n, one)
		}
	}
	return n.Int64()
}

var (
	one  = big.NewInt(1)
	half = big.NewFloat(0.5)
)
