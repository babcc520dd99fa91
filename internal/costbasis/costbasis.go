// Package costbasis implements weighted-average cost-basis accounting for
// a user's holdings ledger.
//
// Every buy folds its cost into a single weighted-average price per
// holding:
//
//	avg' = (invested + amount*price) / (held + amount)
//
// Sells scale the open cost basis down proportionally and leave the
// average price untouched — average-cost accounting, not FIFO/LIFO lots.
// Selling the full held amount removes the holding entirely, so a later
// buy of the same symbol starts a fresh average.
//
// All functions are pure transforms: the input ledger is never mutated,
// and an error leaves nothing to roll back. The same transforms back both
// user trades and administrative holding adjustments.
//
// All monetary values use shopspring/decimal — never float64 for money.
package costbasis

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/ledger-engine/internal/model"
)

var (
	// ErrNonPositiveAmount is returned when the trade amount is zero or negative.
	ErrNonPositiveAmount = errors.New("costbasis: amount must be positive")

	// ErrNonPositivePrice is returned when the trade price is zero or negative.
	ErrNonPositivePrice = errors.New("costbasis: price must be positive")

	// ErrInsufficientHoldings is returned when a sell exceeds the held amount
	// (or the symbol is not held at all). The ledger is left untouched.
	ErrInsufficientHoldings = errors.New("costbasis: insufficient holdings for sell")

	// ErrInvariantViolation is returned when an update would drive Amount or
	// TotalInvested negative. This is a computation defect, not a user error:
	// the update fails closed and must never be persisted or clamped.
	ErrInvariantViolation = errors.New("costbasis: holding invariant violated")
)

// Buy applies a purchase of amount units at price to the ledger and returns
// the updated copy.
//
// First buy of a symbol inserts a new holding with the trade price as its
// average. Subsequent buys accumulate invested capital and recompute the
// weighted average as invested/held — never from price history.
func Buy(l *model.Ledger, symbol, name string, amount, price decimal.Decimal, now time.Time) (*model.Ledger, error) {
	if err := checkTrade(amount, price); err != nil {
		return nil, err
	}

	out := l.Clone()
	cost := amount.Mul(price)

	h, ok := out.Holdings[symbol]
	if !ok {
		out.Holdings[symbol] = &model.Holding{
			Symbol:        symbol,
			Name:          name,
			Amount:        amount,
			AveragePrice:  price,
			TotalInvested: cost,
			CurrentPrice:  price,
			LastUpdated:   now,
		}
		out.LastUpdated = now
		return out, nil
	}

	newAmount := h.Amount.Add(amount)
	newInvested := h.TotalInvested.Add(cost)
	if newAmount.IsNegative() || newInvested.IsNegative() {
		return nil, fmt.Errorf("%w: buy of %s %s drove holding negative", ErrInvariantViolation, amount, symbol)
	}

	h.Amount = newAmount
	h.TotalInvested = newInvested
	h.AveragePrice = newInvested.Div(newAmount)
	if name != "" {
		h.Name = name
	}
	h.LastUpdated = now
	out.LastUpdated = now
	return out, nil
}

// Sell applies a disposal of amount units to the ledger and returns the
// updated copy.
//
// The open cost basis scales down by the sold fraction while AveragePrice
// stays fixed: cost basis per unit is invariant across partial sells.
// Selling the entire held amount removes the holding from the ledger.
func Sell(l *model.Ledger, symbol string, amount, price decimal.Decimal, now time.Time) (*model.Ledger, error) {
	if err := checkTrade(amount, price); err != nil {
		return nil, err
	}

	h, ok := l.Holdings[symbol]
	if !ok || h.Amount.LessThan(amount) {
		held := decimal.Zero
		if ok {
			held = h.Amount
		}
		return nil, fmt.Errorf("%w: have %s %s, sell %s", ErrInsufficientHoldings, held, symbol, amount)
	}

	out := l.Clone()
	h = out.Holdings[symbol]

	if h.Amount.Equal(amount) {
		// Full disposal: drop the holding so a future buy starts a
		// fresh average instead of blending with the old one.
		delete(out.Holdings, symbol)
		out.LastUpdated = now
		return out, nil
	}

	sellRatio := amount.Div(h.Amount)
	newAmount := h.Amount.Sub(amount)
	newInvested := h.TotalInvested.Mul(decimal.NewFromInt(1).Sub(sellRatio))
	if newAmount.IsNegative() || newInvested.IsNegative() {
		return nil, fmt.Errorf("%w: sell of %s %s drove holding negative", ErrInvariantViolation, amount, symbol)
	}

	h.Amount = newAmount
	h.TotalInvested = newInvested
	// AveragePrice deliberately unchanged.
	h.LastUpdated = now
	out.LastUpdated = now
	return out, nil
}

// Apply dispatches a buy or sell by transaction type. Only TxBuy and
// TxSell touch holdings; anything else is a caller bug.
func Apply(l *model.Ledger, typ model.TxType, symbol, name string, amount, price decimal.Decimal, now time.Time) (*model.Ledger, error) {
	switch typ {
	case model.TxBuy:
		return Buy(l, symbol, name, amount, price, now)
	case model.TxSell:
		return Sell(l, symbol, amount, price, now)
	default:
		return nil, fmt.Errorf("costbasis: transaction type %q does not affect holdings", typ)
	}
}

func checkTrade(amount, price decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if !price.IsPositive() {
		return ErrNonPositivePrice
	}
	return nil
}
