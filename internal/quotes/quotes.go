// Package quotes supplies market price snapshots and applies them to
// holdings for mark-to-market valuation.
//
// The snapshot applier takes an already-fetched symbol→quote mapping; it
// never does network I/O itself. Partial or empty mappings are valid
// input: a holding without a quote falls back to its average cost with a
// zero 24h change, explicitly, so a stale price from a previous snapshot
// can never linger.
package quotes

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/ledger-engine/internal/model"
)

// Quote is one market price observation for a symbol.
type Quote struct {
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"` // percent
}

// Provider fetches quotes for a set of symbols. Partial results are
// expected: a provider may omit symbols it has no market for, and callers
// must tolerate an empty map.
type Provider interface {
	FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// Apply merges a quote mapping into the ledger's holdings in place,
// refreshing CurrentPrice, Change24h, and LastUpdated per holding.
// Holdings with no quote fall back to CurrentPrice = AveragePrice and
// Change24h = 0. Amount, AveragePrice, and TotalInvested are never
// touched.
func Apply(l *model.Ledger, qs map[string]Quote) {
	now := time.Now().UTC()
	for sym, h := range l.Holdings {
		q, ok := qs[sym]
		if ok && q.Price.IsPositive() {
			h.CurrentPrice = q.Price
			h.Change24h = q.Change24h
		} else {
			h.CurrentPrice = h.AveragePrice
			h.Change24h = decimal.Zero
		}
		h.LastUpdated = now
	}
	l.LastUpdated = now
}

// StaticProvider serves quotes from a fixed table. Used in tests and in
// development when no market-data endpoint is configured; quote state is
// always injected, never read from process-wide mutable tables.
type StaticProvider struct {
	Quotes map[string]Quote
}

// FetchQuotes returns the quotes present in the table for the requested
// symbols. Missing symbols are simply absent from the result.
func (p *StaticProvider) FetchQuotes(_ context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	for _, sym := range symbols {
		if q, ok := p.Quotes[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}
