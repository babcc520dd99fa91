// Package aggregate derives portfolio-level metrics from a ledger snapshot.
//
// Everything here is a pure function of its input: no clock reads, no
// global state, same snapshot in → same summary out. Holdings are emitted
// sorted by symbol so output ordering is stable.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/ledger-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Summarize computes the full portfolio view for a ledger snapshot:
// mark-to-market total, invested total, gain/loss, and per-holding
// allocation percentages.
//
// Division guards: gain/loss % is zero when nothing is invested, and
// allocations are zero when total value is zero.
func Summarize(l *model.Ledger) model.PortfolioSummary {
	totalValue := decimal.Zero
	totalInvested := decimal.Zero

	views := make([]model.HoldingView, 0, len(l.Holdings))
	for _, h := range l.Holdings {
		value := h.Value()
		gainLoss := value.Sub(h.TotalInvested)

		gainLossPct := decimal.Zero
		if h.TotalInvested.IsPositive() {
			gainLossPct = gainLoss.Div(h.TotalInvested).Mul(hundred)
		}

		views = append(views, model.HoldingView{
			Symbol:       h.Symbol,
			Name:         h.Name,
			Amount:       h.Amount,
			AveragePrice: h.AveragePrice,
			CurrentPrice: h.MarketPrice(),
			Change24h:    h.Change24h,
			Value:        value,
			Invested:     h.TotalInvested,
			GainLoss:     gainLoss,
			GainLossPct:  gainLossPct,
		})

		totalValue = totalValue.Add(value)
		totalInvested = totalInvested.Add(h.TotalInvested)
	}

	for i := range views {
		if totalValue.IsPositive() {
			views[i].Allocation = views[i].Value.Div(totalValue).Mul(hundred)
		}
	}

	sort.Slice(views, func(i, j int) bool { return views[i].Symbol < views[j].Symbol })

	totalGainLoss := totalValue.Sub(totalInvested)
	totalGainLossPct := decimal.Zero
	if totalInvested.IsPositive() {
		totalGainLossPct = totalGainLoss.Div(totalInvested).Mul(hundred)
	}

	return model.PortfolioSummary{
		UserID:           l.UserID,
		Holdings:         views,
		TotalValue:       totalValue,
		TotalInvested:    totalInvested,
		TotalGainLoss:    totalGainLoss,
		TotalGainLossPct: totalGainLossPct,
		LastUpdated:      l.LastUpdated,
	}
}

// Refresh recomputes the ledger's cached aggregate fields in place from
// its holdings. Called after every mutation; the cached values are never
// trusted ahead of this.
func Refresh(l *model.Ledger) {
	s := Summarize(l)
	l.TotalValue = s.TotalValue
	l.TotalInvested = s.TotalInvested
	l.TotalGainLoss = s.TotalGainLoss
	l.TotalGainLossPct = s.TotalGainLossPct
}
