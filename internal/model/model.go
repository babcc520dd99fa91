// Package model defines the core domain types shared across the ledger engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType is the kind of transaction recorded in the history stream.
type TxType string

const (
	TxBuy        TxType = "buy"
	TxSell       TxType = "sell"
	TxDeposit    TxType = "deposit"
	TxWithdrawal TxType = "withdrawal"
)

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	switch t {
	case TxBuy, TxSell, TxDeposit, TxWithdrawal:
		return true
	}
	return false
}

// TxStatus is the settlement state of a transaction.
// Transitions: pending → completed | failed | cancelled. The three
// non-pending states are terminal. Trades go directly to completed;
// pending is reserved for externally-settled types (deposit/withdrawal).
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusCompleted TxStatus = "completed"
	StatusFailed    TxStatus = "failed"
	StatusCancelled TxStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s TxStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Holding is one asset position inside a user's ledger.
//
// Invariants, enforced by the costbasis package after every mutation:
//   - Amount >= 0
//   - TotalInvested >= 0
//   - TotalInvested == Amount * AveragePrice
//
// A holding with Amount == 0 is never kept; it is removed from the ledger.
type Holding struct {
	Symbol        string          `json:"symbol"`         // uppercase ticker, unique per ledger
	Name          string          `json:"name"`           // display name
	Amount        decimal.Decimal `json:"amount"`         // quantity held
	AveragePrice  decimal.Decimal `json:"average_price"`  // weighted-average cost per unit
	TotalInvested decimal.Decimal `json:"total_invested"` // cost basis of the open position
	CurrentPrice  decimal.Decimal `json:"current_price"`  // last mark-to-market quote
	Change24h     decimal.Decimal `json:"change_24h"`     // 24h change % from the quote
	LastUpdated   time.Time       `json:"last_updated"`
}

// MarketPrice returns the price used for mark-to-market valuation:
// the last applied quote if there is one, otherwise the average cost.
func (h *Holding) MarketPrice() decimal.Decimal {
	if h.CurrentPrice.IsPositive() {
		return h.CurrentPrice
	}
	return h.AveragePrice
}

// Value returns the holding's current mark-to-market value.
func (h *Holding) Value() decimal.Decimal {
	return h.Amount.Mul(h.MarketPrice())
}

// Ledger is the authoritative set of one user's holdings plus cached
// aggregate metrics. Version is the optimistic-concurrency revision:
// the store accepts a save only when the caller's Version matches the
// stored one, and increments it on success.
//
// The cached Total* fields are recomputed from Holdings on every
// mutation (aggregate.Refresh); they are never trusted across one.
type Ledger struct {
	UserID           string              `json:"user_id"`
	Holdings         map[string]*Holding `json:"holdings"` // keyed by symbol
	Version          int64               `json:"version"`
	TotalValue       decimal.Decimal     `json:"total_value"`
	TotalInvested    decimal.Decimal     `json:"total_invested"`
	TotalGainLoss    decimal.Decimal     `json:"total_gain_loss"`
	TotalGainLossPct decimal.Decimal     `json:"total_gain_loss_pct"`
	LastUpdated      time.Time           `json:"last_updated"`
}

// NewLedger creates an empty ledger for a user at version zero.
func NewLedger(userID string) *Ledger {
	return &Ledger{
		UserID:   userID,
		Holdings: make(map[string]*Holding),
	}
}

// Clone returns a deep copy. Mutating the copy never affects the original;
// stores hand out clones so readers can't observe torn in-flight writes.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.Holdings = make(map[string]*Holding, len(l.Holdings))
	for sym, h := range l.Holdings {
		hc := *h
		c.Holdings[sym] = &hc
	}
	return &c
}

// Symbols returns the set of symbols currently held.
func (l *Ledger) Symbols() []string {
	syms := make([]string, 0, len(l.Holdings))
	for sym := range l.Holdings {
		syms = append(syms, sym)
	}
	return syms
}

// Transaction is an immutable audit record of one executed operation.
// Once created it is never modified, except the pending→terminal status
// transition performed by the cancellation path.
type Transaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Type            TxType          `json:"type"`
	Symbol          string          `json:"symbol,omitempty"` // buy/sell only
	Name            string          `json:"name,omitempty"`   // buy/sell only
	Amount          decimal.Decimal `json:"amount"`
	Price           decimal.Decimal `json:"price"`
	Fee             decimal.Decimal `json:"fee"`
	Total           decimal.Decimal `json:"total"` // buy: amount*price+fee; sell: amount*price-fee
	Status          TxStatus        `json:"status"`
	Notes           string          `json:"notes,omitempty"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	ExchangeOrderID string          `json:"exchange_order_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// HoldingView is the per-holding slice of a portfolio summary, with
// mark-to-market value, gain/loss, and allocation share.
type HoldingView struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Change24h    decimal.Decimal `json:"change_24h"`
	Value        decimal.Decimal `json:"value"`
	Invested     decimal.Decimal `json:"invested"`
	GainLoss     decimal.Decimal `json:"gain_loss"`
	GainLossPct  decimal.Decimal `json:"gain_loss_pct"`
	Allocation   decimal.Decimal `json:"allocation"` // % of total value
}

// PortfolioSummary aggregates a ledger snapshot into the metrics the
// portfolio and performance views are built from.
type PortfolioSummary struct {
	UserID           string          `json:"user_id"`
	Holdings         []HoldingView   `json:"holdings"` // sorted by symbol
	TotalValue       decimal.Decimal `json:"total_value"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	TotalGainLoss    decimal.Decimal `json:"total_gain_loss"`
	TotalGainLossPct decimal.Decimal `json:"total_gain_loss_pct"`
	LastUpdated      time.Time       `json:"last_updated"`
}
