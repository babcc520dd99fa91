// Package ledger orchestrates trade execution against per-user holdings
// ledgers: validation, fee computation, cost-basis application, optimistic
// concurrency control, and the immutable transaction log.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coinfolio/ledger-engine/internal/aggregate"
	"github.com/coinfolio/ledger-engine/internal/asset"
	"github.com/coinfolio/ledger-engine/internal/costbasis"
	"github.com/coinfolio/ledger-engine/internal/metrics"
	"github.com/coinfolio/ledger-engine/internal/model"
	"github.com/coinfolio/ledger-engine/internal/quotes"
	"github.com/coinfolio/ledger-engine/internal/store"
)

var (
	// MinTradeAmount is the smallest tradable quantity (one satoshi-scale unit).
	MinTradeAmount = decimal.New(1, -8)

	// MinTradePrice is the smallest accepted unit price.
	MinTradePrice = decimal.New(1, -8)

	// FeeRate is the flat trading fee: 0.5% of notional.
	FeeRate = decimal.New(5, -3)
)

// maxSaveAttempts bounds the optimistic-concurrency retry loop. Each retry
// reloads the ledger and recomputes the trade, so a retry can only lose to
// another writer that actually committed.
const maxSaveAttempts = 3

// Service executes trades against users' ledgers. The read-modify-write
// critical section (load → cost basis → save → append record) is guarded
// by the store's version compare-and-swap and retried on conflict, so two
// concurrent trades for one user can never drop each other's effect.
// Trades for different users never contend.
type Service struct {
	store  store.Store
	quotes quotes.Provider
	wsHub  *WSHub // optional hub for real-time broadcasts
}

// NewService creates a new ledger service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, qp quotes.Provider, hub *WSHub) *Service {
	return &Service{
		store:  st,
		quotes: qp,
		wsHub:  hub,
	}
}

// Execute runs a buy or sell trade for a user and returns the completed
// transaction record. Business failures (validation, insufficient
// holdings, invariant violations) leave both the ledger and the
// transaction log untouched.
func (s *Service) Execute(ctx context.Context, userID string, typ model.TxType, symbol, name string, amount, price decimal.Decimal) (*model.Transaction, error) {
	return s.execute(ctx, userID, typ, symbol, name, amount, price, "")
}

// AdminAdjust applies an administrative holding correction through the
// same cost-basis path as a regular trade. Ownership checks are the admin
// collaborator's concern; the resulting record is marked in its notes.
func (s *Service) AdminAdjust(ctx context.Context, userID string, typ model.TxType, symbol, name string, amount, price decimal.Decimal) (*model.Transaction, error) {
	return s.execute(ctx, userID, typ, symbol, name, amount, price, "admin adjustment")
}

func (s *Service) execute(ctx context.Context, userID string, typ model.TxType, symbol, name string, amount, price decimal.Decimal, notes string) (*model.Transaction, error) {
	start := time.Now()

	// --- Input validation, before the ledger is touched ---
	if strings.TrimSpace(userID) == "" {
		metrics.TradesRejected.WithLabelValues("validation").Inc()
		return nil, invalid("user_id", "must not be empty")
	}
	if typ != model.TxBuy && typ != model.TxSell {
		metrics.TradesRejected.WithLabelValues("validation").Inc()
		return nil, invalid("type", "must be buy or sell")
	}
	sym, err := asset.NormalizeSymbol(symbol)
	if err != nil {
		metrics.TradesRejected.WithLabelValues("validation").Inc()
		return nil, invalid("symbol", err.Error())
	}
	if strings.TrimSpace(name) == "" {
		metrics.TradesRejected.WithLabelValues("validation").Inc()
		return nil, invalid("name", "must not be empty")
	}
	if amount.LessThan(MinTradeAmount) {
		metrics.TradesRejected.WithLabelValues("validation").Inc()
		return nil, invalid("amount", "must be at least "+MinTradeAmount.String())
	}
	if price.LessThan(MinTradePrice) {
		metrics.TradesRejected.WithLabelValues("validation").Inc()
		return nil, invalid("price", "must be at least "+MinTradePrice.String())
	}

	// Fee and total are computed here, never trusted from the caller.
	notional := amount.Mul(price)
	fee := notional.Mul(FeeRate)
	total := notional.Add(fee)
	if typ == model.TxSell {
		total = notional.Sub(fee)
	}

	now := time.Now().UTC()

	// --- Critical section: load → transform → versioned save ---
	// A conflicting writer makes SaveLedger fail the version CAS; the
	// whole sequence restarts from a fresh load, so no update is lost.
	var saved *model.Ledger
	for attempt := 0; ; attempt++ {
		if attempt == maxSaveAttempts {
			metrics.TradesRejected.WithLabelValues("conflict").Inc()
			return nil, ErrTooManyConflicts
		}

		led, err := s.loadOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}

		updated, err := costbasis.Apply(led, typ, sym, name, amount, price, now)
		if err != nil {
			// Business failure: nothing persisted, nothing logged.
			switch {
			case errors.Is(err, costbasis.ErrInsufficientHoldings):
				metrics.TradesRejected.WithLabelValues("insufficient_holdings").Inc()
			case errors.Is(err, costbasis.ErrInvariantViolation):
				metrics.TradesRejected.WithLabelValues("invariant_violation").Inc()
				slog.Error("cost-basis invariant violated",
					"user", userID, "symbol", sym, "type", string(typ), "err", err)
			}
			return nil, err
		}

		aggregate.Refresh(updated)
		updated.LastUpdated = now

		if err := s.store.SaveLedger(ctx, updated); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				metrics.ConflictRetries.Inc()
				continue
			}
			return nil, err
		}
		saved = updated
		break
	}

	// Ledger persisted: append the immutable audit record.
	tx := &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      typ,
		Symbol:    sym,
		Name:      name,
		Amount:    amount,
		Price:     price,
		Fee:       fee,
		Total:     total,
		Status:    model.StatusCompleted,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.AppendTransaction(ctx, tx); err != nil {
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(string(typ)).Inc()
	metrics.TradeLatency.WithLabelValues(string(typ)).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"tx_id", tx.ID,
		"user", userID,
		"type", string(typ),
		"symbol", sym,
		"amount", amount.String(),
		"price", price.String(),
		"fee", fee.String(),
		"total", total.String(),
		"ledger_version", saved.Version,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:       "trade_executed",
			UserID:     userID,
			Symbol:     sym,
			TxType:     string(typ),
			Amount:     amount.String(),
			Price:      price.String(),
			TotalValue: saved.TotalValue.String(),
		})
	}

	return tx, nil
}

// Transfer records an externally-settled deposit or withdrawal. These
// start out pending (settlement is confirmed out of band) and never touch
// holdings, which also makes them the one kind of record Cancel applies to.
func (s *Service) Transfer(ctx context.Context, userID string, typ model.TxType, amount decimal.Decimal, notes string) (*model.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("user_id", "must not be empty")
	}
	if typ != model.TxDeposit && typ != model.TxWithdrawal {
		return nil, invalid("type", "must be deposit or withdrawal")
	}
	if amount.LessThan(MinTradeAmount) {
		return nil, invalid("amount", "must be at least "+MinTradeAmount.String())
	}

	now := time.Now().UTC()
	tx := &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      typ,
		Amount:    amount,
		Total:     amount,
		Status:    model.StatusPending,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.AppendTransaction(ctx, tx); err != nil {
		return nil, err
	}

	slog.Info("transfer recorded",
		"tx_id", tx.ID, "user", userID, "type", string(typ), "amount", amount.String())
	return tx, nil
}

// Cancel transitions one of the caller's transactions from pending to
// cancelled. Any other current status — or a transaction the caller does
// not own — fails with ErrNotCancellable. Cancellation never reverses
// ledger effects: completed trades are final.
func (s *Service) Cancel(ctx context.Context, userID, txID string) (*model.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, userID, txID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotCancellable
		}
		return nil, err
	}
	if tx.Status != model.StatusPending {
		return nil, ErrNotCancellable
	}

	err = s.store.UpdateTransactionStatus(ctx, userID, txID, model.StatusPending, model.StatusCancelled)
	if err != nil {
		// Lost the race against a concurrent settle/cancel.
		if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotCancellable
		}
		return nil, err
	}

	tx.Status = model.StatusCancelled
	tx.UpdatedAt = time.Now().UTC()
	slog.Info("transaction cancelled", "tx_id", txID, "user", userID)
	return tx, nil
}

// GetPortfolio returns the user's portfolio marked to market. Quotes are
// fetched best-effort: if the provider fails, valuation falls back to
// average cost per holding rather than failing the read.
func (s *Service) GetPortfolio(ctx context.Context, userID string) (*model.PortfolioSummary, error) {
	led, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	qs := s.fetchQuotes(ctx, led)
	quotes.Apply(led, qs)
	summary := aggregate.Summarize(led)
	return &summary, nil
}

// Performance is the portfolio summary extended with the best and worst
// performing holdings by gain/loss percentage.
type Performance struct {
	model.PortfolioSummary
	BestPerformer  *model.HoldingView `json:"best_performer,omitempty"`
	WorstPerformer *model.HoldingView `json:"worst_performer,omitempty"`
}

// GetPerformance returns gain/loss metrics plus best/worst performers.
func (s *Service) GetPerformance(ctx context.Context, userID string) (*Performance, error) {
	summary, err := s.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	perf := &Performance{PortfolioSummary: *summary}
	for i := range perf.Holdings {
		v := &perf.Holdings[i]
		if perf.BestPerformer == nil || v.GainLossPct.GreaterThan(perf.BestPerformer.GainLossPct) {
			perf.BestPerformer = v
		}
		if perf.WorstPerformer == nil || v.GainLossPct.LessThan(perf.WorstPerformer.GainLossPct) {
			perf.WorstPerformer = v
		}
	}
	return perf, nil
}

// ListTransactions returns a page of the user's history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID string, f store.TxFilter) ([]model.Transaction, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, invalid("type", "unknown transaction type")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status", "unknown transaction status")
	}
	return s.store.ListTransactions(ctx, userID, f)
}

// loadOrCreate returns the user's ledger, lazily creating an empty one at
// version zero when the user has none yet. The empty ledger is not
// persisted until a mutation saves it.
func (s *Service) loadOrCreate(ctx context.Context, userID string) (*model.Ledger, error) {
	led, err := s.store.LoadLedger(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return model.NewLedger(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return led, nil
}

// fetchQuotes asks the provider for quotes on every held symbol. Provider
// failure degrades to an empty map: the snapshot applier then falls back
// to average cost per holding.
func (s *Service) fetchQuotes(ctx context.Context, led *model.Ledger) map[string]quotes.Quote {
	if s.quotes == nil || len(led.Holdings) == 0 {
		return nil
	}
	qs, err := s.quotes.FetchQuotes(ctx, led.Symbols())
	if err != nil {
		metrics.QuoteFetchErrors.Inc()
		slog.Warn("quote provider failed, marking to cost basis", "user", led.UserID, "err", err)
		return nil
	}
	return qs
}
