package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/coinfolio/ledger-engine/internal/costbasis"
	"github.com/coinfolio/ledger-engine/internal/model"
	"github.com/coinfolio/ledger-engine/internal/store"
)

// --- Request types ---

// TradeRequest is the JSON body for POST /api/v1/trades.
type TradeRequest struct {
	UserID string          `json:"user_id"`
	Type   string          `json:"type"` // "buy" or "sell"
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

// TransferRequest is the JSON body for POST /api/v1/transfers.
type TransferRequest struct {
	UserID string          `json:"user_id"`
	Type   string          `json:"type"` // "deposit" or "withdrawal"
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes,omitempty"`
}

// --- HTTP handlers ---

// ExecuteTrade handles POST /api/v1/trades.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := s.Execute(r.Context(), req.UserID, model.TxType(req.Type), req.Symbol, req.Name, req.Amount, req.Price)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// TransferFunds handles POST /api/v1/transfers.
func (s *Service) TransferFunds(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := s.Transfer(r.Context(), req.UserID, model.TxType(req.Type), req.Amount, req.Notes)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// Portfolio handles GET /api/v1/portfolio/{userID}.
func (s *Service) Portfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	summary, err := s.GetPortfolio(r.Context(), userID)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// PortfolioPerformance handles GET /api/v1/portfolio/{userID}/performance.
func (s *Service) PortfolioPerformance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	perf, err := s.GetPerformance(r.Context(), userID)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, perf)
}

// Transactions handles GET /api/v1/transactions/{userID}.
// Supports ?type=, ?status=, ?limit=, ?offset=.
func (s *Service) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	q := r.URL.Query()

	f := store.TxFilter{
		Type:   model.TxType(q.Get("type")),
		Status: model.TxStatus(q.Get("status")),
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	txs, err := s.ListTransactions(r.Context(), userID, f)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}

	writeJSON(w, http.StatusOK, txs)
}

// CancelTransaction handles POST /api/v1/transactions/{userID}/{txID}/cancel.
func (s *Service) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	txID := chi.URLParam(r, "txID")

	tx, err := s.Cancel(r.Context(), userID, txID)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// AdminAdjustHolding handles POST /api/v1/admin/holdings.
// Same body as a trade; routed through the admin collaborator which owns
// the authorization concern.
func (s *Service) AdminAdjustHolding(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := s.AdminAdjust(r.Context(), req.UserID, model.TxType(req.Type), req.Symbol, req.Name, req.Amount, req.Price)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// statusFor maps the error taxonomy to HTTP status codes. Business-rule
// failures and collaborator failures map distinctly; invariant violations
// are internal defects.
func statusFor(err error) int {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, costbasis.ErrNonPositiveAmount),
		errors.Is(err, costbasis.ErrNonPositivePrice):
		return http.StatusBadRequest
	case errors.Is(err, costbasis.ErrInsufficientHoldings):
		return http.StatusConflict
	case errors.Is(err, ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManyConflicts):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
