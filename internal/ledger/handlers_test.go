package ledger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/coinfolio/ledger-engine/internal/ledger"
	"github.com/coinfolio/ledger-engine/internal/model"
	"github.com/coinfolio/ledger-engine/internal/quotes"
	"github.com/coinfolio/ledger-engine/internal/store"
)

// newTestRouter wires the service handlers the way cmd/server does.
func newTestRouter(t *testing.T, table map[string]quotes.Quote) (*ledger.Service, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := ledger.NewService(ms, &quotes.StaticProvider{Quotes: table}, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/trades", svc.ExecuteTrade)
	r.Post("/api/v1/transfers", svc.TransferFunds)
	r.Get("/api/v1/portfolio/{userID}", svc.Portfolio)
	r.Get("/api/v1/portfolio/{userID}/performance", svc.PortfolioPerformance)
	r.Get("/api/v1/transactions/{userID}", svc.Transactions)
	r.Post("/api/v1/transactions/{userID}/{txID}/cancel", svc.CancelTransaction)
	r.Post("/api/v1/admin/holdings", svc.AdminAdjustHolding)
	return svc, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlers_TradeRoundTrip(t *testing.T) {
	_, router := newTestRouter(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/trades", ledger.TradeRequest{
		UserID: "user1", Type: "buy", Symbol: "BTC", Name: "Bitcoin",
		Amount: d(1), Price: d(40000),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var tx model.Transaction
	json.Unmarshal(w.Body.Bytes(), &tx)
	if !tx.Fee.Equal(d(200)) || !tx.Total.Equal(d(40200)) {
		t.Errorf("fee/total = %s/%s, want 200/40200", tx.Fee, tx.Total)
	}

	w = doJSON(t, router, "GET", "/api/v1/portfolio/user1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("portfolio: expected 200, got %d", w.Code)
	}
	var sum model.PortfolioSummary
	json.Unmarshal(w.Body.Bytes(), &sum)
	if len(sum.Holdings) != 1 || sum.Holdings[0].Symbol != "BTC" {
		t.Errorf("unexpected portfolio: %s", w.Body.String())
	}
}

func TestHandlers_StatusMapping(t *testing.T) {
	svc, router := newTestRouter(t, nil)
	ctx := context.Background()

	// Seed: one holding and one completed trade record.
	if _, err := svc.Execute(ctx, "user1", model.TxBuy, "BTC", "Bitcoin", d(1), d(40000)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed body", "POST", "/api/v1/trades", "not json", http.StatusBadRequest},
		{"validation", "POST", "/api/v1/trades",
			ledger.TradeRequest{UserID: "user1", Type: "buy", Symbol: "", Name: "x", Amount: d(1), Price: d(1)},
			http.StatusBadRequest},
		{"insufficient holdings", "POST", "/api/v1/trades",
			ledger.TradeRequest{UserID: "user1", Type: "sell", Symbol: "BTC", Name: "Bitcoin", Amount: d(5), Price: d(40000)},
			http.StatusConflict},
		{"cancel unknown transaction", "POST", "/api/v1/transactions/user1/missing-id/cancel", nil, http.StatusConflict},
		{"bad filter", "GET", "/api/v1/transactions/user1?type=barter", nil, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, tc.method, tc.path, tc.body)
			if w.Code != tc.want {
				t.Errorf("got %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestHandlers_TransferAndCancel(t *testing.T) {
	_, router := newTestRouter(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/transfers", ledger.TransferRequest{
		UserID: "user1", Type: "deposit", Amount: d(1000), Notes: "wire",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("transfer: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var tx model.Transaction
	json.Unmarshal(w.Body.Bytes(), &tx)
	if tx.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", tx.Status)
	}

	w = doJSON(t, router, "POST", "/api/v1/transactions/user1/"+tx.ID+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var cancelled model.Transaction
	json.Unmarshal(w.Body.Bytes(), &cancelled)
	if cancelled.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
}

func TestHandlers_TransactionListFilters(t *testing.T) {
	svc, router := newTestRouter(t, nil)
	ctx := context.Background()

	svc.Execute(ctx, "user1", model.TxBuy, "BTC", "Bitcoin", d(1), d(40000))
	svc.Execute(ctx, "user1", model.TxSell, "BTC", "Bitcoin", d(0.5), d(41000))
	svc.Transfer(ctx, "user1", model.TxDeposit, d(100), "")

	w := doJSON(t, router, "GET", "/api/v1/transactions/user1?type=buy", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var txs []model.Transaction
	json.Unmarshal(w.Body.Bytes(), &txs)
	if len(txs) != 1 || txs[0].Type != model.TxBuy {
		t.Errorf("filtered list = %s", w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/transactions/user1?status=pending", nil)
	json.Unmarshal(w.Body.Bytes(), &txs)
	if len(txs) != 1 || txs[0].Type != model.TxDeposit {
		t.Errorf("pending list = %s", w.Body.String())
	}
}

func TestHandlers_AdminAdjust(t *testing.T) {
	_, router := newTestRouter(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/admin/holdings", ledger.TradeRequest{
		UserID: "user1", Type: "buy", Symbol: "ETH", Name: "Ethereum",
		Amount: d(10), Price: d(2000),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var tx model.Transaction
	json.Unmarshal(w.Body.Bytes(), &tx)
	if tx.Notes != "admin adjustment" {
		t.Errorf("notes = %q, want admin adjustment", tx.Notes)
	}
}
