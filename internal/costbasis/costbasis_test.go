package costbasis

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/ledger-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) *model.Ledger {
	t.Helper()
	return model.NewLedger("user1")
}

// --- Buy tests ---

func TestBuy_NewSymbol(t *testing.T) {
	l := newLedger(t)

	out, err := Buy(l, "BTC", "Bitcoin", d(1), d(40000), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h, ok := out.Holdings["BTC"]
	if !ok {
		t.Fatal("expected BTC holding to exist")
	}
	if !h.Amount.Equal(d(1)) {
		t.Errorf("amount = %s, want 1", h.Amount)
	}
	if !h.AveragePrice.Equal(d(40000)) {
		t.Errorf("average price = %s, want 40000", h.AveragePrice)
	}
	if !h.TotalInvested.Equal(d(40000)) {
		t.Errorf("total invested = %s, want 40000", h.TotalInvested)
	}
	if len(l.Holdings) != 0 {
		t.Error("input ledger must not be mutated")
	}
}

func TestBuy_WeightedAverage(t *testing.T) {
	// 1 BTC @ 40000 then 1 BTC @ 44000 → avg 42000.
	l := newLedger(t)

	l, err := Buy(l, "BTC", "Bitcoin", d(1), d(40000), now)
	if err != nil {
		t.Fatalf("first buy: %v", err)
	}
	l, err = Buy(l, "BTC", "Bitcoin", d(1), d(44000), now)
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}

	h := l.Holdings["BTC"]
	if !h.Amount.Equal(d(2)) {
		t.Errorf("amount = %s, want 2", h.Amount)
	}
	if !h.TotalInvested.Equal(d(84000)) {
		t.Errorf("total invested = %s, want 84000", h.TotalInvested)
	}
	if !h.AveragePrice.Equal(d(42000)) {
		t.Errorf("average price = %s, want 42000", h.AveragePrice)
	}
}

func TestBuy_CostBasisConservation(t *testing.T) {
	// For any buy sequence: invested == Σ amount*price and
	// avg == invested/amount after every step.
	buys := []struct{ amount, price float64 }{
		{0.5, 30000}, {1.25, 41000}, {0.033, 62500}, {2, 38000.55},
	}

	l := newLedger(t)
	wantInvested := decimal.Zero
	wantAmount := decimal.Zero

	for i, b := range buys {
		var err error
		l, err = Buy(l, "BTC", "Bitcoin", d(b.amount), d(b.price), now)
		if err != nil {
			t.Fatalf("buy %d: %v", i, err)
		}
		wantInvested = wantInvested.Add(d(b.amount).Mul(d(b.price)))
		wantAmount = wantAmount.Add(d(b.amount))

		h := l.Holdings["BTC"]
		if !h.TotalInvested.Equal(wantInvested) {
			t.Errorf("step %d: invested = %s, want %s", i, h.TotalInvested, wantInvested)
		}
		if !h.AveragePrice.Equal(wantInvested.Div(wantAmount)) {
			t.Errorf("step %d: avg = %s, want %s", i, h.AveragePrice, wantInvested.Div(wantAmount))
		}
	}
}

func TestBuy_Preconditions(t *testing.T) {
	l := newLedger(t)

	if _, err := Buy(l, "BTC", "Bitcoin", d(0), d(100), now); !errors.Is(err, ErrNonPositiveAmount) {
		t.Errorf("zero amount: got %v, want ErrNonPositiveAmount", err)
	}
	if _, err := Buy(l, "BTC", "Bitcoin", d(-1), d(100), now); !errors.Is(err, ErrNonPositiveAmount) {
		t.Errorf("negative amount: got %v, want ErrNonPositiveAmount", err)
	}
	if _, err := Buy(l, "BTC", "Bitcoin", d(1), d(0), now); !errors.Is(err, ErrNonPositivePrice) {
		t.Errorf("zero price: got %v, want ErrNonPositivePrice", err)
	}
}

// --- Sell tests ---

func TestSell_PartialKeepsAveragePrice(t *testing.T) {
	// Hold 2 BTC invested 84000 @ avg 42000,
	// sell 0.5 @ 50000 → 1.5 held, invested 63000, avg still 42000.
	l := newLedger(t)
	l, _ = Buy(l, "BTC", "Bitcoin", d(1), d(40000), now)
	l, _ = Buy(l, "BTC", "Bitcoin", d(1), d(44000), now)

	l, err := Sell(l, "BTC", d(0.5), d(50000), now)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	h := l.Holdings["BTC"]
	if !h.Amount.Equal(d(1.5)) {
		t.Errorf("amount = %s, want 1.5", h.Amount)
	}
	if !h.TotalInvested.Equal(d(63000)) {
		t.Errorf("total invested = %s, want 63000", h.TotalInvested)
	}
	if !h.AveragePrice.Equal(d(42000)) {
		t.Errorf("average price = %s, want unchanged 42000", h.AveragePrice)
	}
}

func TestSell_FullAmountRemovesHolding(t *testing.T) {
	l := newLedger(t)
	l, _ = Buy(l, "ETH", "Ethereum", d(3), d(2000), now)

	l, err := Sell(l, "ETH", d(3), d(2500), now)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if _, ok := l.Holdings["ETH"]; ok {
		t.Fatal("holding should be removed when amount reaches zero")
	}

	// Re-buy starts a fresh average, not blended with the old one.
	l, err = Buy(l, "ETH", "Ethereum", d(1), d(3000), now)
	if err != nil {
		t.Fatalf("re-buy: %v", err)
	}
	if !l.Holdings["ETH"].AveragePrice.Equal(d(3000)) {
		t.Errorf("fresh average = %s, want 3000", l.Holdings["ETH"].AveragePrice)
	}
}

func TestSell_Insufficient(t *testing.T) {
	l := newLedger(t)
	l, _ = Buy(l, "BTC", "Bitcoin", d(1), d(40000), now)
	before := l.Clone()

	_, err := Sell(l, "BTC", d(2), d(40000), now)
	if !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("got %v, want ErrInsufficientHoldings", err)
	}

	// Ledger untouched: before/after snapshots identical.
	h, bh := l.Holdings["BTC"], before.Holdings["BTC"]
	if !h.Amount.Equal(bh.Amount) || !h.TotalInvested.Equal(bh.TotalInvested) {
		t.Error("failed sell must leave the ledger unchanged")
	}
}

func TestSell_UnknownSymbol(t *testing.T) {
	l := newLedger(t)
	if _, err := Sell(l, "DOGE", d(1), d(0.1), now); !errors.Is(err, ErrInsufficientHoldings) {
		t.Errorf("got %v, want ErrInsufficientHoldings", err)
	}
}

func TestSell_SequenceConservesRatio(t *testing.T) {
	// Repeated partial sells: invested/amount stays equal to the
	// original average at every step.
	l := newLedger(t)
	l, _ = Buy(l, "SOL", "Solana", d(100), d(150), now)
	avg := l.Holdings["SOL"].AveragePrice

	for i := 0; i < 5; i++ {
		var err error
		l, err = Sell(l, "SOL", d(10), d(180), now)
		if err != nil {
			t.Fatalf("sell %d: %v", i, err)
		}
		h := l.Holdings["SOL"]
		if !h.AveragePrice.Equal(avg) {
			t.Fatalf("sell %d: average price drifted to %s", i, h.AveragePrice)
		}
		// Division rounding in the sell ratio makes this an epsilon
		// comparison, not exact equality.
		if h.TotalInvested.Sub(h.Amount.Mul(avg)).Abs().GreaterThan(d(0.0000001)) {
			t.Fatalf("sell %d: invested %s != amount*avg %s", i, h.TotalInvested, h.Amount.Mul(avg))
		}
	}
}

// --- Apply dispatch ---

func TestApply_RejectsNonTradeTypes(t *testing.T) {
	l := newLedger(t)
	if _, err := Apply(l, model.TxDeposit, "", "", d(100), d(1), now); err == nil {
		t.Error("deposit must not reach the holdings transform")
	}
}
