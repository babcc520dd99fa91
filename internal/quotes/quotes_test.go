package quotes

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/ledger-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func seedLedger(t *testing.T) *model.Ledger {
	t.Helper()
	l := model.NewLedger("user1")
	l.Holdings["BTC"] = &model.Holding{
		Symbol: "BTC", Name: "Bitcoin",
		Amount: d(2), AveragePrice: d(42000), TotalInvested: d(84000),
		CurrentPrice: d(43000), Change24h: d(1.1),
	}
	l.Holdings["ETH"] = &model.Holding{
		Symbol: "ETH", Name: "Ethereum",
		Amount: d(10), AveragePrice: d(2000), TotalInvested: d(20000),
		CurrentPrice: d(2100), Change24h: d(-0.4),
	}
	return l
}

func TestApply_SetsQuotedPrices(t *testing.T) {
	l := seedLedger(t)

	Apply(l, map[string]Quote{
		"BTC": {Price: d(50000), Change24h: d(2.5)},
		"ETH": {Price: d(1800), Change24h: d(-3)},
	})

	if !l.Holdings["BTC"].CurrentPrice.Equal(d(50000)) {
		t.Errorf("BTC price = %s, want 50000", l.Holdings["BTC"].CurrentPrice)
	}
	if !l.Holdings["ETH"].Change24h.Equal(d(-3)) {
		t.Errorf("ETH change = %s, want -3", l.Holdings["ETH"].Change24h)
	}
}

func TestApply_MissingQuoteFallsBackToAverage(t *testing.T) {
	l := seedLedger(t)

	// Provider omitted ETH: its previous mark must not linger.
	Apply(l, map[string]Quote{
		"BTC": {Price: d(50000), Change24h: d(2.5)},
	})

	eth := l.Holdings["ETH"]
	if !eth.CurrentPrice.Equal(eth.AveragePrice) {
		t.Errorf("ETH price = %s, want average price fallback %s", eth.CurrentPrice, eth.AveragePrice)
	}
	if !eth.Change24h.IsZero() {
		t.Errorf("ETH change = %s, want 0 on fallback", eth.Change24h)
	}
}

func TestApply_EmptyMapIsValid(t *testing.T) {
	l := seedLedger(t)

	Apply(l, map[string]Quote{})

	for sym, h := range l.Holdings {
		if !h.CurrentPrice.Equal(h.AveragePrice) {
			t.Errorf("%s price = %s, want average fallback", sym, h.CurrentPrice)
		}
	}
}

func TestApply_NeverTouchesPositionFields(t *testing.T) {
	l := seedLedger(t)
	before := l.Clone()

	Apply(l, map[string]Quote{
		"BTC": {Price: d(99999), Change24h: d(50)},
	})

	for sym, h := range l.Holdings {
		bh := before.Holdings[sym]
		if !h.Amount.Equal(bh.Amount) {
			t.Errorf("%s amount mutated", sym)
		}
		if !h.AveragePrice.Equal(bh.AveragePrice) {
			t.Errorf("%s average price mutated", sym)
		}
		if !h.TotalInvested.Equal(bh.TotalInvested) {
			t.Errorf("%s total invested mutated", sym)
		}
	}
}

func TestStaticProvider_PartialResults(t *testing.T) {
	p := &StaticProvider{Quotes: map[string]Quote{
		"BTC": {Price: d(50000), Change24h: d(1)},
	}}

	got, err := p.FetchQuotes(context.Background(), []string{"BTC", "DOGE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(got))
	}
	if _, ok := got["DOGE"]; ok {
		t.Error("unlisted symbol must be absent, not zero-valued")
	}
}
