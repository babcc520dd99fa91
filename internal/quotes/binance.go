package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/ledger-engine/internal/metrics"
)

// DefaultBinanceEndpoint is the public no-key 24h ticker endpoint.
const DefaultBinanceEndpoint = "https://api.binance.com/api/v3/ticker/24hr"

// BinanceProvider fetches quotes from the Binance REST 24h ticker.
// Symbols are quoted against USDT (BTC → BTCUSDT). Symbols Binance does
// not list are silently absent from the result, per the Provider contract.
type BinanceProvider struct {
	HTTP     *http.Client
	Endpoint string
}

// NewBinanceProvider creates a provider against the given endpoint,
// defaulting to the public Binance API.
func NewBinanceProvider(endpoint string) *BinanceProvider {
	if endpoint == "" {
		endpoint = DefaultBinanceEndpoint
	}
	return &BinanceProvider{
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		Endpoint: endpoint,
	}
}

// binanceTicker is the subset of the 24h ticker payload we read.
type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// FetchQuotes requests the 24h ticker for every symbol's USDT pair.
// Unknown pairs make Binance reject the whole batch, so symbols are
// requested individually and failures degrade to partial results.
func (p *BinanceProvider) FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))

	for _, sym := range symbols {
		q, err := p.fetchOne(ctx, sym)
		if err != nil {
			metrics.QuoteFetchErrors.Inc()
			slog.Warn("quote fetch failed", "symbol", sym, "err", err)
			continue
		}
		out[sym] = q
	}
	return out, nil
}

func (p *BinanceProvider) fetchOne(ctx context.Context, symbol string) (Quote, error) {
	u := p.Endpoint + "?symbol=" + url.QueryEscape(strings.ToUpper(symbol)+"USDT")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("quotes: ticker returned status %d", resp.StatusCode)
	}

	var t binanceTicker
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return Quote{}, fmt.Errorf("quotes: decode ticker: %w", err)
	}

	price, err := decimal.NewFromString(t.LastPrice)
	if err != nil {
		return Quote{}, fmt.Errorf("quotes: bad price %q: %w", t.LastPrice, err)
	}
	change, err := decimal.NewFromString(t.PriceChangePercent)
	if err != nil {
		return Quote{}, fmt.Errorf("quotes: bad change %q: %w", t.PriceChangePercent, err)
	}

	return Quote{Price: price, Change24h: change}, nil
}
