package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedProvider wraps an upstream Provider with a Redis read-through
// cache. Quotes are cached per symbol with a short TTL; on upstream
// failure whatever the cache still has is served, so a flaky market-data
// endpoint degrades read paths instead of breaking them.
type CachedProvider struct {
	upstream Provider
	rdb      *redis.Client
	ttl      time.Duration
}

// NewCachedProvider creates a cached wrapper around an upstream provider.
func NewCachedProvider(upstream Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		rdb:      rdb,
		ttl:      ttl,
	}
}

func (p *CachedProvider) FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	var missing []string

	for _, sym := range symbols {
		data, err := p.rdb.Get(ctx, quoteKey(sym)).Bytes()
		if err != nil {
			missing = append(missing, sym)
			continue
		}
		var q Quote
		if json.Unmarshal(data, &q) != nil {
			missing = append(missing, sym)
			continue
		}
		out[sym] = q
	}

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := p.upstream.FetchQuotes(ctx, missing)
	if err != nil {
		// Upstream unreachable: serve whatever the cache had. Partial
		// results are a valid Provider response.
		return out, nil
	}

	for sym, q := range fresh {
		out[sym] = q
		if data, err := json.Marshal(q); err == nil {
			p.rdb.Set(ctx, quoteKey(sym), data, p.ttl)
		}
	}
	return out, nil
}

func quoteKey(symbol string) string { return fmt.Sprintf("quote:%s", symbol) }
