package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coinfolio/ledger-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for ledgers. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
//
// The transaction log is not cached: history reads are rare relative to
// ledger reads, and the cancellation CAS must always see current state.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) LoadLedger(ctx context.Context, userID string) (*model.Ledger, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, ledgerKey(userID)).Bytes()
	if err == nil {
		var l model.Ledger
		if json.Unmarshal(data, &l) == nil {
			if l.Holdings == nil {
				l.Holdings = make(map[string]*model.Holding)
			}
			return &l, nil
		}
	}

	// Cache miss: read from primary.
	l, err := s.primary.LoadLedger(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cacheLedger(ctx, l)
	return l, nil
}

func (s *CachedStore) SaveLedger(ctx context.Context, l *model.Ledger) error {
	if err := s.primary.SaveLedger(ctx, l); err != nil {
		// On a version conflict the cached copy is stale too; drop it so
		// the retry loads a current ledger instead of the same stale one.
		s.rdb.Del(ctx, ledgerKey(l.UserID))
		return err
	}
	// Invalidate; next read re-populates with the saved version.
	s.rdb.Del(ctx, ledgerKey(l.UserID))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) AppendTransaction(ctx context.Context, tx *model.Transaction) error {
	return s.primary.AppendTransaction(ctx, tx)
}

func (s *CachedStore) GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error) {
	return s.primary.GetTransaction(ctx, userID, id)
}

func (s *CachedStore) UpdateTransactionStatus(ctx context.Context, userID, id string, from, to model.TxStatus) error {
	return s.primary.UpdateTransactionStatus(ctx, userID, id, from, to)
}

func (s *CachedStore) ListTransactions(ctx context.Context, userID string, f TxFilter) ([]model.Transaction, error) {
	return s.primary.ListTransactions(ctx, userID, f)
}

// --- Cache helpers ---

func (s *CachedStore) cacheLedger(ctx context.Context, l *model.Ledger) {
	if data, err := json.Marshal(l); err == nil {
		s.rdb.Set(ctx, ledgerKey(l.UserID), data, s.ttl)
	}
}

func ledgerKey(userID string) string { return fmt.Sprintf("ledger:%s", userID) }
