package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coinfolio/ledger-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// It enforces the same version compare-and-swap semantics as the
// PostgreSQL store, so the executor's concurrency behavior is exercised
// identically in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	ledgers map[string]*model.Ledger
	txs     map[string][]model.Transaction // userID → append-ordered records
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledgers: make(map[string]*model.Ledger),
		txs:     make(map[string][]model.Transaction),
	}
}

func (s *MemoryStore) LoadLedger(_ context.Context, userID string) (*model.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.ledgers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	// Hand out a deep copy so callers can't mutate shared state.
	return l.Clone(), nil
}

func (s *MemoryStore) SaveLedger(_ context.Context, l *model.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.ledgers[l.UserID]
	if ok {
		if current.Version != l.Version {
			return ErrVersionConflict
		}
	} else if l.Version != 0 {
		return ErrVersionConflict
	}

	saved := l.Clone()
	saved.Version++
	s.ledgers[l.UserID] = saved
	l.Version = saved.Version
	return nil
}

func (s *MemoryStore) AppendTransaction(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txs[tx.UserID] = append(s.txs[tx.UserID], *tx)
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, userID, id string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.txs[userID] {
		if tx.ID == id {
			cp := tx
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateTransactionStatus(_ context.Context, userID, id string, from, to model.TxStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.txs[userID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if list[i].Status != from {
			return ErrVersionConflict
		}
		list[i].Status = to
		list[i].UpdatedAt = time.Now().UTC()
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string, f TxFilter) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, tx := range s.txs[userID] {
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		result = append(result, tx)
	}

	// Newest first; fall back to append order for equal timestamps.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if f.Offset >= len(result) {
		return []model.Transaction{}, nil
	}
	result = result[f.Offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
