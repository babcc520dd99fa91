// Package store defines the persistence interface for the ledger engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/coinfolio/ledger-engine/internal/model"
)

var (
	// ErrNotFound is returned when a ledger or transaction does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict is returned when a ledger save loses the
	// compare-and-swap on its version, i.e. another writer got in between
	// the caller's load and save. Callers retry from a fresh load.
	ErrVersionConflict = errors.New("store: ledger version conflict")
)

// TxFilter selects and pages a user's transaction history.
// Zero values mean "no filter"; Limit == 0 means a default page size.
type TxFilter struct {
	Type   model.TxType
	Status model.TxStatus
	Limit  int
	Offset int
}

// DefaultPageSize bounds ListTransactions when no limit is given.
const DefaultPageSize = 50

// Store is the persistence interface. Ledger saves are versioned
// compare-and-swap: SaveLedger only succeeds when the caller's Version
// matches the stored one (or the ledger is new and Version is zero), and
// increments Version on success.
type Store interface {
	// --- Ledgers ---

	// LoadLedger retrieves a user's ledger. Returns ErrNotFound when the
	// user has no ledger yet; callers create one lazily.
	LoadLedger(ctx context.Context, userID string) (*model.Ledger, error)

	// SaveLedger persists a ledger if its Version still matches the stored
	// one, then increments l.Version. Returns ErrVersionConflict on a
	// stale version.
	SaveLedger(ctx context.Context, l *model.Ledger) error

	// --- Immutable transaction log ---

	// AppendTransaction appends an audit record. Records are never
	// modified afterwards except via UpdateTransactionStatus.
	AppendTransaction(ctx context.Context, tx *model.Transaction) error

	// GetTransaction retrieves one of a user's transactions by id.
	GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error)

	// UpdateTransactionStatus transitions a transaction from one status to
	// another atomically. Returns ErrNotFound if the transaction does not
	// exist for the user, ErrVersionConflict if its status is not `from`.
	UpdateTransactionStatus(ctx context.Context, userID, id string, from, to model.TxStatus) error

	// ListTransactions returns a user's history, newest first.
	ListTransactions(ctx context.Context, userID string, f TxFilter) ([]model.Transaction, error)
}
