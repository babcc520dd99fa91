package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coinfolio/ledger-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Holdings are stored as a JSONB document per ledger; all monetary values
// in the transaction log are NUMERIC for exact decimal precision. The
// ledger version column carries the optimistic-concurrency CAS.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) LoadLedger(ctx context.Context, userID string) (*model.Ledger, error) {
	var (
		l                 model.Ledger
		holdings          []byte
		tv, ti, tgl, tglp string
	)

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, holdings, version,
		        total_value::TEXT, total_invested::TEXT,
		        total_gain_loss::TEXT, total_gain_loss_pct::TEXT,
		        last_updated
		 FROM ledgers WHERE user_id = $1`, userID).
		Scan(&l.UserID, &holdings, &l.Version,
			&tv, &ti, &tgl, &tglp,
			&l.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", userID, err)
	}

	if err := json.Unmarshal(holdings, &l.Holdings); err != nil {
		return nil, fmt.Errorf("load ledger %s: decode holdings: %w", userID, err)
	}
	if l.Holdings == nil {
		l.Holdings = make(map[string]*model.Holding)
	}
	l.TotalValue, _ = decimal.NewFromString(tv)
	l.TotalInvested, _ = decimal.NewFromString(ti)
	l.TotalGainLoss, _ = decimal.NewFromString(tgl)
	l.TotalGainLossPct, _ = decimal.NewFromString(tglp)

	return &l, nil
}

func (s *PostgresStore) SaveLedger(ctx context.Context, l *model.Ledger) error {
	holdings, err := json.Marshal(l.Holdings)
	if err != nil {
		return fmt.Errorf("save ledger %s: encode holdings: %w", l.UserID, err)
	}

	if l.Version == 0 {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO ledgers (user_id, holdings, version, total_value, total_invested, total_gain_loss, total_gain_loss_pct, last_updated)
			 VALUES ($1, $2, 1, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7)`,
			l.UserID, holdings,
			l.TotalValue.String(), l.TotalInvested.String(),
			l.TotalGainLoss.String(), l.TotalGainLossPct.String(),
			l.LastUpdated,
		)
		if isUniqueViolation(err) {
			// Someone created the ledger between our load and save.
			return ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("save ledger %s: %w", l.UserID, err)
		}
		l.Version = 1
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ledgers
		 SET holdings = $3, version = version + 1,
		     total_value = $4::NUMERIC, total_invested = $5::NUMERIC,
		     total_gain_loss = $6::NUMERIC, total_gain_loss_pct = $7::NUMERIC,
		     last_updated = $8
		 WHERE user_id = $1 AND version = $2`,
		l.UserID, l.Version, holdings,
		l.TotalValue.String(), l.TotalInvested.String(),
		l.TotalGainLoss.String(), l.TotalGainLossPct.String(),
		l.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save ledger %s: %w", l.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	l.Version++
	return nil
}

func (s *PostgresStore) AppendTransaction(ctx context.Context, tx *model.Transaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, symbol, name, amount, price, fee, total, status, notes, transaction_hash, exchange_order_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11, $12, $13, $14, $15)`,
		tx.ID, tx.UserID, string(tx.Type), tx.Symbol, tx.Name,
		tx.Amount.String(), tx.Price.String(), tx.Fee.String(), tx.Total.String(),
		string(tx.Status), tx.Notes, tx.TransactionHash, tx.ExchangeOrderID,
		tx.CreatedAt, tx.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		txSelectColumns+` FROM transactions WHERE user_id = $1 AND id = $2`, userID, id)

	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

func (s *PostgresStore) UpdateTransactionStatus(ctx context.Context, userID, id string, from, to model.TxStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions SET status = $4, updated_at = NOW()
		 WHERE user_id = $1 AND id = $2 AND status = $3`,
		userID, id, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("update transaction %s status: %w", id, err)
	}
	if tag.RowsAffected() != 0 {
		return nil
	}

	// Distinguish "missing" from "wrong current status".
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE user_id = $1 AND id = $2)`,
		userID, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update transaction %s status: %w", id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, f TxFilter) ([]model.Transaction, error) {
	query := txSelectColumns + ` FROM transactions WHERE user_id = $1`
	args := []any{userID}

	if f.Type != "" {
		args = append(args, string(f.Type))
		query += ` AND type = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, f.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

const txSelectColumns = `SELECT id, user_id, type, symbol, name,
	amount::TEXT, price::TEXT, fee::TEXT, total::TEXT,
	status, notes, transaction_hash, exchange_order_id,
	created_at, updated_at`

// scanTransaction reads one transaction row, converting NUMERIC text
// columns into decimals.
func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		tx                        model.Transaction
		typ, status               string
		amount, price, fee, total string
	)

	if err := row.Scan(&tx.ID, &tx.UserID, &typ, &tx.Symbol, &tx.Name,
		&amount, &price, &fee, &total,
		&status, &tx.Notes, &tx.TransactionHash, &tx.ExchangeOrderID,
		&tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return nil, err
	}

	tx.Type = model.TxType(typ)
	tx.Status = model.TxStatus(status)
	tx.Amount, _ = decimal.NewFromString(amount)
	tx.Price, _ = decimal.NewFromString(price)
	tx.Fee, _ = decimal.NewFromString(fee)
	tx.Total, _ = decimal.NewFromString(total)

	return &tx, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
