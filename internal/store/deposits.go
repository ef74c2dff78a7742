package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lnledger/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DepositRepository handles all database operations for deposits.
type DepositRepository struct {
	db *DB
}

// NewDepositRepository creates a new deposit repository instance.
func NewDepositRepository(db *DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// Create inserts an Unconfirmed deposit for (tx_id, v_out). The unique index
// on (tx_id, v_out) makes a racing second insert for the same output lose
// with ledger.ErrConflict rather than a raw unique-violation error.
func (r *DepositRepository) Create(ctx context.Context, q Querier, d *Deposit) error {
	query := `INSERT INTO deposits (id, user_id, tx_id, v_out, address, created, confirmed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := q.Exec(ctx, query, d.ID, d.UserID, d.TxID, d.VOut, d.Address, d.Created, d.Confirmed)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("deposit for %s:%d already exists: %w", d.TxID, d.VOut, ledger.ErrConflict)
		}
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	return nil
}

// GetByTxOut looks up a deposit by its underlying output. Returns
// ErrNotFound if this output hasn't produced a deposit yet.
func (r *DepositRepository) GetByTxOut(ctx context.Context, q Querier, txID string, vOut int32) (*Deposit, error) {
	query := `SELECT id, user_id, tx_id, v_out, address, created, confirmed FROM deposits WHERE tx_id = $1 AND v_out = $2`
	var d Deposit
	err := q.QueryRow(ctx, query, txID, vOut).Scan(&d.ID, &d.UserID, &d.TxID, &d.VOut, &d.Address, &d.Created, &d.Confirmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get deposit %s:%d: %w", txID, vOut, err)
	}
	return &d, nil
}

// GetByID loads a deposit by its primary key.
func (r *DepositRepository) GetByID(ctx context.Context, q Querier, id string) (*Deposit, error) {
	query := `SELECT id, user_id, tx_id, v_out, address, created, confirmed FROM deposits WHERE id = $1`
	var d Deposit
	err := q.QueryRow(ctx, query, id).Scan(&d.ID, &d.UserID, &d.TxID, &d.VOut, &d.Address, &d.Created, &d.Confirmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get deposit %s: %w", id, err)
	}
	return &d, nil
}

// Confirm marks a deposit confirmed. Guarded on confirmed IS NULL, so a
// second call for the same deposit updates nothing and returns
// ledger.ErrConflict instead of confirming twice; callers check
// d.Confirmed == nil before crediting the balance in the same transaction.
func (r *DepositRepository) Confirm(ctx context.Context, q Querier, id string, confirmed time.Time) error {
	query := `UPDATE deposits SET confirmed = $1 WHERE id = $2 AND confirmed IS NULL`
	tag, err := q.Exec(ctx, query, confirmed, id)
	if err != nil {
		return fmt.Errorf("failed to confirm deposit %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deposit %s already confirmed: %w", id, ledger.ErrConflict)
	}
	return nil
}

// ListByUserID returns a user's deposits, newest first.
func (r *DepositRepository) ListByUserID(ctx context.Context, q Querier, userID string, limit, offset int) ([]*Deposit, error) {
	query := `SELECT id, user_id, tx_id, v_out, address, created, confirmed FROM deposits
		WHERE user_id = $1 ORDER BY created DESC LIMIT $2 OFFSET $3`
	rows, err := q.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*Deposit
	for rows.Next() {
		var d Deposit
		if err := rows.Scan(&d.ID, &d.UserID, &d.TxID, &d.VOut, &d.Address, &d.Created, &d.Confirmed); err != nil {
			return nil, fmt.Errorf("failed to scan deposit row: %w", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
