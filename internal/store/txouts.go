package store

import (
	"context"
	"errors"
	"fmt"

	"lnledger/internal/ledger"
	"lnledger/internal/node"

	"github.com/jackc/pgx/v5"
)

// TxOutRepository handles all database operations for on-chain outputs.
type TxOutRepository struct {
	db *DB
}

// NewTxOutRepository creates a new tx_out repository instance.
func NewTxOutRepository(db *DB) *TxOutRepository {
	return &TxOutRepository{db: db}
}

// Upsert records or updates a tx_out, overwriting block_height as the
// output moves from unconfirmed to confirmed.
func (r *TxOutRepository) Upsert(ctx context.Context, q Querier, t node.TxOut) error {
	query := `INSERT INTO tx_outs (tx_id, v_out, block_height, address, amount_sats)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tx_id, v_out) DO UPDATE SET block_height = EXCLUDED.block_height`
	_, err := q.Exec(ctx, query, t.TxID, int32(t.VOut), t.BlockHeight, t.Address, int64(t.AmountSats))
	if err != nil {
		return fmt.Errorf("failed to upsert tx_out %s:%d: %w", t.TxID, t.VOut, err)
	}
	return nil
}

// GetByKey loads a tx_out by its composite key. Returns ErrNotFound if it
// doesn't exist yet.
func (r *TxOutRepository) GetByKey(ctx context.Context, q Querier, txID string, vOut int32) (*node.TxOut, error) {
	query := `SELECT tx_id, v_out, block_height, address, amount_sats FROM tx_outs WHERE tx_id = $1 AND v_out = $2`
	var row TxOut
	err := q.QueryRow(ctx, query, txID, vOut).Scan(&row.TxID, &row.VOut, &row.BlockHeight, &row.Address, &row.AmountSats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tx_out %s:%d: %w", txID, vOut, err)
	}
	return &node.TxOut{
		TxID:        row.TxID,
		VOut:        uint32(row.VOut),
		BlockHeight: row.BlockHeight,
		Address:     row.Address,
		AmountSats:  ledger.Sat(row.AmountSats),
	}, nil
}

// MaxConfirmedBlockHeight returns the highest block_height recorded, used
// to seed the chain listener's chain_tip at startup.
func (r *TxOutRepository) MaxConfirmedBlockHeight(ctx context.Context, q Querier) (*int64, error) {
	query := `SELECT MAX(block_height) FROM tx_outs`
	var max *int64
	if err := q.QueryRow(ctx, query).Scan(&max); err != nil {
		return nil, fmt.Errorf("failed to get max block height: %w", err)
	}
	return max, nil
}
