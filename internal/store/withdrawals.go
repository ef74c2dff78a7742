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

// WithdrawalRepository handles all database operations for withdrawals.
type WithdrawalRepository struct {
	db *DB
}

// NewWithdrawalRepository creates a new withdrawal repository instance.
func NewWithdrawalRepository(db *DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create inserts a Started withdrawal (tx_id/v_out still NULL).
func (r *WithdrawalRepository) Create(ctx context.Context, q Querier, w *Withdrawal) error {
	query := `INSERT INTO withdrawals (id, user_id, token_id, reservation_id, address, fee_sats, amount_sats, tx_id, v_out, created, confirmed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := q.Exec(ctx, query, w.ID, w.UserID, w.TokenID, w.ReservationID, w.Address, w.FeeSats, w.AmountSats, w.TxID, w.VOut, w.Created, w.Confirmed)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal %s: %w", w.ID, err)
	}
	return nil
}

// GetByID loads a withdrawal by id.
func (r *WithdrawalRepository) GetByID(ctx context.Context, q Querier, id string) (*Withdrawal, error) {
	query := `SELECT id, user_id, token_id, reservation_id, address, fee_sats, amount_sats, tx_id, v_out, created, confirmed
		FROM withdrawals WHERE id = $1`
	return r.scanOne(q.QueryRow(ctx, query, id))
}

// LockForBroadcast loads a withdrawal with SELECT ... FOR UPDATE, serializing
// concurrent broadcast attempts for the same row within the sender
// worker's transaction.
func (r *WithdrawalRepository) LockForBroadcast(ctx context.Context, q Querier, id string) (*Withdrawal, error) {
	query := `SELECT id, user_id, token_id, reservation_id, address, fee_sats, amount_sats, tx_id, v_out, created, confirmed
		FROM withdrawals WHERE id = $1 FOR UPDATE`
	return r.scanOne(q.QueryRow(ctx, query, id))
}

func (r *WithdrawalRepository) scanOne(row pgx.Row) (*Withdrawal, error) {
	var w Withdrawal
	err := row.Scan(&w.ID, &w.UserID, &w.TokenID, &w.ReservationID, &w.Address, &w.FeeSats, &w.AmountSats, &w.TxID, &w.VOut, &w.Created, &w.Confirmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
	}
	return &w, nil
}

// GetByTxOut looks up the withdrawal backed by a given output, the lookup
// the chain listener uses to find a Withdrawal to confirm.
func (r *WithdrawalRepository) GetByTxOut(ctx context.Context, q Querier, txID string, vOut int32) (*Withdrawal, error) {
	query := `SELECT id, user_id, token_id, reservation_id, address, fee_sats, amount_sats, tx_id, v_out, created, confirmed
		FROM withdrawals WHERE tx_id = $1 AND v_out = $2`
	return r.scanOne(q.QueryRow(ctx, query, txID, vOut))
}

// ListUnbroadcast returns every withdrawal still awaiting broadcast
// (tx_id IS NULL), the sender worker's unit of work each cycle.
func (r *WithdrawalRepository) ListUnbroadcast(ctx context.Context, q Querier) ([]*Withdrawal, error) {
	query := `SELECT id, user_id, token_id, reservation_id, address, fee_sats, amount_sats, tx_id, v_out, created, confirmed
		FROM withdrawals WHERE tx_id IS NULL ORDER BY created ASC`
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unbroadcast withdrawals: %w", err)
	}
	defer rows.Close()

	var out []*Withdrawal
	for rows.Next() {
		var w Withdrawal
		if err := rows.Scan(&w.ID, &w.UserID, &w.TokenID, &w.ReservationID, &w.Address, &w.FeeSats, &w.AmountSats, &w.TxID, &w.VOut, &w.Created, &w.Confirmed); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal row: %w", err)
		}
		out = append(out, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// RecordBroadcast stamps the withdrawal with the tx_out it was broadcast
// (or crash-recovered) as. Guarded to fire only while tx_id is still NULL,
// and the unique index on (tx_id, v_out) ensures that output can back at
// most one withdrawal.
func (r *WithdrawalRepository) RecordBroadcast(ctx context.Context, q Querier, id, txID string, vOut int32) error {
	query := `UPDATE withdrawals SET tx_id = $1, v_out = $2 WHERE id = $3 AND tx_id IS NULL`
	tag, err := q.Exec(ctx, query, txID, vOut, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("tx_out %s:%d already backs another withdrawal: %w", txID, vOut, ledger.ErrConflict)
		}
		return fmt.Errorf("failed to record broadcast for withdrawal %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal %s already broadcast: %w", id, ledger.ErrConflict)
	}
	return nil
}

// Confirm marks a withdrawal's tx_out as confirmed. Guarded against
// double-confirmation.
func (r *WithdrawalRepository) Confirm(ctx context.Context, q Querier, id string, confirmed time.Time) error {
	query := `UPDATE withdrawals SET confirmed = $1 WHERE id = $2 AND confirmed IS NULL`
	tag, err := q.Exec(ctx, query, confirmed, id)
	if err != nil {
		return fmt.Errorf("failed to confirm withdrawal %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal %s already confirmed: %w", id, ledger.ErrConflict)
	}
	return nil
}

// ListByUserID returns a user's withdrawals, newest first.
func (r *WithdrawalRepository) ListByUserID(ctx context.Context, q Querier, userID string, limit, offset int) ([]*Withdrawal, error) {
	query := `SELECT id, user_id, token_id, reservation_id, address, fee_sats, amount_sats, tx_id, v_out, created, confirmed
		FROM withdrawals WHERE user_id = $1 ORDER BY created DESC LIMIT $2 OFFSET $3`
	rows, err := q.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*Withdrawal
	for rows.Next() {
		var w Withdrawal
		if err := rows.Scan(&w.ID, &w.UserID, &w.TokenID, &w.ReservationID, &w.Address, &w.FeeSats, &w.AmountSats, &w.TxID, &w.VOut, &w.Created, &w.Confirmed); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal row: %w", err)
		}
		out = append(out, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
