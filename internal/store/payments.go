package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PaymentRepository handles all database operations for outbound payments.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository creates a new payment repository instance.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a New payment (status code 0, fee/reservation still unset).
func (r *PaymentRepository) Create(ctx context.Context, q Querier, p *Payment) error {
	query := `INSERT INTO payments (id, user_id, token_id, reservation_id, amount_msats, fee_msats, invoice, created, status, failure_reason, failure_timestamp, success_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := q.Exec(ctx, query, p.ID, p.UserID, p.TokenID, p.ReservationID, p.AmountMsats, p.FeeMsats, p.Invoice, p.Created, p.Status, p.FailureReason, p.FailureTimestamp, p.SuccessTimestamp)
	if err != nil {
		return fmt.Errorf("failed to create payment %s: %w", p.ID, err)
	}
	return nil
}

// GetByID loads a payment by id.
func (r *PaymentRepository) GetByID(ctx context.Context, q Querier, id string) (*Payment, error) {
	query := `SELECT id, user_id, token_id, reservation_id, amount_msats, fee_msats, invoice, created, status, failure_reason, failure_timestamp, success_timestamp
		FROM payments WHERE id = $1`
	var p Payment
	err := q.QueryRow(ctx, query, id).Scan(&p.ID, &p.UserID, &p.TokenID, &p.ReservationID, &p.AmountMsats, &p.FeeMsats, &p.Invoice, &p.Created, &p.Status, &p.FailureReason, &p.FailureTimestamp, &p.SuccessTimestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment %s: %w", id, err)
	}
	return &p, nil
}

// UpdateProbeResult persists the fee/reservation found during the probe
// step and advances status to Ready (still code 0).
func (r *PaymentRepository) UpdateProbeResult(ctx context.Context, q Querier, id string, feeMsats int64, reservationID string) error {
	query := `UPDATE payments SET fee_msats = $1, reservation_id = $2, status = $3 WHERE id = $4`
	tag, err := q.Exec(ctx, query, feeMsats, reservationID, PaymentStatusNewOrReady, id)
	if err != nil {
		return fmt.Errorf("failed to update probe result for payment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSucceeded records a successful send.
func (r *PaymentRepository) MarkSucceeded(ctx context.Context, q Querier, id string, at time.Time) error {
	query := `UPDATE payments SET status = $1, success_timestamp = $2 WHERE id = $3`
	tag, err := q.Exec(ctx, query, PaymentStatusSucceeded, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark payment %s succeeded: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records a failed send with its canonical reason string. Not
// called for the Unknown outcome: that one leaves the payment
// status as New/Ready and the reservation Pending, pending operator review.
func (r *PaymentRepository) MarkFailed(ctx context.Context, q Querier, id, reason string, at time.Time) error {
	query := `UPDATE payments SET status = $1, failure_reason = $2, failure_timestamp = $3 WHERE id = $4`
	tag, err := q.Exec(ctx, query, PaymentStatusFailed, reason, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark payment %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SumAmountSince returns the total amount_msats of payments created by
// this user since `since`, the daily_total input to limits.Check.
func (r *PaymentRepository) SumAmountSince(ctx context.Context, q Querier, userID string, since time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_msats), 0) FROM payments WHERE user_id = $1 AND created >= $2`
	var total int64
	if err := q.QueryRow(ctx, query, userID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum payments for user %s: %w", userID, err)
	}
	return total, nil
}

// ListByUserID returns a user's payments, newest first.
func (r *PaymentRepository) ListByUserID(ctx context.Context, q Querier, userID string, limit, offset int) ([]*Payment, error) {
	query := `SELECT id, user_id, token_id, reservation_id, amount_msats, fee_msats, invoice, created, status, failure_reason, failure_timestamp, success_timestamp
		FROM payments WHERE user_id = $1 ORDER BY created DESC LIMIT $2 OFFSET $3`
	rows, err := q.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.TokenID, &p.ReservationID, &p.AmountMsats, &p.FeeMsats, &p.Invoice, &p.Created, &p.Status, &p.FailureReason, &p.FailureTimestamp, &p.SuccessTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
