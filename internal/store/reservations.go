package store

import (
	"context"
	"errors"
	"fmt"

	"lnledger/internal/ledger"

	"github.com/jackc/pgx/v5"
)

// ReservationRepository handles all database operations for balance
// reservations.
type ReservationRepository struct {
	db *DB
}

// NewReservationRepository creates a new reservation repository instance.
func NewReservationRepository(db *DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// Create inserts a new (necessarily Pending) reservation.
func (r *ReservationRepository) Create(ctx context.Context, q Querier, res *ledger.Reservation) error {
	query := `INSERT INTO balance_reservations (id, user_id, amount_msats, status, created) VALUES ($1, $2, $3, $4, $5)`
	_, err := q.Exec(ctx, query, res.ID, string(res.UserID), int64(res.Amount), reservationStatusCode(res.Status), res.Created)
	if err != nil {
		return fmt.Errorf("failed to create reservation %s: %w", res.ID, err)
	}
	return nil
}

// GetByID loads a reservation as a ledger.Reservation.
func (r *ReservationRepository) GetByID(ctx context.Context, q Querier, id string) (*ledger.Reservation, error) {
	query := `SELECT id, user_id, amount_msats, status, created FROM balance_reservations WHERE id = $1`
	var row Reservation
	err := q.QueryRow(ctx, query, id).Scan(&row.ID, &row.UserID, &row.AmountMsats, &row.Status, &row.Created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reservation %s: %w", id, err)
	}
	return &ledger.Reservation{
		ID:      row.ID,
		UserID:  ledger.UserID(row.UserID),
		Amount:  ledger.Msat(row.AmountMsats),
		Status:  reservationStatusFromCode(row.Status),
		Created: row.Created,
	}, nil
}

// PersistTerminal writes a reservation's terminal transition (Debited or
// Refunded), guarded so the UPDATE only fires while the row is still
// Pending. Zero rows affected means another process already finalized this
// reservation first; that is returned as ledger.ErrConflict, so an
// enclosing RetryLoop re-runs the flow, which then finds the reservation
// no longer Pending. A terminal status is never overwritten.
func (r *ReservationRepository) PersistTerminal(ctx context.Context, q Querier, res *ledger.Reservation) error {
	if res.Status == ledger.Pending {
		return fmt.Errorf("store: PersistTerminal called with non-terminal reservation %s", res.ID)
	}
	query := `UPDATE balance_reservations SET status = $1 WHERE id = $2 AND status = $3`
	tag, err := q.Exec(ctx, query, reservationStatusCode(res.Status), res.ID, reservationPending)
	if err != nil {
		return fmt.Errorf("failed to persist terminal reservation %s: %w", res.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s was already finalized: %w", res.ID, ledger.ErrConflict)
	}
	return nil
}

// ListPendingByUserID returns every reservation a user currently has open,
// used to reconcile balance + reservations invariants.
func (r *ReservationRepository) ListPendingByUserID(ctx context.Context, q Querier, userID string) ([]*ledger.Reservation, error) {
	query := `SELECT id, user_id, amount_msats, status, created FROM balance_reservations WHERE user_id = $1 AND status = $2`
	rows, err := q.Query(ctx, query, userID, reservationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reservations for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*ledger.Reservation
	for rows.Next() {
		var row Reservation
		if err := rows.Scan(&row.ID, &row.UserID, &row.AmountMsats, &row.Status, &row.Created); err != nil {
			return nil, fmt.Errorf("failed to scan reservation row: %w", err)
		}
		out = append(out, &ledger.Reservation{
			ID:      row.ID,
			UserID:  ledger.UserID(row.UserID),
			Amount:  ledger.Msat(row.AmountMsats),
			Status:  reservationStatusFromCode(row.Status),
			Created: row.Created,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
