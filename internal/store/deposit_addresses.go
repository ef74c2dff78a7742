package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DepositAddressRepository handles all database operations for generated
// deposit addresses.
type DepositAddressRepository struct {
	db *DB
}

// NewDepositAddressRepository creates a new deposit address repository instance.
func NewDepositAddressRepository(db *DB) *DepositAddressRepository {
	return &DepositAddressRepository{db: db}
}

// Create records a freshly generated address as belonging to a user/token.
func (r *DepositAddressRepository) Create(ctx context.Context, q Querier, a *DepositAddress) error {
	query := `INSERT INTO deposit_addresses (user_id, token_id, address, created) VALUES ($1, $2, $3, $4)`
	_, err := q.Exec(ctx, query, a.UserID, a.TokenID, a.Address, a.Created)
	if err != nil {
		return fmt.Errorf("failed to create deposit address %s: %w", a.Address, err)
	}
	return nil
}

// GetByAddress looks up the owning user for a known deposit address.
// Returns ErrNotFound for an address the service never generated — the
// chain listener uses this to decide whether an output is ours.
func (r *DepositAddressRepository) GetByAddress(ctx context.Context, q Querier, address string) (*DepositAddress, error) {
	query := `SELECT user_id, token_id, address, created FROM deposit_addresses WHERE address = $1`
	var a DepositAddress
	err := q.QueryRow(ctx, query, address).Scan(&a.UserID, &a.TokenID, &a.Address, &a.Created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get deposit address %s: %w", address, err)
	}
	return &a, nil
}

// ListByUserID returns every address ever generated for a user, newest first.
func (r *DepositAddressRepository) ListByUserID(ctx context.Context, q Querier, userID string, limit, offset int) ([]*DepositAddress, error) {
	query := `SELECT user_id, token_id, address, created FROM deposit_addresses
		WHERE user_id = $1 ORDER BY created DESC LIMIT $2 OFFSET $3`
	rows, err := q.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposit addresses for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*DepositAddress
	for rows.Next() {
		var a DepositAddress
		if err := rows.Scan(&a.UserID, &a.TokenID, &a.Address, &a.Created); err != nil {
			return nil, fmt.Errorf("failed to scan deposit address row: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
