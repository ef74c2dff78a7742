package store

import (
	"context"
	"errors"
	"fmt"

	"lnledger/internal/ledger"

	"github.com/jackc/pgx/v5"
)

// UserRepository handles all database operations for users.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository instance.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user with the given starting balance.
func (r *UserRepository) Create(ctx context.Context, q Querier, u *User) error {
	query := `INSERT INTO users (id, email, balance_msats, created) VALUES ($1, $2, $3, $4)`
	_, err := q.Exec(ctx, query, u.ID, u.Email, u.BalanceMsats, u.Created)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by id. Returns ErrNotFound if the id does not exist.
func (r *UserRepository) GetByID(ctx context.Context, q Querier, id string) (*User, error) {
	query := `SELECT id, email, balance_msats, created FROM users WHERE id = $1`
	var u User
	err := q.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &u.BalanceMsats, &u.Created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &u, nil
}

// LoadBalance returns the ledger.Balance value object for a user, suitable
// for ledger.Balance.Reserve/Credit followed by UpdateBalanceCAS.
func (r *UserRepository) LoadBalance(ctx context.Context, q Querier, userID string) (*ledger.Balance, error) {
	u, err := r.GetByID(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return ledger.LoadBalance(ledger.UserID(u.ID), ledger.Msat(u.BalanceMsats)), nil
}

// UpdateBalanceCAS persists balance.Amount only if the row still holds
// balance.OriginalAmount(); zero rows affected maps to ledger.ErrConflict.
// A no-op (unchanged) balance skips the write entirely.
func (r *UserRepository) UpdateBalanceCAS(ctx context.Context, q Querier, balance *ledger.Balance) error {
	if !balance.Changed() {
		return nil
	}

	query := `UPDATE users SET balance_msats = $1 WHERE id = $2 AND balance_msats = $3`
	tag, err := q.Exec(ctx, query, int64(balance.Amount), string(balance.UserID), int64(balance.OriginalAmount()))
	if err != nil {
		return fmt.Errorf("failed to update balance for user %s: %w", balance.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("balance row changed concurrently for user %s: %w", balance.UserID, ledger.ErrConflict)
	}
	return nil
}
