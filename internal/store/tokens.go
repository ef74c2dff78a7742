package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// AuthTokenRepository handles all database operations for auth tokens.
type AuthTokenRepository struct {
	db *DB
}

// NewAuthTokenRepository creates a new auth token repository instance.
func NewAuthTokenRepository(db *DB) *AuthTokenRepository {
	return &AuthTokenRepository{db: db}
}

// Create inserts a new auth token.
func (r *AuthTokenRepository) Create(ctx context.Context, q Querier, t *AuthToken) error {
	query := `INSERT INTO auth_tokens (id, user_id, name, token_hash, can_spend, can_receive, can_read, created, disabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := q.Exec(ctx, query, t.ID, t.UserID, t.Name, t.TokenHash, t.CanSpend, t.CanReceive, t.CanRead, t.Created, t.Disabled)
	if err != nil {
		return fmt.Errorf("failed to create auth token: %w", err)
	}
	return nil
}

// GetByHash looks up a token by its hashed value. Returns ErrNotFound if no
// token carries that hash.
func (r *AuthTokenRepository) GetByHash(ctx context.Context, q Querier, hash string) (*AuthToken, error) {
	query := `SELECT id, user_id, name, token_hash, can_spend, can_receive, can_read, created, disabled
		FROM auth_tokens WHERE token_hash = $1`
	var t AuthToken
	err := q.QueryRow(ctx, query, hash).Scan(
		&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.CanSpend, &t.CanReceive, &t.CanRead, &t.Created, &t.Disabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get auth token: %w", err)
	}
	return &t, nil
}

// GetByID retrieves a token by id, used when re-checking permissions for a
// stored token_id (e.g. withdrawal/payment rows).
func (r *AuthTokenRepository) GetByID(ctx context.Context, q Querier, id string) (*AuthToken, error) {
	query := `SELECT id, user_id, name, token_hash, can_spend, can_receive, can_read, created, disabled
		FROM auth_tokens WHERE id = $1`
	var t AuthToken
	err := q.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.CanSpend, &t.CanReceive, &t.CanRead, &t.Created, &t.Disabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get auth token %s: %w", id, err)
	}
	return &t, nil
}
