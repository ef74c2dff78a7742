package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// InvoiceRepository handles all database operations for inbound invoices.
type InvoiceRepository struct {
	db *DB
}

// NewInvoiceRepository creates a new invoice repository instance.
func NewInvoiceRepository(db *DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create inserts a newly minted, unsettled invoice.
func (r *InvoiceRepository) Create(ctx context.Context, q Querier, inv *Invoice) error {
	query := `INSERT INTO invoices (id, user_id, token_id, amount_msats, memo, invoice, created, expiration, settlement_amount, settlement_timestamp, settle_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := q.Exec(ctx, query, inv.ID, inv.UserID, inv.TokenID, inv.AmountMsats, inv.Memo, inv.Raw, inv.Created, inv.Expiration, inv.SettlementAmount, inv.SettlementTimestamp, inv.SettleIndex)
	if err != nil {
		return fmt.Errorf("failed to create invoice %s: %w", inv.ID, err)
	}
	return nil
}

// GetByID loads an invoice by id.
func (r *InvoiceRepository) GetByID(ctx context.Context, q Querier, id string) (*Invoice, error) {
	query := `SELECT id, user_id, token_id, amount_msats, memo, invoice, created, expiration, settlement_amount, settlement_timestamp, settle_index
		FROM invoices WHERE id = $1`
	return r.scanOne(q.QueryRow(ctx, query, id))
}

// GetByRaw looks up an invoice by its BOLT-11 string, used by both
// settlement sources to map a node update back to our row. Returns
// ErrNotFound for a raw string this service never issued.
func (r *InvoiceRepository) GetByRaw(ctx context.Context, q Querier, raw string) (*Invoice, error) {
	query := `SELECT id, user_id, token_id, amount_msats, memo, invoice, created, expiration, settlement_amount, settlement_timestamp, settle_index
		FROM invoices WHERE invoice = $1`
	return r.scanOne(q.QueryRow(ctx, query, raw))
}

func (r *InvoiceRepository) scanOne(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.UserID, &inv.TokenID, &inv.AmountMsats, &inv.Memo, &inv.Raw, &inv.Created, &inv.Expiration, &inv.SettlementAmount, &inv.SettlementTimestamp, &inv.SettleIndex)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}
	return &inv, nil
}

// ListUnsettled returns every invoice without a settlement_timestamp, the
// startup-reconciliation worker's unit of work.
func (r *InvoiceRepository) ListUnsettled(ctx context.Context, q Querier) ([]*Invoice, error) {
	query := `SELECT id, user_id, token_id, amount_msats, memo, invoice, created, expiration, settlement_amount, settlement_timestamp, settle_index
		FROM invoices WHERE settlement_timestamp IS NULL`
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled invoices: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// Complete stamps the settlement fields. Guarded to fire only while
// settlement_timestamp is still NULL, making re-delivery of the same
// settle_index a no-op.
func (r *InvoiceRepository) Complete(ctx context.Context, q Querier, id string, amountMsats int64, settleIndex uint64, at time.Time) error {
	query := `UPDATE invoices SET settlement_amount = $1, settlement_timestamp = $2, settle_index = $3
		WHERE id = $4 AND settlement_timestamp IS NULL`
	_, err := q.Exec(ctx, query, amountMsats, at, int64(settleIndex), id)
	if err != nil {
		return fmt.Errorf("failed to complete invoice %s: %w", id, err)
	}
	return nil
}

// MaxSettleIndex returns the highest settle_index recorded, the resume
// point for the live settlement stream on startup.
func (r *InvoiceRepository) MaxSettleIndex(ctx context.Context, q Querier) (uint64, error) {
	query := `SELECT COALESCE(MAX(settle_index), 0) FROM invoices`
	var max int64
	if err := q.QueryRow(ctx, query).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max settle index: %w", err)
	}
	return uint64(max), nil
}

// SumAmountSince returns the total amount_msats of invoices created by this
// user since `since`, the daily_total input to limits.Check.
func (r *InvoiceRepository) SumAmountSince(ctx context.Context, q Querier, userID string, since time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_msats), 0) FROM invoices WHERE user_id = $1 AND created >= $2`
	var total int64
	if err := q.QueryRow(ctx, query, userID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum invoices for user %s: %w", userID, err)
	}
	return total, nil
}

// ListByUserID returns a user's invoices, newest first.
func (r *InvoiceRepository) ListByUserID(ctx context.Context, q Querier, userID string, limit, offset int) ([]*Invoice, error) {
	query := `SELECT id, user_id, token_id, amount_msats, memo, invoice, created, expiration, settlement_amount, settlement_timestamp, settle_index
		FROM invoices WHERE user_id = $1 ORDER BY created DESC LIMIT $2 OFFSET $3`
	rows, err := q.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for user %s: %w", userID, err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *InvoiceRepository) scanAll(rows pgx.Rows) ([]*Invoice, error) {
	var out []*Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.TokenID, &inv.AmountMsats, &inv.Memo, &inv.Raw, &inv.Created, &inv.Expiration, &inv.SettlementAmount, &inv.SettlementTimestamp, &inv.SettleIndex); err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		out = append(out, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
