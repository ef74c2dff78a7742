// Package invoice implements invoice creation and the two settlement
// sources — startup reconciliation and the live settle-index stream —
// that credit a user's balance once an invoice is paid.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"lnledger/internal/auth"
	"lnledger/internal/ledger"
	"lnledger/internal/limits"
	"lnledger/internal/node"
	"lnledger/internal/store"
	"lnledger/pkg/cache"
	"lnledger/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// settleIndexCacheKey caches the last settle_index the stream worker
// resumed from, so a restart does not need to wait on MaxSettleIndex's
// full table scan before resubscribing. Best-effort: a cache miss or a
// disconnected cache.Client just falls back to the database.
const settleIndexCacheKey = "lnledger:invoice_stream:settle_index"

const (
	maxMemoBytes    = 639
	maxExpirySecs   = 31536000 // 1 year
	dailyWindowSpan = 24 * time.Hour
)

var (
	ErrInvalidAmount = errors.New("invoice amount must be positive")
	ErrMemoTooLong   = errors.New("invoice memo exceeds 639 bytes")
	ErrInvalidExpiry = errors.New("invoice expiry must be positive and at most one year")
)

// Service creates invoices and reconciles their settlement.
type Service struct {
	DB       *store.DB
	Node     node.Node
	Users    *store.UserRepository
	Invoices *store.InvoiceRepository
	Limits   limits.Config
	Now      func() time.Time
}

// NewService builds an invoice Service.
func NewService(db *store.DB, n node.Node, users *store.UserRepository, invoices *store.InvoiceRepository, cfg limits.Config) *Service {
	return &Service{DB: db, Node: n, Users: users, Invoices: invoices, Limits: cfg, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create validates the request, applies the daily cash limit, mints a
// BOLT-11 invoice via the node, and persists it unsettled.
func (s *Service) Create(ctx context.Context, grant auth.ReceiveGrant, amount ledger.Msat, memo string, expiry time.Duration) (*store.Invoice, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(memo) > maxMemoBytes {
		return nil, ErrMemoTooLong
	}
	if expiry <= 0 || expiry > maxExpirySecs*time.Second {
		return nil, ErrInvalidExpiry
	}

	now := s.now()
	dailyTotal, err := s.Invoices.SumAmountSince(ctx, s.DB.Pool, string(grant.UserID), now.Add(-dailyWindowSpan))
	if err != nil {
		return nil, err
	}
	if err := limits.Check(s.Limits, limits.Request{Amount: amount, DailyTotal: ledger.Msat(dailyTotal)}); err != nil {
		return nil, err
	}

	raw, err := s.Node.CreateInvoice(ctx, amount, memo, expiry)
	if err != nil {
		return nil, fmt.Errorf("failed to mint invoice: %w", err)
	}

	inv := &store.Invoice{
		ID:          uuid.New().String(),
		UserID:      string(grant.UserID),
		TokenID:     grant.TokenID,
		AmountMsats: int64(amount),
		Raw:         raw,
		Created:     now,
		Expiration:  now.Add(expiry),
	}
	if memo != "" {
		inv.Memo = &memo
	}
	if err := s.Invoices.Create(ctx, s.DB.Pool, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices returns a user's invoices.
func (s *Service) ListInvoices(ctx context.Context, userID ledger.UserID, r ledger.Range) ([]*store.Invoice, error) {
	return s.Invoices.ListByUserID(ctx, s.DB.Pool, string(userID), r.Limit, r.Offset)
}

// Complete settles an invoice and credits the balance, idempotently: a
// second call for an already-settled invoice is a no-op. Run under
// ledger.RetryLoop by both settlement sources.
func (s *Service) Complete(ctx context.Context, invoiceID string, amountMsats ledger.Msat, settleIndex uint64, settleDate time.Time) error {
	tx, err := s.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	inv, err := s.Invoices.GetByID(ctx, tx, invoiceID)
	if err != nil {
		return err
	}
	if inv.IsSettled() {
		return tx.Commit(ctx)
	}

	balance, err := s.Users.LoadBalance(ctx, tx, inv.UserID)
	if err != nil {
		return err
	}
	balance.Credit(amountMsats)

	if err := s.Invoices.Complete(ctx, tx, inv.ID, int64(amountMsats), settleIndex, settleDate); err != nil {
		return err
	}
	if err := s.Users.UpdateBalanceCAS(ctx, tx, balance); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("invoice settled", zap.String("invoice_id", inv.ID), zap.String("user_id", inv.UserID), zap.Int64("amount_msats", int64(amountMsats)))
	return nil
}

// Reconciler is the worker.Worker that polls unsettled invoices on a
// timer and completes any the node reports as settled. It exists
// primarily to cover the startup gap before the live stream worker has
// caught up, and as a backstop if that stream drops an update.
type Reconciler struct {
	Svc      *Service
	Invoices *store.InvoiceRepository
	DB       *store.DB
	Node     node.Node
}

// NewReconciler builds a Reconciler.
func NewReconciler(svc *Service, invoices *store.InvoiceRepository, db *store.DB, n node.Node) *Reconciler {
	return &Reconciler{Svc: svc, Invoices: invoices, DB: db, Node: n}
}

// Run polls every unsettled invoice and completes those the node reports
// settled.
func (r *Reconciler) Run() error {
	ctx := context.Background()

	unsettled, err := r.Invoices.ListUnsettled(ctx, r.DB.Pool)
	if err != nil {
		return fmt.Errorf("failed to list unsettled invoices: %w", err)
	}

	for _, inv := range unsettled {
		status, err := r.Node.GetInvoiceStatus(ctx, inv.Raw)
		if err != nil {
			logger.Error("failed to poll invoice status", zap.String("invoice_id", inv.ID), zap.Error(err))
			continue
		}
		if !status.Settled {
			continue
		}
		if err := ledger.RetryLoop(func() error {
			return r.Svc.Complete(ctx, inv.ID, status.AmountMsats, status.SettleIndex, status.SettleDate)
		}); err != nil {
			logger.Error("failed to complete reconciled invoice", zap.String("invoice_id", inv.ID), zap.Error(err))
		}
	}
	return nil
}

// Timeout is how long the runtime sleeps between reconciliation cycles.
func (r *Reconciler) Timeout() time.Duration { return 30 * time.Second }

// Name identifies this worker in logs.
func (r *Reconciler) Name() string { return "invoice_reconciler" }

// StreamWorker is the worker.Worker that subscribes to the node's live
// settlement stream from the last known settle_index and completes
// matching invoices as updates arrive. It resubscribes every cycle —
// Run blocks for the lifetime of one subscription and returns when the
// stream ends, and the worker runtime's Timeout() sleep paces
// reconnect attempts.
type StreamWorker struct {
	Svc      *Service
	Invoices *store.InvoiceRepository
	DB       *store.DB
	Node     node.Node
}

// NewStreamWorker builds a StreamWorker.
func NewStreamWorker(svc *Service, invoices *store.InvoiceRepository, db *store.DB, n node.Node) *StreamWorker {
	return &StreamWorker{Svc: svc, Invoices: invoices, DB: db, Node: n}
}

// Run subscribes from the resume point chosen by resumeIndex (the cached
// cursor, else MAX(settle_index)) and processes updates until the stream
// ends or errors.
func (w *StreamWorker) Run() error {
	ctx := context.Background()

	fromIndex, err := w.resumeIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to get resume point for settlement stream: %w", err)
	}

	updates, errs := w.Node.StreamSettledInvoices(ctx, fromIndex)
	for {
		select {
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			w.handle(ctx, upd)
		case err, ok := <-errs:
			if !ok {
				continue
			}
			return fmt.Errorf("settlement stream error: %w", err)
		}
	}
}

// resumeIndex prefers the cached cursor over the database's MAX(settle_index)
// scan; it falls back to the database whenever the cache is unset, unusable,
// or not connected at all (cache.Client is nil when rate_limit.use_redis is
// off and nothing else initialized it).
func (w *StreamWorker) resumeIndex(ctx context.Context) (uint64, error) {
	if cache.Client != nil {
		if raw, err := cache.Get(ctx, settleIndexCacheKey); err == nil && raw != "" {
			if idx, err := strconv.ParseUint(raw, 10, 64); err == nil {
				return idx, nil
			}
		}
	}
	return w.Invoices.MaxSettleIndex(ctx, w.DB.Pool)
}

func (w *StreamWorker) handle(ctx context.Context, upd node.SettledInvoice) {
	if upd.SettleDate.IsZero() {
		return
	}

	inv, err := w.Invoices.GetByRaw(ctx, w.DB.Pool, upd.Raw)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Not an invoice this service issued.
			return
		}
		logger.Error("failed to look up invoice by raw payment request", zap.Error(err))
		return
	}

	if err := ledger.RetryLoop(func() error {
		return w.Svc.Complete(ctx, inv.ID, upd.AmountMsats, upd.SettleIndex, upd.SettleDate)
	}); err != nil {
		logger.Error("failed to complete streamed invoice settlement", zap.String("invoice_id", inv.ID), zap.Error(err))
		return
	}

	if cache.Client != nil {
		if err := cache.Set(ctx, settleIndexCacheKey, strconv.FormatUint(upd.SettleIndex, 10), 0); err != nil {
			logger.Warn("failed to cache settle index cursor", zap.Error(err))
		}
	}
}

// Timeout is how long the runtime sleeps before resubscribing after Run
// returns (stream ended, errored, or panicked).
func (w *StreamWorker) Timeout() time.Duration { return 5 * time.Second }

// Name identifies this worker in logs.
func (w *StreamWorker) Name() string { return "invoice_stream" }
