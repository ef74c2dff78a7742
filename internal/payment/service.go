// Package payment implements outbound Lightning payment creation,
// fee-probing, and sending.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lnledger/internal/auth"
	"lnledger/internal/ledger"
	"lnledger/internal/limits"
	"lnledger/internal/node"
	"lnledger/internal/store"
	"lnledger/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dailyWindowSpan = 24 * time.Hour

var (
	// ErrAmountSpecifiedTwice is returned when both the invoice and the
	// caller specify an amount.
	ErrAmountSpecifiedTwice = errors.New("amount specified both by invoice and caller")
	// ErrAmountNotSpecified is returned when neither the invoice nor the
	// caller specifies an amount.
	ErrAmountNotSpecified = errors.New("amount not specified by invoice or caller")
	// ErrNotReady is returned by Send when the payment hasn't completed
	// a successful Prepare.
	ErrNotReady = errors.New("payment is not ready to send")
	// ErrManualInterventionRequired is returned by Send when the node's
	// outcome is ambiguous: the payment may or may not have gone
	// through, and the reservation is deliberately left Pending.
	ErrManualInterventionRequired = errors.New("payment outcome unknown, manual intervention required")
)

// Service creates, probes, and sends outbound payments.
type Service struct {
	DB           *store.DB
	Node         node.Node
	Users        *store.UserRepository
	Reservations *store.ReservationRepository
	Payments     *store.PaymentRepository
	Limits       limits.Config
	Now          func() time.Time
}

// NewService builds a payment Service.
func NewService(db *store.DB, n node.Node, users *store.UserRepository, reservations *store.ReservationRepository, payments *store.PaymentRepository, cfg limits.Config) *Service {
	return &Service{DB: db, Node: n, Users: users, Reservations: reservations, Payments: payments, Limits: cfg, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create parses the BOLT-11 invoice, resolves the amount to pay (exactly
// one of the invoice's own amount and an explicit override must be
// given), applies the daily cash limit, and persists a New payment.
func (s *Service) Create(ctx context.Context, grant auth.SpendGrant, raw string, explicitAmount *ledger.Msat) (*store.Payment, error) {
	invoice, err := s.Node.DecodeInvoice(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}

	amount, err := resolveAmount(invoice, explicitAmount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	dailyTotal, err := s.Payments.SumAmountSince(ctx, s.DB.Pool, string(grant.UserID), now.Add(-dailyWindowSpan))
	if err != nil {
		return nil, err
	}
	if err := limits.Check(s.Limits, limits.Request{Amount: amount, DailyTotal: ledger.Msat(dailyTotal)}); err != nil {
		return nil, err
	}

	p := &store.Payment{
		ID:          uuid.New().String(),
		UserID:      string(grant.UserID),
		TokenID:     grant.TokenID,
		AmountMsats: int64(amount),
		Invoice:     raw,
		Created:     now,
		Status:      store.PaymentStatusNewOrReady,
	}
	if err := s.Payments.Create(ctx, s.DB.Pool, p); err != nil {
		return nil, err
	}
	return p, nil
}

func resolveAmount(invoice node.ParsedInvoice, explicitAmount *ledger.Msat) (ledger.Msat, error) {
	if invoice.AmountMsats != nil && explicitAmount != nil {
		return 0, ErrAmountSpecifiedTwice
	}
	if invoice.AmountMsats == nil && explicitAmount == nil {
		return 0, ErrAmountNotSpecified
	}
	if invoice.AmountMsats != nil {
		return *invoice.AmountMsats, nil
	}
	return *explicitAmount, nil
}

// ListPayments returns a user's payments.
func (s *Service) ListPayments(ctx context.Context, userID ledger.UserID, r ledger.Range) ([]*store.Payment, error) {
	return s.Payments.ListByUserID(ctx, s.DB.Pool, string(userID), r.Limit, r.Offset)
}

// Prepare probes the route fee and reserves amount+fee against the
// caller's balance, advancing the payment to Ready. Run under
// ledger.RetryLoop by the caller.
func (s *Service) Prepare(ctx context.Context, paymentID string) error {
	tx, err := s.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	p, err := s.Payments.GetByID(ctx, tx, paymentID)
	if err != nil {
		return err
	}
	if p.ReservationID != nil {
		// Already prepared by a prior attempt.
		return tx.Commit(ctx)
	}

	invoice, err := s.Node.DecodeInvoice(ctx, p.Invoice)
	if err != nil {
		return fmt.Errorf("failed to decode invoice for payment %s: %w", p.ID, err)
	}

	amount := ledger.Msat(p.AmountMsats)
	fee, err := s.Node.ProbeFee(ctx, invoice, &amount)
	if err != nil {
		var perr *node.PaymentError
		if errors.As(err, &perr) && perr.Kind == node.NoRouteFound {
			// Surfaced as-is; no terminal status change, a future Prepare
			// attempt may succeed once routing conditions change.
			return err
		}
		if markErr := s.Payments.MarkFailed(ctx, tx, p.ID, reasonFromError(err), s.now()); markErr != nil {
			return markErr
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return commitErr
		}
		return err
	}

	balance, err := s.Users.LoadBalance(ctx, tx, p.UserID)
	if err != nil {
		return err
	}
	res, err := balance.Reserve(amount + fee)
	if err != nil {
		return err
	}

	if err := s.Reservations.Create(ctx, tx, res); err != nil {
		return err
	}
	if err := s.Payments.UpdateProbeResult(ctx, tx, p.ID, int64(fee), res.ID); err != nil {
		return err
	}
	if err := s.Users.UpdateBalanceCAS(ctx, tx, balance); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("payment prepared", zap.String("payment_id", p.ID), zap.Int64("fee_msats", int64(fee)))
	return nil
}

func reasonFromError(err error) string {
	var perr *node.PaymentError
	if errors.As(err, &perr) {
		return string(perr.Kind)
	}
	return string(node.Unknown)
}

// Send reloads the prepared payment, asserts it is Ready, and attempts
// the real send. Run under ledger.RetryLoop by the caller.
func (s *Service) Send(ctx context.Context, paymentID string) error {
	tx, err := s.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	p, err := s.Payments.GetByID(ctx, tx, paymentID)
	if err != nil {
		return err
	}
	if p.Status != store.PaymentStatusNewOrReady || p.ReservationID == nil || p.FeeMsats == nil {
		return ErrNotReady
	}

	res, err := s.Reservations.GetByID(ctx, tx, *p.ReservationID)
	if err != nil {
		return err
	}
	if res.Status != ledger.Pending {
		return fmt.Errorf("payment %s reservation %s is no longer pending (status=%s)", p.ID, res.ID, res.Status)
	}
	if res.ID != *p.ReservationID {
		return fmt.Errorf("payment %s reservation id mismatch: got %s want %s", p.ID, res.ID, *p.ReservationID)
	}

	invoice, err := s.Node.DecodeInvoice(ctx, p.Invoice)
	if err != nil {
		return fmt.Errorf("failed to decode invoice for payment %s: %w", p.ID, err)
	}

	balance, err := s.Users.LoadBalance(ctx, tx, p.UserID)
	if err != nil {
		return err
	}

	var amountOverride *ledger.Msat
	if invoice.AmountMsats == nil {
		amt := ledger.Msat(p.AmountMsats)
		amountOverride = &amt
	}

	now := s.now()
	_, sendErr := s.Node.PayInvoice(ctx, p.Invoice, amountOverride, ledger.Msat(*p.FeeMsats))
	if sendErr == nil {
		res.Debit()
		if err := s.Payments.MarkSucceeded(ctx, tx, p.ID, now); err != nil {
			return err
		}
		if err := s.Reservations.PersistTerminal(ctx, tx, res); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		logger.Info("payment succeeded", zap.String("payment_id", p.ID))
		return nil
	}

	var perr *node.PaymentError
	if errors.As(sendErr, &perr) && perr.Kind == node.Unknown {
		// Outcome ambiguous: leave the reservation Pending and surface for
		// manual review. No mutation to commit.
		return fmt.Errorf("%w: %v", ErrManualInterventionRequired, sendErr)
	}

	res.Refund(balance)
	if err := s.Payments.MarkFailed(ctx, tx, p.ID, reasonFromError(sendErr), now); err != nil {
		return err
	}
	if err := s.Reservations.PersistTerminal(ctx, tx, res); err != nil {
		return err
	}
	if err := s.Users.UpdateBalanceCAS(ctx, tx, balance); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("payment failed", zap.String("payment_id", p.ID), zap.String("reason", reasonFromError(sendErr)))
	return sendErr
}
