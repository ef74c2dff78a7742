// Package deposit implements the address-generation and confirm-and-credit
// lifecycle for on-chain deposits.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lnledger/internal/auth"
	"lnledger/internal/ledger"
	"lnledger/internal/node"
	"lnledger/internal/store"
	"lnledger/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service mints deposit addresses and lists a user's deposits.
type Service struct {
	DB        *store.DB
	Node      node.Node
	Addresses *store.DepositAddressRepository
	Deposits  *store.DepositRepository
}

// NewService builds a deposit Service.
func NewService(db *store.DB, n node.Node, addresses *store.DepositAddressRepository, deposits *store.DepositRepository) *Service {
	return &Service{DB: db, Node: n, Addresses: addresses, Deposits: deposits}
}

// GenerateAddress derives a fresh deposit address from the node and records
// it as belonging to the grant's user/token.
func (s *Service) GenerateAddress(ctx context.Context, grant auth.ReceiveGrant) (string, error) {
	address, err := s.Node.GenerateAddress(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to generate deposit address: %w", err)
	}

	rec := &store.DepositAddress{
		UserID:  string(grant.UserID),
		TokenID: grant.TokenID,
		Address: address,
		Created: time.Now().UTC(),
	}
	if err := s.Addresses.Create(ctx, s.DB.Pool, rec); err != nil {
		return "", fmt.Errorf("failed to record deposit address: %w", err)
	}
	return address, nil
}

// ListAddresses returns a user's generated addresses.
func (s *Service) ListAddresses(ctx context.Context, userID ledger.UserID, r ledger.Range) ([]*store.DepositAddress, error) {
	return s.Addresses.ListByUserID(ctx, s.DB.Pool, string(userID), r.Limit, r.Offset)
}

// ListDeposits returns a user's deposits.
func (s *Service) ListDeposits(ctx context.Context, userID ledger.UserID, r ledger.Range) ([]*store.Deposit, error) {
	return s.Deposits.ListByUserID(ctx, s.DB.Pool, string(userID), r.Limit, r.Offset)
}

// TxListener implements chainlistener.TxListener: it watches for outputs
// paying a known deposit address, records them as Unconfirmed deposits, and
// credits the balance exactly once on confirmation.
type TxListener struct {
	DB        *store.DB
	Users     *store.UserRepository
	Addresses *store.DepositAddressRepository
	Deposits  *store.DepositRepository
}

// NewTxListener builds a deposit TxListener.
func NewTxListener(db *store.DB, users *store.UserRepository, addresses *store.DepositAddressRepository, deposits *store.DepositRepository) *TxListener {
	return &TxListener{DB: db, Users: users, Addresses: addresses, Deposits: deposits}
}

// Process handles one on-chain output delivered by the chain listener.
// Outputs on unknown addresses are ignored; known outputs create a deposit
// row on first sight and credit the balance on confirmation.
func (l *TxListener) Process(ctx context.Context, txOut node.TxOut) error {
	addr, err := l.Addresses.GetByAddress(ctx, l.DB.Pool, txOut.Address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	existing, err := l.ensureDeposit(ctx, addr, txOut)
	if err != nil {
		return err
	}

	if !txOut.Confirmed() || existing.Confirmed != nil {
		return nil
	}

	return ledger.RetryLoop(func() error {
		return l.confirmAndCredit(ctx, existing.ID, txOut)
	})
}

func (l *TxListener) ensureDeposit(ctx context.Context, addr *store.DepositAddress, txOut node.TxOut) (*store.Deposit, error) {
	existing, err := l.Deposits.GetByTxOut(ctx, l.DB.Pool, txOut.TxID, int32(txOut.VOut))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	dep := &store.Deposit{
		ID:      uuid.New().String(),
		UserID:  addr.UserID,
		TxID:    txOut.TxID,
		VOut:    int32(txOut.VOut),
		Address: txOut.Address,
		Created: time.Now().UTC(),
	}
	if err := l.Deposits.Create(ctx, l.DB.Pool, dep); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			// Another listener cycle (or process) won the race to create
			// this deposit first; load what it wrote.
			return l.Deposits.GetByTxOut(ctx, l.DB.Pool, txOut.TxID, int32(txOut.VOut))
		}
		return nil, err
	}
	return dep, nil
}

func (l *TxListener) confirmAndCredit(ctx context.Context, depositID string, txOut node.TxOut) error {
	tx, err := l.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	dep, err := l.Deposits.GetByID(ctx, tx, depositID)
	if err != nil {
		return err
	}
	if dep.Confirmed != nil {
		// Re-processing the same confirmed output is a no-op.
		return tx.Commit(ctx)
	}

	balance, err := l.Users.LoadBalance(ctx, tx, dep.UserID)
	if err != nil {
		return err
	}
	balance.Credit(txOut.AmountSats.Msats())

	now := time.Now().UTC()
	if err := l.Deposits.Confirm(ctx, tx, depositID, now); err != nil {
		return err
	}
	if err := l.Users.UpdateBalanceCAS(ctx, tx, balance); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("deposit confirmed and credited",
		zap.String("deposit_id", depositID), zap.String("user_id", dep.UserID), zap.Int64("amount_msats", int64(txOut.AmountSats.Msats())))
	return nil
}
