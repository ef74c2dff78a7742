// Package withdrawal implements the on-chain debit lifecycle: reservation
// at request time, a broadcaster worker that serializes the send, and
// chain-listener-driven confirmation.
package withdrawal

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

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidAmount is returned by Start for a non-positive amount.
var ErrInvalidAmount = errors.New("withdrawal amount must be positive")

// ErrInvalidAddress is returned by Start when address does not decode as a
// valid address for the configured network.
var ErrInvalidAddress = errors.New("withdrawal address is not valid for the configured network")

// NetworkParams maps the lnd.network config value to chaincfg.Params,
// defaulting to mainnet for an unrecognized or empty value.
func NetworkParams(network string) *chaincfg.Params {
	switch network {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	case "signet":
		return &chaincfg.SigNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// Service starts withdrawals: estimate the fee, reserve amount+fee, and
// persist the Withdrawal row with no tx_out yet.
type Service struct {
	DB           *store.DB
	Node         node.Node
	Users        *store.UserRepository
	Reservations *store.ReservationRepository
	Withdrawals  *store.WithdrawalRepository
	Params       *chaincfg.Params
}

// NewService builds a withdrawal Service. params governs which network
// addresses passed to Start must decode for; it is typically
// withdrawal.NetworkParams(cfg.LND.Network).
func NewService(db *store.DB, n node.Node, users *store.UserRepository, reservations *store.ReservationRepository, withdrawals *store.WithdrawalRepository, params *chaincfg.Params) *Service {
	return &Service{DB: db, Node: n, Users: users, Reservations: reservations, Withdrawals: withdrawals, Params: params}
}

// Start reserves amount+fee against the caller's balance and records a
// Withdrawal awaiting broadcast. The fee estimate is fetched once, outside
// the retry loop — it doesn't depend on balance state and a stale estimate
// a few seconds old is an acceptable approximation.
func (s *Service) Start(ctx context.Context, grant auth.SpendGrant, address string, amountSats ledger.Sat) (*store.Withdrawal, error) {
	if amountSats <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := btcutil.DecodeAddress(address, s.Params); err != nil {
		return nil, ErrInvalidAddress
	}

	feeSats, err := s.Node.EstimateFee(ctx, amountSats, address)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate withdrawal fee: %w", err)
	}

	var w *store.Withdrawal
	err = ledger.RetryLoop(func() error {
		w = nil
		tx, err := s.DB.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		row, err := s.Users.GetByID(ctx, tx, string(grant.UserID))
		if err != nil {
			return err
		}
		balance := ledger.LoadBalance(grant.UserID, ledger.Msat(row.BalanceMsats))

		res, err := balance.Reserve(amountSats.Msats() + feeSats.Msats())
		if err != nil {
			return err
		}

		if err := s.Reservations.Create(ctx, tx, res); err != nil {
			return err
		}

		withdrawal := &store.Withdrawal{
			ID:            uuid.New().String(),
			UserID:        string(grant.UserID),
			TokenID:       grant.TokenID,
			ReservationID: res.ID,
			Address:       address,
			FeeSats:       int64(feeSats),
			AmountSats:    int64(amountSats),
			Created:       time.Now().UTC(),
		}
		if err := s.Withdrawals.Create(ctx, tx, withdrawal); err != nil {
			return err
		}
		if err := s.Users.UpdateBalanceCAS(ctx, tx, balance); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		w = withdrawal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListWithdrawals returns a user's withdrawals.
func (s *Service) ListWithdrawals(ctx context.Context, userID ledger.UserID, r ledger.Range) ([]*store.Withdrawal, error) {
	return s.Withdrawals.ListByUserID(ctx, s.DB.Pool, string(userID), r.Limit, r.Offset)
}

// Broadcaster is the worker.Worker that sends every unbroadcast withdrawal
// on-chain, one at a time, with crash-recovery via label lookup.
type Broadcaster struct {
	DB          *store.DB
	Node        node.Node
	Withdrawals *store.WithdrawalRepository
}

// NewBroadcaster builds a Broadcaster.
func NewBroadcaster(db *store.DB, n node.Node, withdrawals *store.WithdrawalRepository) *Broadcaster {
	return &Broadcaster{DB: db, Node: n, Withdrawals: withdrawals}
}

// Run broadcasts every withdrawal still awaiting a tx_out.
func (b *Broadcaster) Run() error {
	ctx := context.Background()

	pending, err := b.Withdrawals.ListUnbroadcast(ctx, b.DB.Pool)
	if err != nil {
		return fmt.Errorf("failed to list unbroadcast withdrawals: %w", err)
	}

	for _, w := range pending {
		if err := b.broadcastOne(ctx, w.ID); err != nil {
			logger.Error("failed to broadcast withdrawal", zap.String("withdrawal_id", w.ID), zap.Error(err))
		}
	}
	return nil
}

func (b *Broadcaster) broadcastOne(ctx context.Context, id string) error {
	tx, err := b.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	w, err := b.Withdrawals.LockForBroadcast(ctx, tx, id)
	if err != nil {
		return err
	}
	if w.TxID != nil {
		// Another cycle (or process, serialized by the row lock) already
		// broadcast this withdrawal.
		return tx.Commit(ctx)
	}

	out, err := b.Node.GetTx(ctx, w.Address, ledger.Sat(w.AmountSats), w.ID)
	if err != nil {
		return fmt.Errorf("failed to search for prior broadcast of withdrawal %s: %w", w.ID, err)
	}
	if out == nil {
		sent, err := b.Node.SendOnChain(ctx, w.Address, ledger.Sat(w.AmountSats), w.ID)
		if err != nil {
			return fmt.Errorf("failed to send withdrawal %s on-chain: %w", w.ID, err)
		}
		out = &sent
	}

	// withdrawals.(tx_id, v_out) references tx_outs, so the output row
	// must exist before it is recorded on the withdrawal.
	if err := store.NewTxOutRepository(b.DB).Upsert(ctx, tx, *out); err != nil {
		return err
	}
	if err := b.Withdrawals.RecordBroadcast(ctx, tx, w.ID, out.TxID, int32(out.VOut)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("withdrawal broadcast", zap.String("withdrawal_id", w.ID), zap.String("tx_id", out.TxID), zap.Uint32("v_out", out.VOut))
	return nil
}

// Timeout is how long the runtime sleeps between broadcast cycles.
func (b *Broadcaster) Timeout() time.Duration { return 15 * time.Second }

// Name identifies this worker in logs.
func (b *Broadcaster) Name() string { return "withdrawal_broadcaster" }

// TxListener implements chainlistener.TxListener: it confirms a
// Withdrawal and debits its Reservation once the broadcast output is
// mined.
type TxListener struct {
	DB           *store.DB
	Reservations *store.ReservationRepository
	Withdrawals  *store.WithdrawalRepository
}

// NewTxListener builds a withdrawal TxListener.
func NewTxListener(db *store.DB, reservations *store.ReservationRepository, withdrawals *store.WithdrawalRepository) *TxListener {
	return &TxListener{DB: db, Reservations: reservations, Withdrawals: withdrawals}
}

// Process handles one on-chain output delivered by the chain listener.
// Outputs that don't back a known withdrawal, or that aren't confirmed
// yet, are ignored.
func (l *TxListener) Process(ctx context.Context, txOut node.TxOut) error {
	if !txOut.Confirmed() {
		return nil
	}

	w, err := l.Withdrawals.GetByTxOut(ctx, l.DB.Pool, txOut.TxID, int32(txOut.VOut))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if w.Confirmed != nil {
		return nil
	}

	return ledger.RetryLoop(func() error {
		return l.confirmAndDebit(ctx, w.ID)
	})
}

func (l *TxListener) confirmAndDebit(ctx context.Context, withdrawalID string) error {
	tx, err := l.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	w, err := l.Withdrawals.GetByID(ctx, tx, withdrawalID)
	if err != nil {
		return err
	}
	if w.TxID == nil {
		return fmt.Errorf("withdrawal %s confirmed before being broadcast", w.ID)
	}
	if w.Confirmed != nil {
		// Re-processing the same confirmed output is a no-op.
		return tx.Commit(ctx)
	}

	res, err := l.Reservations.GetByID(ctx, tx, w.ReservationID)
	if err != nil {
		return err
	}
	if res.Status != ledger.Pending {
		return fmt.Errorf("withdrawal %s reservation %s is no longer pending (status=%s)", w.ID, res.ID, res.Status)
	}
	if res.ID != w.ReservationID {
		return fmt.Errorf("withdrawal %s reservation id mismatch: got %s want %s", w.ID, res.ID, w.ReservationID)
	}

	res.Debit()

	now := time.Now().UTC()
	if err := l.Withdrawals.Confirm(ctx, tx, w.ID, now); err != nil {
		return err
	}
	if err := l.Reservations.PersistTerminal(ctx, tx, res); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("withdrawal confirmed and debited", zap.String("withdrawal_id", w.ID), zap.String("reservation_id", res.ID))
	return nil
}
