package store

import (
	"errors"
	"time"

	"lnledger/internal/ledger"
)

var (
	ErrNotFound = errors.New("store: not found")
)

// User is the persisted row backing ledger.UserID; balance_msats is read
// here but only ever written through UpdateBalanceCAS.
type User struct {
	ID           string
	Email        string
	BalanceMsats int64
	Created      time.Time
}

// AuthToken is the persisted row behind an auth.Token.
type AuthToken struct {
	ID         string
	UserID     string
	Name       string
	TokenHash  string
	CanSpend   bool
	CanReceive bool
	CanRead    bool
	Created    time.Time
	Disabled   *time.Time
}

// Reservation is the persisted row behind a ledger.Reservation.
type Reservation struct {
	ID          string
	UserID      string
	AmountMsats int64
	Status      int // 0=Pending 1=Debited 2=Refunded, see reservationStatusCode/reservationStatusFromCode
	Created     time.Time
}

const (
	reservationPending  = 0
	reservationDebited  = 1
	reservationRefunded = 2
)

func reservationStatusCode(s ledger.ReservationStatus) int {
	switch s {
	case ledger.Debited:
		return reservationDebited
	case ledger.Refunded:
		return reservationRefunded
	default:
		return reservationPending
	}
}

func reservationStatusFromCode(c int) ledger.ReservationStatus {
	switch c {
	case reservationDebited:
		return ledger.Debited
	case reservationRefunded:
		return ledger.Refunded
	default:
		return ledger.Pending
	}
}

// TxOut is the persisted row for an on-chain output.
type TxOut struct {
	TxID        string
	VOut        int32
	BlockHeight *int64
	Address     string
	AmountSats  int64
}

// DepositAddress is a generated address known to belong to a user/token.
type DepositAddress struct {
	UserID  string
	TokenID string
	Address string
	Created time.Time
}

// Deposit is the persisted row tracking one on-chain credit.
type Deposit struct {
	ID        string
	UserID    string
	TxID      string
	VOut      int32
	Address   string
	Created   time.Time
	Confirmed *time.Time
}

// Withdrawal is the persisted row tracking one on-chain debit.
type Withdrawal struct {
	ID            string
	UserID        string
	TokenID       string
	ReservationID string
	Address       string
	FeeSats       int64
	AmountSats    int64
	TxID          *string
	VOut          *int32
	Created       time.Time
	Confirmed     *time.Time
}

// Payment status codes: New and Ready share code 0.
const (
	PaymentStatusNewOrReady = 0
	PaymentStatusSucceeded  = 2
	PaymentStatusFailed     = 3
)

// Payment is the persisted row tracking one outbound Lightning payment.
type Payment struct {
	ID               string
	UserID           string
	TokenID          string
	ReservationID    *string
	AmountMsats      int64
	FeeMsats         *int64
	Invoice          string
	Created          time.Time
	Status           int
	FailureReason    *string
	FailureTimestamp *time.Time
	SuccessTimestamp *time.Time
}

// Invoice is the persisted row tracking one inbound Lightning invoice.
type Invoice struct {
	ID                  string
	UserID              string
	TokenID             string
	AmountMsats         int64
	Memo                *string
	Raw                 string
	Created             time.Time
	Expiration          time.Time
	SettlementAmount    *int64
	SettlementTimestamp *time.Time
	SettleIndex         *int64
}

// IsSettled reports whether this invoice has already been completed.
func (i Invoice) IsSettled() bool {
	return i.SettlementTimestamp != nil
}
