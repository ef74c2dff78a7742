package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInsufficientBalance is returned by Balance.Reserve when the requested
// amount exceeds the available balance. No reservation is created.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Balance is the in-memory working copy of a user's balance row. It is
// loaded inside a transaction, mutated via Credit/Reserve, and persisted
// with a compare-and-set against OriginalAmount. It must never be cached
// across retry iterations or transactions — reload it fresh every time.
type Balance struct {
	UserID         UserID
	originalAmount Msat
	Amount         Msat
}

// LoadBalance constructs a Balance from a persisted row, capturing the
// original amount for the later compare-and-set.
func LoadBalance(userID UserID, amount Msat) *Balance {
	return &Balance{UserID: userID, originalAmount: amount, Amount: amount}
}

// OriginalAmount returns the amount captured at load time, used by the
// store layer to build the CAS WHERE clause.
func (b *Balance) OriginalAmount() Msat {
	return b.originalAmount
}

// Changed reports whether Amount has diverged from the loaded snapshot.
// A persistence layer should treat an unchanged balance as a no-op write.
func (b *Balance) Changed() bool {
	return b.Amount != b.originalAmount
}

// Credit adds m to the balance. m must be non-negative; crediting a
// negative amount is a programmer bug.
func (b *Balance) Credit(m Msat) {
	if m < 0 {
		panic(fmt.Sprintf("ledger: credit of negative amount %d", m))
	}
	b.Amount += m
}

// Reserve subtracts m from the balance and returns a new Pending
// Reservation for it, or ErrInsufficientBalance if m exceeds the
// available amount. The balance is left unchanged on failure.
func (b *Balance) Reserve(m Msat) (*Reservation, error) {
	if m < 0 {
		panic(fmt.Sprintf("ledger: reserve of negative amount %d", m))
	}
	if m > b.Amount {
		return nil, ErrInsufficientBalance
	}
	b.Amount -= m
	return &Reservation{
		ID:      uuid.New().String(),
		UserID:  b.UserID,
		Amount:  m,
		Status:  Pending,
		Created: time.Now().UTC(),
	}, nil
}

// ReservationStatus is the lifecycle state of a Reservation.
type ReservationStatus string

const (
	Pending  ReservationStatus = "pending"
	Debited  ReservationStatus = "debited"
	Refunded ReservationStatus = "refunded"
)

// Reservation is a two-phase debit record: it removes funds from a
// balance immediately, then resolves to Debited (the irrevocable action
// succeeded) or Refunded (it failed recoverably). Either terminal
// transition from Pending is final.
type Reservation struct {
	ID      string
	UserID  UserID
	Amount  Msat
	Status  ReservationStatus
	Created time.Time
}

// Debit marks funds as spent for good. Calling Debit on a non-Pending
// reservation is a programmer bug — it indicates the caller lost track
// of the reservation's lifecycle — and is fatal.
func (r *Reservation) Debit() {
	if r.Status != Pending {
		panic(fmt.Sprintf("ledger: debit of non-pending reservation %s (status=%s)", r.ID, r.Status))
	}
	r.Status = Debited
}

// Refund credits the reservation's amount back to balance and marks the
// reservation Refunded. balance must belong to the same user as the
// reservation. Calling Refund on a non-Pending reservation is fatal.
func (r *Reservation) Refund(balance *Balance) {
	if r.Status != Pending {
		panic(fmt.Sprintf("ledger: refund of non-pending reservation %s (status=%s)", r.ID, r.Status))
	}
	if balance.UserID != r.UserID {
		panic(fmt.Sprintf("ledger: refund user mismatch: reservation=%s balance=%s", r.UserID, balance.UserID))
	}
	balance.Credit(r.Amount)
	r.Status = Refunded
}
