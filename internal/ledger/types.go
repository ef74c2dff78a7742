// Package ledger implements the balance model, reservation protocol, and
// optimistic-concurrency retry discipline that every flow (deposit,
// withdrawal, invoice, payment) is built on.
package ledger

import "fmt"

// Msat is an amount of millisatoshis. 1 sat = 1000 msat.
type Msat int64

// Sat is an amount of satoshis.
type Sat int64

// Msats converts a satoshi amount to millisatoshis.
func (s Sat) Msats() Msat {
	return Msat(s) * 1000
}

// Sats truncates a millisatoshi amount down to whole satoshis.
func (m Msat) Sats() Sat {
	return Sat(m / 1000)
}

func (m Msat) String() string {
	return fmt.Sprintf("%d msat", int64(m))
}

func (s Sat) String() string {
	return fmt.Sprintf("%d sat", int64(s))
}

// UserID identifies a user row. Always a UUID string.
type UserID string

// TokenID identifies the AuthToken that authorized an operation.
type TokenID string

// Range is an inclusive-exclusive query range used by listing operations.
type Range struct {
	Limit  int
	Offset int
}

// DefaultLimit and bounds enforced by the HTTP surface and mirrored
// here so core callers share the same validation.
const (
	DefaultLimit = 100
	MinLimit     = 1
	MaxLimit     = 250
)

// ErrInvalidLimit and ErrInvalidOffset surface as INVALID_LIMIT / INVALID_OFFSET
// at the HTTP boundary.
var (
	ErrInvalidLimit  = fmt.Errorf("limit must be between %d and %d", MinLimit, MaxLimit)
	ErrInvalidOffset = fmt.Errorf("offset must be >= 0")
)

// NewRange validates and builds a Range. It applies no default: a limit
// outside [MinLimit, MaxLimit], including 0, returns ErrInvalidLimit, so a
// caller whose request left the limit unset passes DefaultLimit itself.
func NewRange(limit, offset int) (Range, error) {
	if limit < MinLimit || limit > MaxLimit {
		return Range{}, ErrInvalidLimit
	}
	if offset < 0 {
		return Range{}, ErrInvalidOffset
	}
	return Range{Limit: limit, Offset: offset}, nil
}
