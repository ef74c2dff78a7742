// Package limits implements the cash-limit check applied identically
// to invoice creation and payment creation, each with its own
// independent configuration.
package limits

import (
	"errors"

	"lnledger/internal/ledger"
)

// Config is one set of min/max/daily bounds, in msat. Loaded from
// limits.payment_{min,max,daily}_sats or limits.invoice_{min,max,daily}_sats.
type Config struct {
	Min   ledger.Msat
	Max   ledger.Msat
	Daily ledger.Msat
}

var (
	ErrAmountTooLow       = errors.New("amount too low")
	ErrAmountTooHigh      = errors.New("amount too high")
	ErrDailyLimitExceeded = errors.New("daily limit exceeded")
)

// Request is the pair of values every limit check needs: the amount of
// this operation and the sum already accrued today for the same user
// and operation kind.
type Request struct {
	Amount     ledger.Msat
	DailyTotal ledger.Msat
}

// Check enforces Config against req, returning the first violated rule.
// daily_total + amount == daily is accepted; daily_total + amount > daily
// is rejected.
func Check(cfg Config, req Request) error {
	if req.Amount < cfg.Min {
		return ErrAmountTooLow
	}
	if req.Amount > cfg.Max {
		return ErrAmountTooHigh
	}
	if req.DailyTotal+req.Amount > cfg.Daily {
		return ErrDailyLimitExceeded
	}
	return nil
}
