package ledger

import (
	"errors"
	"time"
)

// ErrConflict is the marker wrapped by persistence operations whose
// optimistic-concurrency check failed (a balance CAS that matched zero
// rows, or a reservation upsert whose status guard didn't fire). RetryLoop
// inspects the error chain for this marker, not any specific wrapping.
var ErrConflict = errors.New("concurrency conflict")

// MaxRetries bounds RetryLoop: f is called at most this many times.
const MaxRetries = 10

// sleep is overridable by tests so the linear backoff doesn't slow the
// suite down.
var sleep = time.Sleep

// RetryLoop invokes f up to MaxRetries times. If f returns an error whose
// chain contains ErrConflict, RetryLoop sleeps i seconds before retry i
// (i = 1..MaxRetries-1, linear backoff) and calls f again. f must reload
// every entity it touches on each call — RetryLoop does not cache
// anything between iterations, and reusing state across calls defeats
// the compare-and-set discipline the whole system depends on. Any
// non-conflict error is returned immediately. If the last attempt still
// conflicts, that error is returned to the caller.
func RetryLoop(f func() error) error {
	var err error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		err = f()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt < MaxRetries-1 {
			sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	return err
}
