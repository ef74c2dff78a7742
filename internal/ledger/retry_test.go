package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryLoop_SucceedsImmediately(t *testing.T) {
	calls := 0
	err := RetryLoop(func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryLoop_RetriesOnConflictThenSucceeds(t *testing.T) {
	restore := stubSleep()
	defer restore()

	calls := 0
	err := RetryLoop(func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("cas failed: %w", ErrConflict)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryLoop_GivesUpAfterMaxRetries(t *testing.T) {
	restore := stubSleep()
	defer restore()

	calls := 0
	err := RetryLoop(func() error {
		calls++
		return ErrConflict
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, MaxRetries, calls)
}

func TestRetryLoop_NonConflictErrorReturnsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := RetryLoop(func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func stubSleep() func() {
	orig := sleep
	sleep = func(time.Duration) {}
	return func() { sleep = orig }
}
