package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalance_ReserveAndCredit(t *testing.T) {
	b := LoadBalance("user-1", 1000)
	assert.False(t, b.Changed())

	res, err := b.Reserve(400)
	require.NoError(t, err)
	assert.Equal(t, Msat(600), b.Amount)
	assert.Equal(t, Pending, res.Status)
	assert.True(t, b.Changed())

	b.Credit(100)
	assert.Equal(t, Msat(700), b.Amount)
}

func TestBalance_ReserveInsufficientBalance(t *testing.T) {
	b := LoadBalance("user-1", 100)

	res, err := b.Reserve(101)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, Msat(100), b.Amount, "balance must be untouched on failure")
}

func TestReservation_DebitTerminal(t *testing.T) {
	b := LoadBalance("user-1", 1000)
	res, err := b.Reserve(300)
	require.NoError(t, err)

	res.Debit()
	assert.Equal(t, Debited, res.Status)

	assert.Panics(t, func() { res.Debit() }, "debiting a non-pending reservation is a programmer bug")
}

func TestReservation_RefundCreditsBalanceBack(t *testing.T) {
	b := LoadBalance("user-1", 1000)
	res, err := b.Reserve(300)
	require.NoError(t, err)
	assert.Equal(t, Msat(700), b.Amount)

	res.Refund(b)
	assert.Equal(t, Refunded, res.Status)
	assert.Equal(t, Msat(1000), b.Amount)

	assert.Panics(t, func() { res.Refund(b) })
}

func TestReservation_RefundUserMismatchPanics(t *testing.T) {
	b1 := LoadBalance("user-1", 1000)
	res, err := b1.Reserve(100)
	require.NoError(t, err)

	other := LoadBalance("user-2", 1000)
	assert.Panics(t, func() { res.Refund(other) })
}

func TestSatMsatConversion(t *testing.T) {
	assert.Equal(t, Msat(1000), Sat(1).Msats())
	assert.Equal(t, Sat(5), Msat(5999).Sats())
}

func TestNewRange(t *testing.T) {
	r, err := NewRange(100, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, r.Limit)

	_, err = NewRange(0, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = NewRange(251, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = NewRange(100, -1)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}
