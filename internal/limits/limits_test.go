package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"lnledger/internal/ledger"
)

func TestCheck_Boundaries(t *testing.T) {
	cfg := Config{Min: 100, Max: 1_000_000, Daily: 5_000_000}

	cases := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"below min", Request{Amount: 99}, ErrAmountTooLow},
		{"at min", Request{Amount: 100}, nil},
		{"at max", Request{Amount: 1_000_000}, nil},
		{"above max", Request{Amount: 1_000_001}, ErrAmountTooHigh},
		{"daily exact boundary accepted", Request{Amount: 1000, DailyTotal: 4_999_000}, nil},
		{"daily boundary plus one rejected", Request{Amount: 1001, DailyTotal: 4_999_000}, ErrDailyLimitExceeded},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Check(cfg, c.req)
			if c.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, c.wantErr)
			}
		})
	}
}

func TestCheck_TypesAreMsat(t *testing.T) {
	cfg := Config{Min: ledger.Msat(1), Max: ledger.Msat(10), Daily: ledger.Msat(100)}
	assert.NoError(t, Check(cfg, Request{Amount: 5}))
}
