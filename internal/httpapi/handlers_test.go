package httpapi

import (
	"net/http/httptest"
	"testing"

	"lnledger/internal/ledger"

	"github.com/stretchr/testify/assert"
)

func TestParseRange_DefaultsLimitWhenAbsent(t *testing.T) {
	r := httptest.NewRequest("GET", "/v0/deposits", nil)
	rng, err := parseRange(r)
	assert.NoError(t, err)
	assert.Equal(t, ledger.DefaultLimit, rng.Limit)
	assert.Equal(t, 0, rng.Offset)
}

func TestParseRange_RejectsOutOfBoundLimit(t *testing.T) {
	for _, raw := range []string{"0", "251", "-1"} {
		r := httptest.NewRequest("GET", "/v0/deposits?limit="+raw, nil)
		_, err := parseRange(r)
		assert.ErrorIs(t, err, ledger.ErrInvalidLimit)
	}
}

func TestParseRange_RejectsNegativeOffset(t *testing.T) {
	r := httptest.NewRequest("GET", "/v0/deposits?offset=-5", nil)
	_, err := parseRange(r)
	assert.ErrorIs(t, err, ledger.ErrInvalidOffset)
}

func TestParseRange_AcceptsBoundaryValues(t *testing.T) {
	r := httptest.NewRequest("GET", "/v0/deposits?limit=1&offset=0", nil)
	rng, err := parseRange(r)
	assert.NoError(t, err)
	assert.Equal(t, 1, rng.Limit)

	r = httptest.NewRequest("GET", "/v0/deposits?limit=250", nil)
	rng, err = parseRange(r)
	assert.NoError(t, err)
	assert.Equal(t, 250, rng.Limit)
}

func TestClassify_MapsKnownSentinelsToStatusTags(t *testing.T) {
	cases := []struct {
		err     error
		wantTag string
	}{
		{ledger.ErrInvalidLimit, "INVALID_LIMIT"},
		{ledger.ErrInvalidOffset, "INVALID_OFFSET"},
		{ledger.ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	}
	for _, c := range cases {
		_, tag, _ := classify(c.err)
		assert.Equal(t, c.wantTag, tag)
	}
}
