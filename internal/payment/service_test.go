package payment

import (
	"context"
	"testing"

	"lnledger/internal/ledger"
	"lnledger/internal/node"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAmount_RejectsBothSpecified(t *testing.T) {
	invAmount := ledger.Msat(1000)
	explicit := ledger.Msat(2000)
	_, err := resolveAmount(node.ParsedInvoice{AmountMsats: &invAmount}, &explicit)
	assert.ErrorIs(t, err, ErrAmountSpecifiedTwice)
}

func TestResolveAmount_RejectsNeitherSpecified(t *testing.T) {
	_, err := resolveAmount(node.ParsedInvoice{}, nil)
	assert.ErrorIs(t, err, ErrAmountNotSpecified)
}

func TestResolveAmount_UsesInvoiceAmountWhenPresent(t *testing.T) {
	invAmount := ledger.Msat(1500)
	amt, err := resolveAmount(node.ParsedInvoice{AmountMsats: &invAmount}, nil)
	require.NoError(t, err)
	assert.Equal(t, invAmount, amt)
}

func TestResolveAmount_UsesExplicitAmountWhenInvoiceHasNone(t *testing.T) {
	explicit := ledger.Msat(2500)
	amt, err := resolveAmount(node.ParsedInvoice{}, &explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, amt)
}

func TestReasonFromError_MapsPaymentErrorKind(t *testing.T) {
	assert.Equal(t, "NO_ROUTE_FOUND", reasonFromError(&node.PaymentError{Kind: node.NoRouteFound}))
	assert.Equal(t, "UNKNOWN", reasonFromError(context.DeadlineExceeded))
}
