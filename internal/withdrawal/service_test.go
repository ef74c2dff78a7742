package withdrawal

import (
	"context"
	"testing"

	"lnledger/internal/auth"
	"lnledger/internal/ledger"
	"lnledger/internal/node"

	"github.com/stretchr/testify/assert"
)

type stubNode struct {
	node.Node
}

func (stubNode) EstimateFee(ctx context.Context, amountSats ledger.Sat, address string) (ledger.Sat, error) {
	panic("EstimateFee should not be called for a rejected amount")
}

func TestService_Start_RejectsNonPositiveAmount(t *testing.T) {
	s := &Service{Node: stubNode{}}

	_, err := s.Start(context.Background(), auth.SpendGrant{UserID: ledger.UserID("u1")}, "bc1qexample", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.Start(context.Background(), auth.SpendGrant{UserID: ledger.UserID("u1")}, "bc1qexample", -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestService_Start_RejectsAddressForWrongNetwork(t *testing.T) {
	s := &Service{Node: stubNode{}, Params: NetworkParams("mainnet")}

	// A valid testnet address decoded against mainnet params.
	_, err := s.Start(context.Background(), auth.SpendGrant{UserID: ledger.UserID("u1")}, "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", 1000)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestService_Start_RejectsGarbageAddress(t *testing.T) {
	s := &Service{Node: stubNode{}, Params: NetworkParams("mainnet")}

	_, err := s.Start(context.Background(), auth.SpendGrant{UserID: ledger.UserID("u1")}, "not-a-bitcoin-address", 1000)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestNetworkParams_DefaultsToMainnet(t *testing.T) {
	assert.Equal(t, "mainnet", NetworkParams("").Name)
	assert.Equal(t, "mainnet", NetworkParams("bogus").Name)
	assert.Equal(t, "testnet3", NetworkParams("testnet").Name)
	assert.Equal(t, "regtest", NetworkParams("regtest").Name)
	assert.Equal(t, "signet", NetworkParams("signet").Name)
}
