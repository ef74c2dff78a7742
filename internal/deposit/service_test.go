package deposit

import (
	"context"
	"errors"
	"testing"

	"lnledger/internal/auth"
	"lnledger/internal/node"

	"github.com/stretchr/testify/assert"
)

type stubNode struct {
	node.Node
	addrErr error
}

func (n stubNode) GenerateAddress(ctx context.Context) (string, error) {
	if n.addrErr != nil {
		return "", n.addrErr
	}
	return "bc1qstub", nil
}

func TestService_GenerateAddress_PropagatesNodeError(t *testing.T) {
	s := &Service{Node: stubNode{addrErr: errors.New("lnd unreachable")}}
	_, err := s.GenerateAddress(context.Background(), auth.ReceiveGrant{})
	assert.Error(t, err)
}
