package invoice

import (
	"context"
	"strings"
	"testing"
	"time"

	"lnledger/internal/auth"
	"lnledger/internal/node"

	"github.com/stretchr/testify/assert"
)

type stubNode struct {
	node.Node
}

func TestService_Create_RejectsNonPositiveAmount(t *testing.T) {
	s := &Service{Node: stubNode{}}
	_, err := s.Create(context.Background(), auth.ReceiveGrant{}, 0, "memo", time.Hour)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestService_Create_RejectsOversizedMemo(t *testing.T) {
	s := &Service{Node: stubNode{}}
	tooLong := strings.Repeat("a", maxMemoBytes+1)
	_, err := s.Create(context.Background(), auth.ReceiveGrant{}, 1000, tooLong, time.Hour)
	assert.ErrorIs(t, err, ErrMemoTooLong)
}

func TestService_Create_RejectsInvalidExpiry(t *testing.T) {
	s := &Service{Node: stubNode{}}

	_, err := s.Create(context.Background(), auth.ReceiveGrant{}, 1000, "memo", 0)
	assert.ErrorIs(t, err, ErrInvalidExpiry)

	_, err = s.Create(context.Background(), auth.ReceiveGrant{}, 1000, "memo", (maxExpirySecs+1)*time.Second)
	assert.ErrorIs(t, err, ErrInvalidExpiry)
}

func TestStreamWorker_Handle_IgnoresZeroSettleDate(t *testing.T) {
	w := &StreamWorker{}
	// A zero SettleDate must short-circuit before touching Invoices/DB/Svc,
	// all of which are nil here — a panic means the guard was skipped.
	w.handle(context.Background(), node.SettledInvoice{Raw: "lnbc1..."})
}
