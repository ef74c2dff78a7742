package chainlistener

import (
	"context"
	"testing"

	"lnledger/internal/node"

	"github.com/stretchr/testify/assert"
)

type recordingListener struct {
	seen []node.TxOut
}

func (r *recordingListener) Process(ctx context.Context, txOut node.TxOut) error {
	r.seen = append(r.seen, txOut)
	return nil
}

func height(h int64) *int64 { return &h }

func TestFanOutAndAdvance_AdvancesTipPastHighestConfirmed(t *testing.T) {
	listener := &recordingListener{}
	confirmed := node.TxOut{TxID: "a", VOut: 0, BlockHeight: height(105), Address: "addr1", AmountSats: 1000}
	unconfirmed := node.TxOut{TxID: "b", VOut: 0, BlockHeight: nil, Address: "addr2", AmountSats: 2000}

	newTip := fanOutAndAdvance(context.Background(), []TxListener{listener}, []node.TxOut{confirmed, unconfirmed}, 100)

	assert.Equal(t, int64(106), newTip)
	assert.Len(t, listener.seen, 2)
}

func TestFanOutAndAdvance_StopsCycleWhenNoConfirmedOutputs(t *testing.T) {
	listener := &recordingListener{}
	unconfirmed := node.TxOut{TxID: "b", VOut: 0, BlockHeight: nil, Address: "addr2", AmountSats: 2000}

	newTip := fanOutAndAdvance(context.Background(), []TxListener{listener}, []node.TxOut{unconfirmed}, 100)

	assert.Equal(t, int64(100), newTip)
}

func TestFanOutAndAdvance_NoOutputsIsNoOp(t *testing.T) {
	newTip := fanOutAndAdvance(context.Background(), nil, nil, 250)
	assert.Equal(t, int64(250), newTip)
}
