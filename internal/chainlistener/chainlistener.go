// Package chainlistener polls the node for on-chain outputs and fans them
// out to per-domain listeners.
package chainlistener

import (
	"context"
	"time"

	"lnledger/internal/node"
	"lnledger/internal/store"
	"lnledger/pkg/logger"

	"go.uber.org/zap"
)

// TxListener reacts to one on-chain output. Implementations must be
// idempotent: the same output may be delivered more than once.
type TxListener interface {
	Process(ctx context.Context, txOut node.TxOut) error
}

// ChainListener is a worker.Worker that advances chain_tip and drives
// Deposit/Withdrawal confirmation.
type ChainListener struct {
	Node       node.Node
	DB         *store.DB
	TxOuts     *store.TxOutRepository
	Listeners  []TxListener
	FirstBlock int64

	chainTip    int64
	initialized bool
}

// New builds a ChainListener. firstBlock is the configured floor used when
// the database has no prior tx_outs to seed chain_tip from.
func New(n node.Node, db *store.DB, txOuts *store.TxOutRepository, firstBlock int64, listeners ...TxListener) *ChainListener {
	return &ChainListener{
		Node:       n,
		DB:         db,
		TxOuts:     txOuts,
		Listeners:  listeners,
		FirstBlock: firstBlock,
	}
}

const blocksPerCycle = 10

// Run executes one polling cycle: query outputs in the next block window,
// fan them out, and advance chain_tip past the highest confirmed output
// seen. If no confirmed outputs came back the cycle stops without
// advancing; the worker runtime re-invokes Run after Timeout().
func (cl *ChainListener) Run() error {
	ctx := context.Background()

	if !cl.initialized {
		if err := cl.seedChainTip(ctx); err != nil {
			return err
		}
		cl.initialized = true
	}

	outs, err := cl.Node.GetTxOuts(ctx, node.GetTxOutsRequest{StartHeight: cl.chainTip, NumBlocks: blocksPerCycle})
	if err != nil {
		return err
	}

	for _, out := range outs {
		if err := cl.TxOuts.Upsert(ctx, cl.DB.Pool, out); err != nil {
			logger.Error("failed to persist tx_out", zap.String("tx_id", out.TxID), zap.Uint32("v_out", out.VOut), zap.Error(err))
		}
	}

	cl.chainTip = fanOutAndAdvance(ctx, cl.Listeners, outs, cl.chainTip)
	return nil
}

// fanOutAndAdvance delivers every output to every listener and returns the
// chain_tip that should follow: one past the highest confirmed output seen,
// or the unchanged tip if none of the outputs were confirmed.
func fanOutAndAdvance(ctx context.Context, listeners []TxListener, outs []node.TxOut, currentTip int64) int64 {
	maxConfirmedHeight := int64(-1)
	for _, out := range outs {
		for _, l := range listeners {
			if err := l.Process(ctx, out); err != nil {
				logger.Error("tx listener failed to process output",
					zap.String("tx_id", out.TxID), zap.Uint32("v_out", out.VOut), zap.Error(err))
			}
		}
		if out.Confirmed() && *out.BlockHeight > maxConfirmedHeight {
			maxConfirmedHeight = *out.BlockHeight
		}
	}
	if maxConfirmedHeight >= 0 {
		return maxConfirmedHeight + 1
	}
	return currentTip
}

func (cl *ChainListener) seedChainTip(ctx context.Context) error {
	max, err := cl.TxOuts.MaxConfirmedBlockHeight(ctx, cl.DB.Pool)
	if err != nil {
		return err
	}
	if max != nil {
		cl.chainTip = *max + 1
		return nil
	}
	cl.chainTip = cl.FirstBlock
	return nil
}

// Timeout is how long the worker runtime sleeps between cycles.
func (cl *ChainListener) Timeout() time.Duration { return 10 * time.Second }

// Name identifies this worker in logs.
func (cl *ChainListener) Name() string { return "chain_listener" }
