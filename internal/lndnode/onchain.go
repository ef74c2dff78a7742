package lndnode

import (
	"context"
	"errors"
	"fmt"

	"lnledger/internal/ledger"
	"lnledger/internal/node"

	"github.com/lightningnetwork/lnd/lnrpc"
)

// GenerateAddress derives a fresh native SegWit (bech32) deposit address
// from LND's HD wallet.
func (c *Client) GenerateAddress(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout())
	defer cancel()

	resp, err := c.ln.NewAddress(ctx, &lnrpc.NewAddressRequest{
		Type: lnrpc.AddressType_WITNESS_PUBKEY_HASH,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate new address: %w", err)
	}
	return resp.Address, nil
}

// GetTxOuts returns confirmed outputs in [start, start+numBlocks) and, when
// the requested range extends past the node's current chain tip, also
// returns unconfirmed outputs.
func (c *Client) GetTxOuts(ctx context.Context, req node.GetTxOutsRequest) ([]node.TxOut, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout())
	defer cancel()

	info, err := c.ln.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to get chain tip: %w", err)
	}
	tip := int64(info.BlockHeight)

	endHeight := req.StartHeight + req.NumBlocks - 1
	includeUnconfirmed := endHeight >= tip

	getReq := &lnrpc.GetTransactionsRequest{
		StartHeight: int32(req.StartHeight),
		EndHeight:   int32(endHeight),
	}
	if includeUnconfirmed {
		// EndHeight = -1 additionally surfaces mempool (0-confirmation)
		// transactions in LND's GetTransactions semantics.
		getReq.EndHeight = -1
	}

	resp, err := c.ln.GetTransactions(ctx, getReq)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	var outs []node.TxOut
	for _, tx := range resp.Transactions {
		var blockHeight *int64
		if tx.NumConfirmations > 0 {
			h := int64(tx.BlockHeight)
			blockHeight = &h
		} else if !includeUnconfirmed {
			continue
		}
		if blockHeight != nil && (*blockHeight < req.StartHeight || *blockHeight > endHeight) {
			continue
		}
		for i, out := range tx.OutputDetails {
			outs = append(outs, node.TxOut{
				TxID:        tx.TxHash,
				VOut:        uint32(i),
				BlockHeight: blockHeight,
				Address:     out.Address,
				AmountSats:  ledger.Sat(out.Amount),
			})
		}
	}
	return outs, nil
}

// SendOnChain broadcasts amountSats to address, labelling the resulting
// wallet transaction so a crashed withdrawal sender can recover it via
// GetTx instead of double-broadcasting.
func (c *Client) SendOnChain(ctx context.Context, address string, amountSats ledger.Sat, label string) (node.TxOut, error) {
	if address == "" {
		return node.TxOut{}, errors.New("address must not be empty")
	}
	if amountSats < 546 {
		return node.TxOut{}, fmt.Errorf("amount %d is below dust limit (546 sats)", amountSats)
	}

	sendTimeout := c.Cfg.SendTimeout
	if sendTimeout == 0 {
		sendTimeout = c.rpcTimeout()
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, err := c.ln.SendCoins(ctx, &lnrpc.SendCoinsRequest{
		Addr:       address,
		Amount:     int64(amountSats),
		TargetConf: 6,
		Label:      label,
	})
	if err != nil {
		return node.TxOut{}, fmt.Errorf("failed to send on-chain coins: %w", err)
	}

	return node.TxOut{TxID: resp.Txid, VOut: 0, Address: address, AmountSats: amountSats}, nil
}

// GetTx searches wallet transaction history for a previously-broadcast
// output carrying label, for crash-recovery idempotence in the withdrawal
// sender. Returns nil, nil if none is found yet.
func (c *Client) GetTx(ctx context.Context, address string, amountSats ledger.Sat, label string) (*node.TxOut, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout())
	defer cancel()

	// EndHeight = -1 includes unconfirmed transactions, which is where a
	// just-broadcast withdrawal will be found before its first confirmation.
	resp, err := c.ln.GetTransactions(ctx, &lnrpc.GetTransactionsRequest{
		StartHeight: int32(c.Cfg.FirstBlock),
		EndHeight:   -1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search wallet history: %w", err)
	}

	for _, tx := range resp.Transactions {
		if tx.Label != label {
			continue
		}
		var blockHeight *int64
		if tx.NumConfirmations > 0 {
			h := int64(tx.BlockHeight)
			blockHeight = &h
		}
		for i, out := range tx.OutputDetails {
			if out.Address == address && ledger.Sat(out.Amount) == amountSats {
				return &node.TxOut{
					TxID:        tx.TxHash,
					VOut:        uint32(i),
					BlockHeight: blockHeight,
					Address:     out.Address,
					AmountSats:  ledger.Sat(out.Amount),
				}, nil
			}
		}
	}
	return nil, nil
}

// EstimateFee estimates the on-chain fee for a 1-block confirmation target,
// which may spend unconfirmed change.
func (c *Client) EstimateFee(ctx context.Context, amountSats ledger.Sat, address string) (ledger.Sat, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout())
	defer cancel()

	resp, err := c.ln.EstimateFee(ctx, &lnrpc.EstimateFeeRequest{
		AddrToAmount:     map[string]int64{address: int64(amountSats)},
		TargetConf:       1,
		SpendUnconfirmed: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate fee: %w", err)
	}
	return ledger.Sat(resp.FeeSat), nil
}
