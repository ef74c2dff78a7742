package lndnode

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"lnledger/internal/ledger"
	"lnledger/internal/node"

	"github.com/lightningnetwork/lnd/lnrpc"
)

// CreateInvoice mints a BOLT-11 invoice for amountMsats with the given memo
// and expiry.
func (c *Client) CreateInvoice(ctx context.Context, amountMsats ledger.Msat, memo string, expiry time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout())
	defer cancel()

	resp, err := c.ln.AddInvoice(ctx, &lnrpc.Invoice{
		Memo:      memo,
		ValueMsat: int64(amountMsats),
		Expiry:    int64(expiry.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create invoice: %w", err)
	}
	return resp.PaymentRequest, nil
}

// DecodeInvoice parses a BOLT-11 string without paying it.
func (c *Client) DecodeInvoice(ctx context.Context, raw string) (node.ParsedInvoice, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout())
	defer cancel()

	resp, err := c.ln.DecodePayReq(ctx, &lnrpc.PayReqString{PayReq: raw})
	if err != nil {
		return node.ParsedInvoice{}, fmt.Errorf("failed to decode invoice: %w", err)
	}

	var amount *ledger.Msat
	if resp.NumMsat > 0 {
		m := ledger.Msat(resp.NumMsat)
		amount = &m
	}

	return node.ParsedInvoice{
		Raw:         raw,
		Destination: resp.Destination,
		PaymentHash: resp.PaymentHash,
		AmountMsats: amount,
		Expiry:      time.Duration(resp.Expiry) * time.Second,
		Timestamp:   time.Unix(resp.Timestamp, 0).UTC(),
		Memo:        resp.Description,
	}, nil
}

// GetInvoiceStatus polls a single invoice's settlement state by decoding it
// for its payment hash and looking that up directly.
func (c *Client) GetInvoiceStatus(ctx context.Context, raw string) (node.InvoiceStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout())
	defer cancel()

	decoded, err := c.ln.DecodePayReq(ctx, &lnrpc.PayReqString{PayReq: raw})
	if err != nil {
		return node.InvoiceStatus{}, fmt.Errorf("failed to decode invoice: %w", err)
	}

	hashBytes, err := hex.DecodeString(decoded.PaymentHash)
	if err != nil {
		return node.InvoiceStatus{}, fmt.Errorf("invalid payment hash in invoice: %w", err)
	}

	resp, err := c.ln.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: hashBytes})
	if err != nil {
		return node.InvoiceStatus{}, fmt.Errorf("failed to look up invoice: %w", err)
	}

	if resp.State != lnrpc.Invoice_SETTLED {
		return node.InvoiceStatus{Settled: false}, nil
	}

	return node.InvoiceStatus{
		Settled:     true,
		AmountMsats: ledger.Msat(resp.AmtPaidMsat),
		SettleIndex: resp.SettleIndex,
		SettleDate:  time.Unix(resp.SettleDate, 0).UTC(),
	}, nil
}

// StreamSettledInvoices subscribes to LND's invoice-update stream starting
// from fromSettleIndex (exclusive), forwarding only settled updates. The
// subscription is given a long (~1 month) timeout to accommodate idle
// streams; the invoice-stream worker resubscribes on stream end.
func (c *Client) StreamSettledInvoices(ctx context.Context, fromSettleIndex uint64) (<-chan node.SettledInvoice, <-chan error) {
	out := make(chan node.SettledInvoice)
	errs := make(chan error, 1)

	streamTimeout := c.Cfg.StreamTimeout
	if streamTimeout == 0 {
		streamTimeout = 30 * 24 * time.Hour
	}
	streamCtx, cancel := context.WithTimeout(ctx, streamTimeout)

	stream, err := c.ln.SubscribeInvoices(streamCtx, &lnrpc.InvoiceSubscription{
		SettleIndex: fromSettleIndex,
	})
	if err != nil {
		cancel()
		errs <- fmt.Errorf("failed to subscribe to invoices: %w", err)
		close(out)
		return out, errs
	}

	go func() {
		defer cancel()
		defer close(out)
		for {
			inv, err := stream.Recv()
			if err != nil {
				errs <- fmt.Errorf("invoice subscription stream ended: %w", err)
				return
			}
			if inv.State != lnrpc.Invoice_SETTLED {
				continue
			}
			out <- node.SettledInvoice{
				Raw:         inv.PaymentRequest,
				AmountMsats: ledger.Msat(inv.AmtPaidMsat),
				SettleDate:  time.Unix(inv.SettleDate, 0).UTC(),
				SettleIndex: inv.SettleIndex,
			}
		}
	}()

	return out, errs
}
