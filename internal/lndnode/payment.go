package lndnode

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"lnledger/internal/ledger"
	"lnledger/internal/node"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
)

const probeRetries = 5

// ProbeFee discovers the routing fee to an invoice's destination by sending
// a deliberately-failing payment carrying a random 32-byte payment hash
// The destination rejects it as INCORRECT_PAYMENT_DETAILS, which is
// the expected, successful outcome of a probe: LND still reports the fee of
// the route it attempted.
func (c *Client) ProbeFee(ctx context.Context, invoice node.ParsedInvoice, amount *ledger.Msat) (ledger.Msat, error) {
	destBytes, err := hex.DecodeString(invoice.Destination)
	if err != nil {
		return 0, fmt.Errorf("invalid destination pubkey: %w", err)
	}

	amt := invoice.AmountMsats
	if amt == nil {
		amt = amount
	}
	if amt == nil {
		return 0, fmt.Errorf("probe requires an amount: invoice specifies none and none was given")
	}

	var lastErr error
	for attempt := 0; attempt < probeRetries; attempt++ {
		fee, kind, err := c.probeOnce(ctx, destBytes, *amt)
		if err == nil {
			return fee, nil
		}
		lastErr = err
		if kind != node.NoRouteFound {
			return 0, err
		}
		time.Sleep(500 * time.Millisecond)
	}
	return 0, lastErr
}

func (c *Client) probeOnce(ctx context.Context, destPubkey []byte, amountMsats ledger.Msat) (ledger.Msat, node.PaymentErrorKind, error) {
	probeHash := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, probeHash); err != nil {
		return 0, node.Unknown, fmt.Errorf("failed to generate probe payment hash: %w", err)
	}

	probeTimeout := c.Cfg.ProbeTimeout
	if probeTimeout == 0 {
		probeTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req := &routerrpc.SendPaymentRequest{
		Dest:           destPubkey,
		AmtMsat:        int64(amountMsats),
		PaymentHash:    probeHash,
		TimeoutSeconds: int32(probeTimeout.Seconds()),
		FeeLimitMsat:   int64(amountMsats), // generous cap; this payment never settles
	}

	stream, err := c.routerClient.SendPaymentV2(ctx, req)
	if err != nil {
		return 0, node.Unknown, fmt.Errorf("failed to start probe: %w", err)
	}

	for {
		payment, err := stream.Recv()
		if err != nil {
			return 0, node.Unknown, fmt.Errorf("probe stream error: %w", err)
		}

		switch payment.Status {
		case lnrpc.Payment_IN_FLIGHT, lnrpc.Payment_INITIATED:
			continue
		case lnrpc.Payment_FAILED:
			return classifyProbeFailure(payment)
		default:
			// A probe should never succeed; treat it as an anomaly.
			return 0, node.Unknown, &node.PaymentError{Kind: node.Unknown, Message: "probe payment unexpectedly succeeded"}
		}
	}
}

func classifyProbeFailure(payment *lnrpc.Payment) (ledger.Msat, node.PaymentErrorKind, error) {
	switch payment.FailureReason {
	case lnrpc.PaymentFailureReason_FAILURE_REASON_INCORRECT_PAYMENT_DETAILS:
		var totalFees ledger.Msat
		var htlcs []node.ProbeHTLC
		for _, h := range payment.Htlcs {
			if h.Route == nil {
				continue
			}
			fee := ledger.Msat(h.Route.TotalFeesMsat)
			totalFees += fee
			htlcs = append(htlcs, node.ProbeHTLC{TotalFeesMsat: fee})
		}
		if len(htlcs) == 0 {
			return 0, node.Unknown, &node.PaymentError{Kind: node.Unknown, Message: "probe rejected but no route fee was reported"}
		}
		return totalFees, node.InvalidPaymentDetailsErr, nil
	case lnrpc.PaymentFailureReason_FAILURE_REASON_NO_ROUTE:
		return 0, node.NoRouteFound, &node.PaymentError{Kind: node.NoRouteFound, Message: "no route to destination"}
	case lnrpc.PaymentFailureReason_FAILURE_REASON_TIMEOUT:
		return 0, node.TimedOut, &node.PaymentError{Kind: node.TimedOut, Message: "probe timed out"}
	case lnrpc.PaymentFailureReason_FAILURE_REASON_INSUFFICIENT_BALANCE:
		return 0, node.InsufficientLiquidity, &node.PaymentError{Kind: node.InsufficientLiquidity, Message: "insufficient outbound liquidity"}
	default:
		return 0, node.Unknown, &node.PaymentError{Kind: node.Unknown, Message: payment.FailureReason.String()}
	}
}

// PayInvoice sends a real payment. amountOverride is used when the invoice
// doesn't specify its own amount.
func (c *Client) PayInvoice(ctx context.Context, raw string, amountOverride *ledger.Msat, feeLimitMsats ledger.Msat) (node.PaymentResult, error) {
	sendTimeout := c.Cfg.SendTimeout
	if sendTimeout == 0 {
		sendTimeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req := &routerrpc.SendPaymentRequest{
		PaymentRequest: raw,
		FeeLimitMsat:   int64(feeLimitMsats),
		TimeoutSeconds: int32(sendTimeout.Seconds()),
	}
	if amountOverride != nil {
		req.AmtMsat = int64(*amountOverride)
	}

	stream, err := c.routerClient.SendPaymentV2(ctx, req)
	if err != nil {
		return node.PaymentResult{}, mapSendError(err)
	}

	for {
		payment, err := stream.Recv()
		if err != nil {
			return node.PaymentResult{}, &node.PaymentError{Kind: node.Unknown, Message: err.Error()}
		}

		switch payment.Status {
		case lnrpc.Payment_IN_FLIGHT, lnrpc.Payment_INITIATED:
			continue
		case lnrpc.Payment_SUCCEEDED:
			return node.PaymentResult{PaymentHash: payment.PaymentHash}, nil
		case lnrpc.Payment_FAILED:
			return node.PaymentResult{}, classifySendFailure(payment)
		default:
			return node.PaymentResult{}, &node.PaymentError{Kind: node.Unknown, Message: "unexpected payment status " + payment.Status.String()}
		}
	}
}

func classifySendFailure(payment *lnrpc.Payment) error {
	switch payment.FailureReason {
	case lnrpc.PaymentFailureReason_FAILURE_REASON_NO_ROUTE:
		return &node.PaymentError{Kind: node.NoRouteFound, Message: "no route to destination"}
	case lnrpc.PaymentFailureReason_FAILURE_REASON_TIMEOUT:
		return &node.PaymentError{Kind: node.TimedOut, Message: "payment timed out"}
	case lnrpc.PaymentFailureReason_FAILURE_REASON_INSUFFICIENT_BALANCE:
		return &node.PaymentError{Kind: node.InsufficientLiquidity, Message: "insufficient outbound liquidity"}
	case lnrpc.PaymentFailureReason_FAILURE_REASON_INCORRECT_PAYMENT_DETAILS:
		return &node.PaymentError{Kind: node.InvoiceAlreadyPaid, Message: "invoice already paid or payment secret rejected"}
	default:
		return &node.PaymentError{Kind: node.Unknown, Message: payment.FailureReason.String()}
	}
}

func mapSendError(err error) error {
	return &node.PaymentError{Kind: node.Unknown, Message: err.Error()}
}
