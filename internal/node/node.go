// Package node defines the abstract Lightning/on-chain node interface the
// core consumes. The concrete gRPC-to-LND transport lives in
// internal/lndnode; nothing in deposit, withdrawal, invoice, or payment
// imports that package directly.
package node

import (
	"context"
	"time"

	"lnledger/internal/ledger"
)

// TxOut is an on-chain output, keyed by (TxID, VOut). BlockHeight is nil
// for an unconfirmed output.
type TxOut struct {
	TxID        string
	VOut        uint32
	BlockHeight *int64
	Address     string
	AmountSats  ledger.Sat
}

// Confirmed reports whether this output has been mined.
func (t TxOut) Confirmed() bool {
	return t.BlockHeight != nil
}

// Key returns the (tx_id, v_out) composite identity used by the unique
// indexes on deposits and withdrawals.
func (t TxOut) Key() (string, uint32) {
	return t.TxID, t.VOut
}

// GetTxOutsRequest bounds a chain-listener poll.
type GetTxOutsRequest struct {
	StartHeight int64
	NumBlocks   int64
}

// ParsedInvoice is the decoded form of a BOLT-11 string, enough to drive
// payment validation without touching the node for each field access.
type ParsedInvoice struct {
	Raw         string
	Destination string
	PaymentHash string
	AmountMsats *ledger.Msat // nil if the invoice doesn't specify an amount
	Expiry      time.Duration
	Timestamp   time.Time
	Memo        string
}

// Expired reports whether the invoice's expiry window has elapsed.
func (p ParsedInvoice) Expired(now time.Time) bool {
	return now.After(p.Timestamp.Add(p.Expiry))
}

// SettledInvoice is one update from the node's settlement stream.
type SettledInvoice struct {
	Raw         string
	AmountMsats ledger.Msat
	SettleDate  time.Time
	SettleIndex uint64
}

// InvoiceStatus is the result of polling a single invoice by raw string.
type InvoiceStatus struct {
	Settled     bool
	AmountMsats ledger.Msat
	SettleIndex uint64
	SettleDate  time.Time
}

// PaymentErrorKind is the canonical payment failure taxonomy. Every non-nil
// PaymentError carries exactly one of these.
type PaymentErrorKind string

const (
	Unknown                  PaymentErrorKind = "UNKNOWN"
	InvoiceExpired           PaymentErrorKind = "INVOICE_EXPIRED"
	InvoiceAlreadyPaid       PaymentErrorKind = "INVOICE_ALREADY_PAID"
	TimedOut                 PaymentErrorKind = "TIMED_OUT"
	NoRouteFound             PaymentErrorKind = "NO_ROUTE_FOUND"
	InvalidPaymentDetailsErr PaymentErrorKind = "INVALID_PAYMENT_DETAILS"
	InsufficientLiquidity    PaymentErrorKind = "INSUFFICIENT_LIQUIDITY"
)

// PaymentError wraps one of the canonical payment failure reasons.
// HTLCs can hold a probe's HTLC fee breakdown; internal/lndnode sums probe
// fees itself and never fills it.
type PaymentError struct {
	Kind    PaymentErrorKind
	Message string
	HTLCs   []ProbeHTLC
}

func (e *PaymentError) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

// ProbeHTLC is one route attempt's fee breakdown, returned by the node
// when a deliberately-invalid probe payment is rejected at the
// destination (the expected, successful outcome of a fee probe).
type ProbeHTLC struct {
	TotalFeesMsat ledger.Msat
}

// PaymentResult is the outcome of a real (non-probe) send.
type PaymentResult struct {
	PaymentHash string
}

// Node is the abstract interface every core flow (deposit, withdrawal,
// invoice, payment) depends on. The concrete implementation is a
// collaborator (internal/lndnode); tests depend on fakes of this
// interface instead of a live LND.
type Node interface {
	// GenerateAddress derives a fresh on-chain deposit address.
	GenerateAddress(ctx context.Context) (string, error)

	// GetTxOuts returns confirmed outputs in [start, start+numBlocks), and
	// additionally returns unconfirmed outputs once the range extends
	// past the node's current chain tip.
	GetTxOuts(ctx context.Context, req GetTxOutsRequest) ([]TxOut, error)

	// SendOnChain broadcasts amountSats to address, labelling the
	// resulting wallet transaction with label (the withdrawal UUID) so a
	// crashed sender can recover the output via GetTx instead of
	// double-broadcasting.
	SendOnChain(ctx context.Context, address string, amountSats ledger.Sat, label string) (TxOut, error)

	// GetTx searches wallet history for a previously-broadcast output
	// carrying label, returning nil if none is found yet.
	GetTx(ctx context.Context, address string, amountSats ledger.Sat, label string) (*TxOut, error)

	// EstimateFee estimates the on-chain fee (1-block target, may spend
	// unconfirmed change) for sending amountSats to address.
	EstimateFee(ctx context.Context, amountSats ledger.Sat, address string) (ledger.Sat, error)

	// CreateInvoice mints a BOLT-11 invoice.
	CreateInvoice(ctx context.Context, amountMsats ledger.Msat, memo string, expiry time.Duration) (raw string, err error)

	// GetInvoiceStatus polls a single invoice's settlement state.
	GetInvoiceStatus(ctx context.Context, raw string) (InvoiceStatus, error)

	// StreamSettledInvoices subscribes to the node's settlement stream
	// starting from fromSettleIndex (exclusive). The returned channel is
	// closed when the stream ends; callers (the invoice-stream worker)
	// resubscribe.
	StreamSettledInvoices(ctx context.Context, fromSettleIndex uint64) (<-chan SettledInvoice, <-chan error)

	// DecodeInvoice parses a BOLT-11 string without paying it.
	DecodeInvoice(ctx context.Context, raw string) (ParsedInvoice, error)

	// ProbeFee sends a deliberately-failing payment (random payment hash)
	// to discover the routing fee to the invoice's destination.
	ProbeFee(ctx context.Context, invoice ParsedInvoice, amount *ledger.Msat) (ledger.Msat, error)

	// PayInvoice sends a real payment. amountOverride is used when the
	// invoice itself doesn't specify an amount.
	PayInvoice(ctx context.Context, raw string, amountOverride *ledger.Msat, feeLimitMsats ledger.Msat) (PaymentResult, error)
}
