// Package lightning provides the node's view of a Lightning Network
// backend: decoding payment requests, issuing hold invoices that can be
// settled by revealing a preimage, subscribing to settlement
// notifications, and paying other nodes' invoices.
package lightning

import (
	"context"
	"time"
)

// NodeInfo is the subset of a Lightning node's identity this node
// cares about.
type NodeInfo struct {
	IdentityPubkey string
	Alias          string
	BlockHeight    uint32
	SyncedToChain  bool
}

// DecodedInvoice is the result of decoding a BOLT11 payment request
// without paying it.
type DecodedInvoice struct {
	PaymentHash [32]byte
	Destination []byte // compressed node pubkey
	NumMsat     int64
	Description string
	Expiry      time.Duration
	Timestamp   time.Time
}

// HoldInvoiceRequest describes a hold invoice to create: one that
// moves to the accepted state when paid, but requires a separate
// Settle call with the preimage before the payer's funds are released.
type HoldInvoiceRequest struct {
	PaymentHash [32]byte
	ValueMsat   int64
	Memo        string
	Expiry      time.Duration
}

// HoldInvoice is a created, not-yet-settled hold invoice.
type HoldInvoice struct {
	PaymentRequest string
	AddIndex       uint64
}

// InvoiceState mirrors the lifecycle of a hold invoice as seen through
// SubscribeInvoices.
type InvoiceState int

const (
	InvoiceStateOpen InvoiceState = iota
	InvoiceStateAccepted
	InvoiceStateSettled
	InvoiceStateCanceled
)

// InvoiceUpdate is a single notification off the invoice subscription
// stream.
type InvoiceUpdate struct {
	PaymentHash [32]byte
	State       InvoiceState
	SettleIndex uint64
	AmtPaidMsat int64
}

// PaymentResult is the outcome of sending a payment to another node's
// invoice.
type PaymentResult struct {
	PaymentHash     [32]byte
	PaymentPreimage [32]byte
	FeeMsat         int64
	Failed          bool
	FailureReason   string
}

// Gateway is the node's contract with a Lightning backend. A production
// instance talks to LND over gRPC (see GRPCGateway); tests use an
// in-memory FakeGateway.
type Gateway interface {
	GetInfo(ctx context.Context) (*NodeInfo, error)
	DecodePayReq(ctx context.Context, payReq string) (*DecodedInvoice, error)

	// AddHoldInvoice creates an invoice pinned to a caller-supplied
	// payment hash, so the hash can be derived from a content item's
	// decryption key before the invoice exists.
	AddHoldInvoice(ctx context.Context, req HoldInvoiceRequest) (*HoldInvoice, error)

	// SettleInvoice releases a hold invoice by revealing preimage. The
	// payment hash is not passed separately — it is SHA-256(preimage).
	SettleInvoice(ctx context.Context, preimage [32]byte) error

	// CancelInvoice cancels a hold invoice that will never be settled
	// (e.g. its offer expired unpaid).
	CancelInvoice(ctx context.Context, paymentHash [32]byte) error

	// SubscribeInvoices streams invoice state transitions starting
	// after settleIndex (0 to receive all currently-open invoices'
	// transitions going forward). The channel is closed when ctx is
	// canceled or the stream ends.
	SubscribeInvoices(ctx context.Context, settleIndex uint64) (<-chan InvoiceUpdate, <-chan error)

	// SendPaymentSync pays a decoded BOLT11 payment request and blocks
	// until the payment either settles or definitively fails.
	SendPaymentSync(ctx context.Context, payReq string, feeLimitMsat int64) (*PaymentResult, error)
}
