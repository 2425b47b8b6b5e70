package lightning

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/squeaknode/node/internal/apperrors"
)

// FakeGateway is an in-memory Gateway for tests: invoices live in a map
// and settle only when SettleInvoice is called explicitly, so tests can
// drive the accepted -> settled transition deterministically.
type FakeGateway struct {
	mu       sync.Mutex
	invoices map[[32]byte]*fakeInvoice
	nextIdx  uint64
	updates  chan InvoiceUpdate

	// Peers maps a payment request string to a canned payment outcome,
	// so tests can script SendPaymentSync without a real invoice graph.
	Peers map[string]PaymentResult

	Info NodeInfo
}

type fakeInvoice struct {
	req       HoldInvoiceRequest
	state     InvoiceState
	settleIdx uint64
	createdAt time.Time
}

// NewFakeGateway constructs an empty FakeGateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		invoices: make(map[[32]byte]*fakeInvoice),
		updates:  make(chan InvoiceUpdate, 64),
		Peers:    make(map[string]PaymentResult),
		Info:     NodeInfo{IdentityPubkey: "03" + fmt.Sprintf("%062x", 1), Alias: "fake-node", SyncedToChain: true},
	}
}

func (f *FakeGateway) GetInfo(ctx context.Context) (*NodeInfo, error) {
	info := f.Info
	return &info, nil
}

func (f *FakeGateway) DecodePayReq(ctx context.Context, payReq string) (*DecodedInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for hash, inv := range f.invoices {
		if fakePayReq(hash) == payReq {
			return &DecodedInvoice{
				PaymentHash: hash,
				NumMsat:     inv.req.ValueMsat,
				Description: inv.req.Memo,
				Expiry:      inv.req.Expiry,
				Timestamp:   inv.createdAt,
			}, nil
		}
	}
	return nil, apperrors.New(apperrors.PeerProtocolViolation, "unknown payment request")
}

func (f *FakeGateway) AddHoldInvoice(ctx context.Context, req HoldInvoiceRequest) (*HoldInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.invoices[req.PaymentHash]; exists {
		return nil, apperrors.New(apperrors.StoreIntegrity, "invoice already exists for payment hash")
	}

	f.nextIdx++
	f.invoices[req.PaymentHash] = &fakeInvoice{req: req, state: InvoiceStateOpen, createdAt: time.Now()}

	return &HoldInvoice{PaymentRequest: fakePayReq(req.PaymentHash), AddIndex: f.nextIdx}, nil
}

// ReceivePayment simulates a payer moving an invoice to the accepted
// state, as if an HTLC had locked in against the payment hash.
func (f *FakeGateway) ReceivePayment(paymentHash [32]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	inv, ok := f.invoices[paymentHash]
	if !ok {
		return apperrors.New(apperrors.OfferNotFound, "no invoice for payment hash")
	}
	inv.state = InvoiceStateAccepted
	f.pushLocked(InvoiceUpdate{PaymentHash: paymentHash, State: InvoiceStateAccepted, AmtPaidMsat: inv.req.ValueMsat})
	return nil
}

func (f *FakeGateway) SettleInvoice(ctx context.Context, preimage [32]byte) error {
	hash := sha256.Sum256(preimage[:])

	f.mu.Lock()
	defer f.mu.Unlock()

	inv, ok := f.invoices[hash]
	if !ok {
		return apperrors.New(apperrors.OfferNotFound, "no invoice for preimage")
	}
	if inv.state != InvoiceStateAccepted {
		return apperrors.New(apperrors.PaymentFailed, "invoice not in accepted state")
	}

	f.nextIdx++
	inv.state = InvoiceStateSettled
	inv.settleIdx = f.nextIdx
	f.pushLocked(InvoiceUpdate{PaymentHash: hash, State: InvoiceStateSettled, SettleIndex: inv.settleIdx, AmtPaidMsat: inv.req.ValueMsat})
	return nil
}

func (f *FakeGateway) CancelInvoice(ctx context.Context, paymentHash [32]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	inv, ok := f.invoices[paymentHash]
	if !ok {
		return apperrors.New(apperrors.OfferNotFound, "no invoice for payment hash")
	}
	inv.state = InvoiceStateCanceled
	f.pushLocked(InvoiceUpdate{PaymentHash: paymentHash, State: InvoiceStateCanceled})
	return nil
}

func (f *FakeGateway) pushLocked(update InvoiceUpdate) {
	select {
	case f.updates <- update:
	default:
	}
}

func (f *FakeGateway) SubscribeInvoices(ctx context.Context, settleIndex uint64) (<-chan InvoiceUpdate, <-chan error) {
	out := make(chan InvoiceUpdate)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-f.updates:
				if !ok {
					return
				}
				if u.SettleIndex != 0 && u.SettleIndex <= settleIndex {
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errs
}

// SetPaymentOutcome scripts what SendPaymentSync returns for a given
// payment request, including the preimage a real payment would reveal.
func (f *FakeGateway) SetPaymentOutcome(payReq string, result PaymentResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Peers[payReq] = result
}

func (f *FakeGateway) SendPaymentSync(ctx context.Context, payReq string, feeLimitMsat int64) (*PaymentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result, ok := f.Peers[payReq]
	if !ok {
		return nil, apperrors.New(apperrors.PeerUnreachable, "no route scripted for payment request")
	}
	return &result, nil
}

func fakePayReq(hash [32]byte) string {
	return fmt.Sprintf("lnfake1%x", hash)
}

var _ Gateway = (*FakeGateway)(nil)
