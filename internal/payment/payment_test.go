package payment

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/lightning"
	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/models"
)

type fakeRecorder struct {
	mu       sync.Mutex
	payments []*models.ReceivedPayment
	items    map[[32]byte][32]byte
	seen     map[[32]byte]bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{items: make(map[[32]byte][32]byte), seen: make(map[[32]byte]bool)}
}

func (f *fakeRecorder) RecordReceivedPayment(ctx context.Context, payment *models.ReceivedPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[payment.PaymentHash] {
		return apperrors.New(apperrors.StoreIntegrity, "duplicate payment hash")
	}
	f.seen[payment.PaymentHash] = true
	f.payments = append(f.payments, payment)
	return nil
}

func (f *fakeRecorder) ItemHashForPaymentHash(ctx context.Context, paymentHash [32]byte) ([32]byte, string, int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	itemHash, ok := f.items[paymentHash]
	return itemHash, "buyer.example", 8555, ok, nil
}

func TestPayOffer_DetectsPreimageMismatch(t *testing.T) {
	gw := lightning.NewFakeGateway()
	engine := New(gw, logger.NewNop())

	offer := &models.ReceivedOffer{
		PaymentHash:      [32]byte{0x01},
		PaymentRequest:   "lnbc-mismatch",
		InvoiceTimestamp: time.Now(),
		InvoiceExpiry:    time.Hour,
	}
	var wrongPreimage [32]byte
	wrongPreimage[0] = 0xFF
	gw.SetPaymentOutcome("lnbc-mismatch", lightning.PaymentResult{PaymentPreimage: wrongPreimage})

	_, err := engine.PayOffer(context.Background(), PayOfferParams{Offer: offer})
	require.Error(t, err)
	assert.True(t, apperrors.OfKind(err, apperrors.PreimageMismatch))
}

func TestPayOffer_RejectsExpiredOffer(t *testing.T) {
	gw := lightning.NewFakeGateway()
	engine := New(gw, logger.NewNop())

	offer := &models.ReceivedOffer{
		InvoiceTimestamp: time.Now().Add(-2 * time.Hour),
		InvoiceExpiry:    time.Hour,
	}
	_, err := engine.PayOffer(context.Background(), PayOfferParams{Offer: offer})
	require.Error(t, err)
	assert.True(t, apperrors.OfKind(err, apperrors.OfferExpired))
}

func TestPayOffer_SucceedsWithMatchingPreimage(t *testing.T) {
	gw := lightning.NewFakeGateway()
	engine := New(gw, logger.NewNop())

	var preimage [32]byte
	_, err := rand.Read(preimage[:])
	require.NoError(t, err)
	hash := sha256.Sum256(preimage[:])

	offer := &models.ReceivedOffer{
		PaymentHash:      hash,
		PaymentRequest:   "lnbc-ok",
		InvoiceTimestamp: time.Now(),
		InvoiceExpiry:    time.Hour,
	}
	gw.SetPaymentOutcome("lnbc-ok", lightning.PaymentResult{PaymentPreimage: preimage})

	sentPayment, err := engine.PayOffer(context.Background(), PayOfferParams{Offer: offer})
	require.NoError(t, err)
	assert.True(t, sentPayment.Valid)
}

func TestRunSettlementLoop_RecordsSettledInvoice(t *testing.T) {
	gw := lightning.NewFakeGateway()
	engine := New(gw, logger.NewNop())
	recorder := newFakeRecorder()

	var preimage [32]byte
	preimage[0] = 0x07
	hash := sha256.Sum256(preimage[:])
	recorder.items[hash] = [32]byte{0xAA}

	_, err := gw.AddHoldInvoice(context.Background(), lightning.HoldInvoiceRequest{PaymentHash: hash, ValueMsat: 1000})
	require.NoError(t, err)
	require.NoError(t, gw.ReceivePayment(hash))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.RunSettlementLoop(ctx, recorder, SettlementLoopConfig{})
		close(done)
	}()

	require.NoError(t, gw.SettleInvoice(context.Background(), preimage))

	require.Eventually(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return len(recorder.payments) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
