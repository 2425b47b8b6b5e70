// Package payment implements both sides of settling an offer: a buyer
// paying a seller's invoice and verifying the returned preimage, and a
// seller's long-running loop that watches its Lightning backend for
// matching settlements and turns them into ReceivedPayment records.
package payment

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/lightning"
	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/models"
)

// Engine pays offers on the buyer side and reconciles settlements on
// the seller side.
type Engine struct {
	gateway lightning.Gateway
	log     *logger.Logger
}

// New constructs an Engine backed by gateway.
func New(gateway lightning.Gateway, log *logger.Logger) *Engine {
	return &Engine{gateway: gateway, log: log.Named("payment")}
}

// PayOfferParams are the buyer-side inputs to PayOffer.
type PayOfferParams struct {
	Offer        *models.ReceivedOffer
	PeerHost     string
	PeerPort     int
	FeeLimitMsat int64
}

// PayOffer sends payment for a received offer and verifies that the
// returned preimage actually hashes to the offer's payment hash before
// trusting it to decrypt anything. A SentPayment is returned regardless
// of whether the preimage checks out — callers persist it either way,
// with Valid recording the outcome, so a seller's dishonest or buggy
// node still leaves an audit trail.
func (e *Engine) PayOffer(ctx context.Context, params PayOfferParams) (*models.SentPayment, error) {
	if params.Offer.Expired(time.Now()) {
		return nil, apperrors.New(apperrors.OfferExpired, "offer invoice has expired")
	}

	result, err := e.gateway.SendPaymentSync(ctx, params.Offer.PaymentRequest, params.FeeLimitMsat)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.PaymentFailed, "send payment", err)
	}
	if result.Failed {
		return nil, apperrors.New(apperrors.PaymentFailed, result.FailureReason)
	}

	computedHash := sha256.Sum256(result.PaymentPreimage[:])
	valid := computedHash == params.Offer.PaymentHash
	if !valid {
		e.log.Error("payment preimage does not match offer payment hash",
			"item_hash", params.Offer.ItemHash, "payment_hash", params.Offer.PaymentHash)
	}

	sentPayment := &models.SentPayment{
		PeerHost:    params.PeerHost,
		PeerPort:    params.PeerPort,
		ItemHash:    params.Offer.ItemHash,
		PaymentHash: params.Offer.PaymentHash,
		SecretKey:   result.PaymentPreimage,
		PriceMsat:   params.Offer.PriceMsat,
		NodePubkey:  params.Offer.Destination,
		Valid:       valid,
		CreatedAt:   time.Now(),
	}

	if !valid {
		return sentPayment, apperrors.New(apperrors.PreimageMismatch, "preimage returned by lightning node does not match offer")
	}
	return sentPayment, nil
}

// SettlementRecorder persists a settled sale. Implementations must
// treat a duplicate payment hash as a no-op success — settlements can
// be observed more than once across a resumed subscription.
type SettlementRecorder interface {
	RecordReceivedPayment(ctx context.Context, payment *models.ReceivedPayment) error
	// ItemHashForPaymentHash resolves the item a settled invoice was
	// for, looked up from the seller's own SentOffer record.
	ItemHashForPaymentHash(ctx context.Context, paymentHash [32]byte) (itemHash [32]byte, clientHost string, clientPort int, found bool, err error)
}

// SettlementLoopConfig controls RunSettlementLoop's resume point
// and reconnect behavior.
type SettlementLoopConfig struct {
	StartSettleIndex uint64
	ReconnectMinWait time.Duration
	ReconnectMaxWait time.Duration
}

func (c SettlementLoopConfig) withDefaults() SettlementLoopConfig {
	if c.ReconnectMinWait <= 0 {
		c.ReconnectMinWait = time.Second
	}
	if c.ReconnectMaxWait <= 0 {
		c.ReconnectMaxWait = time.Minute
	}
	return c
}

// RunSettlementLoop subscribes to invoice settlements starting after
// cfg.StartSettleIndex and records each one via recorder, until ctx is
// canceled. On a stream error it reconnects with exponential backoff,
// resuming from the last settle index it actually recorded — so a
// restart never replays settlements already persisted, and never skips
// one the process crashed before recording.
func (e *Engine) RunSettlementLoop(ctx context.Context, recorder SettlementRecorder, cfg SettlementLoopConfig) {
	cfg = cfg.withDefaults()
	settleIndex := cfg.StartSettleIndex
	wait := cfg.ReconnectMinWait

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, errs := e.gateway.SubscribeInvoices(ctx, settleIndex)
		streamErr := e.drainSettlements(ctx, updates, errs, recorder, &settleIndex)
		if ctx.Err() != nil {
			return
		}

		if streamErr != nil {
			e.log.Warn("invoice settlement stream ended, reconnecting", "error", streamErr, "wait", wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		wait *= 2
		if wait > cfg.ReconnectMaxWait {
			wait = cfg.ReconnectMaxWait
		}
	}
}

func (e *Engine) drainSettlements(ctx context.Context, updates <-chan lightning.InvoiceUpdate, errs <-chan error, recorder SettlementRecorder, settleIndex *uint64) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.State != lightning.InvoiceStateSettled {
				continue
			}
			if err := e.recordSettlement(ctx, update, recorder); err != nil {
				e.log.Error("failed to record settlement", "error", err, "payment_hash", update.PaymentHash)
				continue
			}
			if update.SettleIndex > *settleIndex {
				*settleIndex = update.SettleIndex
			}
		}
	}
}

func (e *Engine) recordSettlement(ctx context.Context, update lightning.InvoiceUpdate, recorder SettlementRecorder) error {
	itemHash, clientHost, clientPort, found, err := recorder.ItemHashForPaymentHash(ctx, update.PaymentHash)
	if err != nil {
		return err
	}
	if !found {
		e.log.Warn("settled invoice has no matching sent offer", "payment_hash", update.PaymentHash)
		return nil
	}

	err = recorder.RecordReceivedPayment(ctx, &models.ReceivedPayment{
		ItemHash:    itemHash,
		PaymentHash: update.PaymentHash,
		PriceMsat:   update.AmtPaidMsat,
		SettleIndex: update.SettleIndex,
		ClientHost:  clientHost,
		ClientPort:  clientPort,
		CreatedAt:   time.Now(),
	})
	if err != nil && apperrors.Idempotent(err) {
		return nil
	}
	return err
}
