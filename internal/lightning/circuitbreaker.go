package lightning

import (
	"context"
	"sync"
	"time"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/logger"
)

// breakerState mirrors pkg/concurrency's circuit breaker states, pared
// down to what this node's Lightning calls need: trip on a run of
// failures, probe again after a cooldown.
type breakerState int32

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreakerConfig controls when calls through a BreakerGateway are
// rejected outright instead of reaching the backend.
type CircuitBreakerConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = 30 * time.Second
	}
	return c
}

// BreakerGateway wraps a Gateway so that a run of backend failures
// opens the circuit, failing calls fast instead of piling up blocked
// gRPC calls against a Lightning node that is down.
type BreakerGateway struct {
	inner Gateway
	cfg   CircuitBreakerConfig
	log   *logger.Logger

	mu             sync.Mutex
	state          breakerState
	consecutiveErr int
	openedAt       time.Time
}

// NewBreakerGateway wraps inner with circuit-breaker protection.
func NewBreakerGateway(inner Gateway, cfg CircuitBreakerConfig, log *logger.Logger) *BreakerGateway {
	return &BreakerGateway{inner: inner, cfg: cfg.withDefaults(), log: log}
}

func (b *BreakerGateway) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		return true
	default:
		return false
	}
}

func (b *BreakerGateway) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.consecutiveErr = 0
		if b.state != breakerClosed {
			b.log.Info("lightning circuit breaker closed")
		}
		b.state = breakerClosed
		return
	}

	b.consecutiveErr++
	if b.state == breakerHalfOpen || b.consecutiveErr >= b.cfg.FailureThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
		b.log.Warn("lightning circuit breaker opened", "consecutive_errors", b.consecutiveErr)
	}
}

func (b *BreakerGateway) guard(ctx context.Context, call func() error) error {
	if !b.allow() {
		return apperrors.New(apperrors.LightningUnavailable, "lightning circuit breaker open")
	}
	err := call()
	b.recordResult(err)
	return err
}

func (b *BreakerGateway) GetInfo(ctx context.Context) (*NodeInfo, error) {
	var out *NodeInfo
	err := b.guard(ctx, func() error {
		var innerErr error
		out, innerErr = b.inner.GetInfo(ctx)
		return innerErr
	})
	return out, err
}

func (b *BreakerGateway) DecodePayReq(ctx context.Context, payReq string) (*DecodedInvoice, error) {
	var out *DecodedInvoice
	err := b.guard(ctx, func() error {
		var innerErr error
		out, innerErr = b.inner.DecodePayReq(ctx, payReq)
		return innerErr
	})
	return out, err
}

func (b *BreakerGateway) AddHoldInvoice(ctx context.Context, req HoldInvoiceRequest) (*HoldInvoice, error) {
	var out *HoldInvoice
	err := b.guard(ctx, func() error {
		var innerErr error
		out, innerErr = b.inner.AddHoldInvoice(ctx, req)
		return innerErr
	})
	return out, err
}

func (b *BreakerGateway) SettleInvoice(ctx context.Context, preimage [32]byte) error {
	return b.guard(ctx, func() error { return b.inner.SettleInvoice(ctx, preimage) })
}

func (b *BreakerGateway) CancelInvoice(ctx context.Context, paymentHash [32]byte) error {
	return b.guard(ctx, func() error { return b.inner.CancelInvoice(ctx, paymentHash) })
}

// SubscribeInvoices is not guarded by the breaker's short-circuit logic
// — it is a long-lived stream, not a single call. Reconnecting after
// the stream ends, and backing off between attempts, is left to the
// caller (payment.Engine.RunSettlementLoop). The breaker
// still observes its terminal error to influence other calls.
func (b *BreakerGateway) SubscribeInvoices(ctx context.Context, settleIndex uint64) (<-chan InvoiceUpdate, <-chan error) {
	updates, errs := b.inner.SubscribeInvoices(ctx, settleIndex)
	wrappedErrs := make(chan error, 1)
	go func() {
		defer close(wrappedErrs)
		for err := range errs {
			b.recordResult(err)
			wrappedErrs <- err
		}
	}()
	return updates, wrappedErrs
}

func (b *BreakerGateway) SendPaymentSync(ctx context.Context, payReq string, feeLimitMsat int64) (*PaymentResult, error) {
	var out *PaymentResult
	err := b.guard(ctx, func() error {
		var innerErr error
		out, innerErr = b.inner.SendPaymentSync(ctx, payReq, feeLimitMsat)
		return innerErr
	})
	return out, err
}

var _ Gateway = (*BreakerGateway)(nil)
