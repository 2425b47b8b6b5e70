// Package eventbus publishes domain events to Kafka on a best-effort
// basis. A publish failure is logged and discarded — it must never fail
// the Controller operation that triggered it.
package eventbus

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/metrics"
	"github.com/squeaknode/node/internal/models"
)

// Event names, carried in each message's envelope and in logs. The
// Kafka message key is the caller-supplied key, not the event name.
const (
	EventItemReceived   = "item.received"
	EventOfferCreated   = "offer.created"
	EventPaymentSettled = "payment.settled"
)

// Config controls the Kafka writer.
type Config struct {
	Brokers      []string
	Topic        string
	Timeout      time.Duration
	BatchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.Topic == "" {
		c.Topic = "squeaknode.events"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 100 * time.Millisecond
	}
	return c
}

// envelope is the wire shape of every published event.
type envelope struct {
	Name      string          `json:"name"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Publisher is the interface Controller depends on, so tests can swap
// in a recording fake instead of dialing a real broker.
type Publisher interface {
	Publish(ctx context.Context, name string, key string, data interface{})
}

// Bus publishes domain events. The zero value is not usable; construct
// with New.
type Bus struct {
	cfg    Config
	writer *kafka.Writer
	log    *logger.Logger
}

// New builds a Bus backed by a Kafka writer. Construction never fails —
// dial errors surface later, on the first failed publish, and are
// swallowed the same way.
func New(cfg Config, log *logger.Logger) *Bus {
	cfg = cfg.withDefaults()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.Timeout,
	}
	return &Bus{cfg: cfg, writer: writer, log: log.Named("eventbus")}
}

var _ Publisher = (*Bus)(nil)

// Publish marshals data and writes it under the given event name. Errors
// are logged and not returned — callers invoke this after a Store write
// has already succeeded and must not let a broker hiccup undo it.
func (b *Bus) Publish(ctx context.Context, name string, key string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		b.log.Error("failed to marshal event payload", "error", err, "event", name)
		return
	}
	env := envelope{Name: name, Timestamp: time.Now(), Data: payload}
	value, err := json.Marshal(env)
	if err != nil {
		b.log.Error("failed to marshal event envelope", "error", err, "event", name)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	if err := b.writer.WriteMessages(writeCtx, msg); err != nil {
		b.log.Error("failed to publish event", "error", err, "event", name, "key", key)
	}
}

// Close releases the underlying writer's connections.
func (b *Bus) Close() error {
	if b.writer != nil {
		return b.writer.Close()
	}
	return nil
}

// SettlementRecorder wraps a store so that every settlement it
// successfully records also publishes payment.settled. It satisfies
// payment.SettlementRecorder — its ItemHashForPaymentHash delegates
// straight to the wrapped store, and RecordReceivedPayment publishes
// after a successful (non-duplicate) write.
type SettlementRecorder struct {
	Store recorderStore
	Bus   Publisher
}

// recorderStore is payment.SettlementRecorder's shape, redeclared here
// to avoid importing the payment package just for this interface.
type recorderStore interface {
	RecordReceivedPayment(ctx context.Context, payment *models.ReceivedPayment) error
	ItemHashForPaymentHash(ctx context.Context, paymentHash [32]byte) (itemHash [32]byte, clientHost string, clientPort int, found bool, err error)
}

func (s SettlementRecorder) ItemHashForPaymentHash(ctx context.Context, paymentHash [32]byte) ([32]byte, string, int, bool, error) {
	return s.Store.ItemHashForPaymentHash(ctx, paymentHash)
}

func (s SettlementRecorder) RecordReceivedPayment(ctx context.Context, payment *models.ReceivedPayment) error {
	if err := s.Store.RecordReceivedPayment(ctx, payment); err != nil {
		return err
	}
	metrics.PaymentsSettledTotal.WithLabelValues("seller").Inc()
	metrics.LatestSettleIndex.Set(float64(payment.SettleIndex))
	s.Bus.Publish(ctx, EventPaymentSettled, hex.EncodeToString(payment.PaymentHash[:]), payment)
	return nil
}
