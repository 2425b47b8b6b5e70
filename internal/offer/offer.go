// Package offer implements both sides of an item's price negotiation:
// a seller packaging a hold invoice for a priced item (SentOffer), and
// a buyer unpacking a peer's advertised offer into a ReceivedOffer it
// can choose to pay.
package offer

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/ecc"
	"github.com/squeaknode/node/internal/lightning"
	"github.com/squeaknode/node/internal/models"
)

// Engine packages and unpacks offers.
type Engine struct {
	gateway lightning.Gateway
}

// New constructs an Engine backed by gateway.
func New(gateway lightning.Gateway) *Engine {
	return &Engine{gateway: gateway}
}

// CreateSentOfferParams are the seller-side inputs to CreateSentOffer.
type CreateSentOfferParams struct {
	Item           *models.ContentItem
	PriceMsat      int64
	InvoiceExpiry  time.Duration
	ClientHost     string
	ClientPort     int
	ExternalHost   string
	ExternalPort   int
}

// CreateSentOffer derives a payment hash from item's installed
// decryption key (the key doubles as the Lightning preimage), requests
// a hold invoice pinned to that hash, and returns the resulting
// SentOffer along with the WireOffer to transmit to the requesting
// peer.
func (e *Engine) CreateSentOffer(ctx context.Context, params CreateSentOfferParams) (*models.SentOffer, *models.WireOffer, error) {
	if !params.Item.HasKey() {
		return nil, nil, apperrors.New(apperrors.InvalidKey, "cannot offer an item with no installed decryption key")
	}

	var secretKey [32]byte
	copy(secretKey[:], params.Item.DecryptionKey)
	paymentHash := sha256.Sum256(secretKey[:])

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, nil, fmt.Errorf("generate offer nonce: %w", err)
	}

	expiry := params.InvoiceExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	invoice, err := e.gateway.AddHoldInvoice(ctx, lightning.HoldInvoiceRequest{
		PaymentHash: paymentHash,
		ValueMsat:   params.PriceMsat,
		Memo:        fmt.Sprintf("squeaknode item %x", params.Item.Hash),
		Expiry:      expiry,
	})
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	sentOffer := &models.SentOffer{
		ItemHash:         params.Item.Hash,
		PaymentHash:      paymentHash,
		SecretKey:        secretKey,
		Nonce:            nonce,
		PriceMsat:        params.PriceMsat,
		PaymentRequest:   invoice.PaymentRequest,
		InvoiceTimestamp: now,
		InvoiceExpiry:    expiry,
		ClientHost:       params.ClientHost,
		ClientPort:       params.ClientPort,
	}

	wireOffer := &models.WireOffer{
		Nonce:          nonce,
		PaymentRequest: invoice.PaymentRequest,
		Host:           params.ExternalHost,
		Port:           params.ExternalPort,
	}

	return sentOffer, wireOffer, nil
}

// UnpackOfferParams are the buyer-side inputs to UnpackOffer.
type UnpackOfferParams struct {
	ItemHash           [32]byte
	Wire               models.WireOffer
	MaxAcceptablePrice int64
	PeerHost           string
	PeerPort           int
}

// UnpackOffer decodes a peer's WireOffer, rejects it if its price
// exceeds the caller's ceiling, and derives the advisory payment point
// for the payment hash.
func (e *Engine) UnpackOffer(ctx context.Context, params UnpackOfferParams) (*models.ReceivedOffer, error) {
	decoded, err := e.gateway.DecodePayReq(ctx, params.Wire.PaymentRequest)
	if err != nil {
		return nil, err
	}

	if params.MaxAcceptablePrice > 0 && decoded.NumMsat > params.MaxAcceptablePrice {
		return nil, apperrors.New(apperrors.OfferExpired, fmt.Sprintf(
			"offer price %d msat exceeds acceptable maximum %d msat", decoded.NumMsat, params.MaxAcceptablePrice))
	}

	paymentPoint, err := ecc.PaymentPoint(decoded.PaymentHash)
	if err != nil {
		return nil, fmt.Errorf("derive payment point: %w", err)
	}

	return &models.ReceivedOffer{
		ItemHash:         params.ItemHash,
		PaymentHash:      decoded.PaymentHash,
		Nonce:            params.Wire.Nonce,
		PriceMsat:        decoded.NumMsat,
		PaymentRequest:   params.Wire.PaymentRequest,
		InvoiceTimestamp: decoded.Timestamp,
		InvoiceExpiry:    decoded.Expiry,
		Destination:      decoded.Destination,
		LightningHost:    params.Wire.Host,
		LightningPort:    params.Wire.Port,
		PeerHost:         params.PeerHost,
		PeerPort:         params.PeerPort,
		PaymentPoint:     paymentPoint,
	}, nil
}
