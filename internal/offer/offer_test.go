package offer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squeaknode/node/internal/lightning"
	"github.com/squeaknode/node/internal/models"
)

func itemWithKey() *models.ContentItem {
	item := &models.ContentItem{Hash: [32]byte{0xAB}}
	item.DecryptionKey = make([]byte, 32)
	item.DecryptionKey[0] = 0x01
	return item
}

func TestCreateSentOffer_RequiresKey(t *testing.T) {
	gw := lightning.NewFakeGateway()
	engine := New(gw)

	_, _, err := engine.CreateSentOffer(context.Background(), CreateSentOfferParams{
		Item:      &models.ContentItem{},
		PriceMsat: 1000,
	})
	assert.Error(t, err)
}

func TestCreateSentOffer_ThenUnpackOffer_RoundTrips(t *testing.T) {
	gw := lightning.NewFakeGateway()
	engine := New(gw)
	item := itemWithKey()

	sentOffer, wireOffer, err := engine.CreateSentOffer(context.Background(), CreateSentOfferParams{
		Item:          item,
		PriceMsat:     5000,
		InvoiceExpiry: time.Hour,
		ExternalHost:  "seller.example",
		ExternalPort:  8555,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), sentOffer.PriceMsat)

	received, err := engine.UnpackOffer(context.Background(), UnpackOfferParams{
		ItemHash:           item.Hash,
		Wire:               *wireOffer,
		MaxAcceptablePrice: 100000,
		PeerHost:           "seller.example",
		PeerPort:           8555,
	})
	require.NoError(t, err)
	assert.Equal(t, sentOffer.PaymentHash, received.PaymentHash)
	assert.NotEmpty(t, received.PaymentPoint)
}

func TestUnpackOffer_RejectsPriceAboveCeiling(t *testing.T) {
	gw := lightning.NewFakeGateway()
	engine := New(gw)
	item := itemWithKey()

	_, wireOffer, err := engine.CreateSentOffer(context.Background(), CreateSentOfferParams{
		Item:      item,
		PriceMsat: 50000,
	})
	require.NoError(t, err)

	_, err = engine.UnpackOffer(context.Background(), UnpackOfferParams{
		ItemHash:           item.Hash,
		Wire:               *wireOffer,
		MaxAcceptablePrice: 1000,
	})
	require.Error(t, err)
}
