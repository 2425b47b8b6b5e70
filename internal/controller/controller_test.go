package controller

import (
	"context"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/connmgr"
	"github.com/squeaknode/node/internal/contentcrypto"
	"github.com/squeaknode/node/internal/lightning"
	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/models"
	"github.com/squeaknode/node/internal/offer"
	"github.com/squeaknode/node/internal/payment"
	"github.com/squeaknode/node/internal/ratelimit"
)

// harness bundles one side (seller or buyer) of a two-party test: its
// own Store and Controller, sharing the rest of the fixture's
// components the way a squeaknode process would.
type harness struct {
	store *fakeStore
	ctl   *Controller
}

func newHarness(t *testing.T, gateway lightning.Gateway, limit ratelimit.Config, extHost string, extPort int) *harness {
	t.Helper()
	return newHarnessWithStore(t, newFakeStore(), gateway, limit, extHost, extPort)
}

// newHarnessWithStore builds a Controller (and a fresh RateLimiter)
// over an already-populated store, standing in for a process restart
// against the same database.
func newHarnessWithStore(t *testing.T, st *fakeStore, gateway lightning.Gateway, limit ratelimit.Config, extHost string, extPort int) *harness {
	t.Helper()
	ctl := New(
		Config{PriceMsat: 1000, InvoiceExpiry: time.Hour, MaxAcceptablePriceMsat: 10_000, ExternalHost: extHost, ExternalPort: extPort},
		contentcrypto.New(),
		ratelimit.New(limit),
		offer.New(gateway),
		payment.New(gateway, logger.NewNop()),
		st,
		connmgr.New(logger.NewNop()),
		gateway,
		nil,
		logger.NewNop(),
	)
	return &harness{store: st, ctl: ctl}
}

func signedItem(t *testing.T, author *models.Profile, content string, blockHeight int64) (*models.ContentItem, []byte, []byte) {
	t.Helper()
	crypto := contentcrypto.New()
	item, sig, err := crypto.MakeItem(author, content, [32]byte{}, blockHeight, time.Now().Unix(), []byte("block-header"))
	require.NoError(t, err)
	privKey, err := ethcrypto.ToECDSA(author.PrivateKey)
	require.NoError(t, err)
	pubkey := ethcrypto.FromECDSAPub(&privKey.PublicKey)
	return item, sig, pubkey
}

func signingProfile(t *testing.T) *models.Profile {
	t.Helper()
	privKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return &models.Profile{
		Name:       "author",
		Address:    "sqk1authoraddressaddressaddressxxab", // 35 chars, test fixture only
		PrivateKey: ethcrypto.FromECDSA(privKey),
	}
}

func TestController_HappyPathPurchase(t *testing.T) {
	ctx := context.Background()
	gateway := lightning.NewFakeGateway()
	author := signingProfile(t)
	item, sig, pubkey := signedItem(t, author, "hello world", 100)

	seller := newHarness(t, gateway, ratelimit.Config{N: 100, W: 1000}, "seller.example", 9000)
	buyer := newHarness(t, gateway, ratelimit.Config{N: 100, W: 1000}, "buyer.example", 9100)

	require.NoError(t, seller.ctl.SaveItem(ctx, item, sig, pubkey, true))

	keyless := *item
	keyless.DecryptionKey = nil
	require.NoError(t, buyer.ctl.SaveItem(ctx, &keyless, sig, pubkey, false))

	var prevIndex uint64
	settleLoopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	paymentsEngine := payment.New(gateway, logger.NewNop())
	go paymentsEngine.RunSettlementLoop(settleLoopCtx, seller.store, payment.SettlementLoopConfig{})

	wireOffer, err := seller.ctl.GetBuyOffer(ctx, item.Hash, "buyer.example", 9100)
	require.NoError(t, err)

	decoded, err := gateway.DecodePayReq(ctx, wireOffer.PaymentRequest)
	require.NoError(t, err)

	receivedOffer, err := offer.New(gateway).UnpackOffer(ctx, offer.UnpackOfferParams{
		ItemHash:           item.Hash,
		Wire:               *wireOffer,
		MaxAcceptablePrice: 10_000,
		PeerHost:           "seller.example",
		PeerPort:           9000,
	})
	require.NoError(t, err)
	require.NoError(t, buyer.store.SaveReceivedOffer(ctx, receivedOffer))

	var preimage [32]byte
	copy(preimage[:], item.DecryptionKey)
	gateway.SetPaymentOutcome(wireOffer.PaymentRequest, lightning.PaymentResult{PaymentPreimage: preimage})
	require.NoError(t, gateway.ReceivePayment(decoded.PaymentHash))

	sentPayment, err := buyer.ctl.PayOffer(ctx, receivedOffer.ReceivedOfferID)
	require.NoError(t, err)
	assert.True(t, sentPayment.Valid)

	gotItem, found, err := buyer.store.GetItem(ctx, item.Hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, gotItem.HasKey())

	plaintext, err := contentcrypto.New().Decrypt(gotItem)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(plaintext))

	require.Eventually(t, func() bool {
		idx, found, _ := seller.store.LatestReceivedPaymentIndex(ctx)
		return found && idx > prevIndex
	}, time.Second, 10*time.Millisecond)
}

func TestController_PreimageMismatch(t *testing.T) {
	ctx := context.Background()
	gateway := lightning.NewFakeGateway()
	author := signingProfile(t)
	item, sig, pubkey := signedItem(t, author, "mismatched content", 200)

	seller := newHarness(t, gateway, ratelimit.Config{N: 100, W: 1000}, "seller.example", 9000)
	buyer := newHarness(t, gateway, ratelimit.Config{N: 100, W: 1000}, "buyer.example", 9100)

	require.NoError(t, seller.ctl.SaveItem(ctx, item, sig, pubkey, true))
	keyless := *item
	keyless.DecryptionKey = nil
	require.NoError(t, buyer.ctl.SaveItem(ctx, &keyless, sig, pubkey, false))

	wireOffer, err := seller.ctl.GetBuyOffer(ctx, item.Hash, "buyer.example", 9100)
	require.NoError(t, err)
	decoded, err := gateway.DecodePayReq(ctx, wireOffer.PaymentRequest)
	require.NoError(t, err)

	receivedOffer, err := offer.New(gateway).UnpackOffer(ctx, offer.UnpackOfferParams{
		ItemHash: item.Hash, Wire: *wireOffer, PeerHost: "seller.example", PeerPort: 9000,
	})
	require.NoError(t, err)
	require.NoError(t, buyer.store.SaveReceivedOffer(ctx, receivedOffer))

	var wrongPreimage [32]byte
	wrongPreimage[0] = 0xFF // deliberately not the item's real decryption key
	gateway.SetPaymentOutcome(wireOffer.PaymentRequest, lightning.PaymentResult{PaymentPreimage: wrongPreimage})
	require.NoError(t, gateway.ReceivePayment(decoded.PaymentHash))

	sentPayment, err := buyer.ctl.PayOffer(ctx, receivedOffer.ReceivedOfferID)
	require.Error(t, err)
	assert.True(t, apperrors.OfKind(err, apperrors.PreimageMismatch))
	require.NotNil(t, sentPayment)
	assert.False(t, sentPayment.Valid)

	gotItem, found, err := buyer.store.GetItem(ctx, item.Hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, gotItem.HasKey())
}

func TestController_RateLimitRejection(t *testing.T) {
	ctx := context.Background()
	gateway := lightning.NewFakeGateway()
	author := signingProfile(t)
	seller := newHarness(t, gateway, ratelimit.Config{N: 2, W: 10}, "seller.example", 9000)

	item1, sig1, pub1 := signedItem(t, author, "one", 100)
	item2, sig2, pub2 := signedItem(t, author, "two", 101)
	item3, sig3, pub3 := signedItem(t, author, "three", 102)

	require.NoError(t, seller.ctl.SaveItem(ctx, item1, sig1, pub1, false))
	require.NoError(t, seller.ctl.SaveItem(ctx, item2, sig2, pub2, false))

	err := seller.ctl.SaveItem(ctx, item3, sig3, pub3, false)
	require.Error(t, err)
	assert.True(t, apperrors.OfKind(err, apperrors.RateLimited))

	heights, err := seller.store.ItemBlockHeightsForAuthor(ctx, author.Address)
	require.NoError(t, err)
	assert.Len(t, heights, 2)
}

// TestController_RateLimitSurvivesRestart simulates a process restart:
// a fresh Controller and RateLimiter are built over a store that
// already holds items from a prior process's run. The new limiter
// must seed its window from the store instead of starting empty, or
// an author could publish N more items immediately after every
// restart.
func TestController_RateLimitSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	gateway := lightning.NewFakeGateway()
	author := signingProfile(t)
	st := newFakeStore()

	item1, sig1, pub1 := signedItem(t, author, "one", 100)
	item2, sig2, pub2 := signedItem(t, author, "two", 101)

	first := newHarnessWithStore(t, st, gateway, ratelimit.Config{N: 2, W: 10}, "seller.example", 9000)
	require.NoError(t, first.ctl.SaveItem(ctx, item1, sig1, pub1, false))
	require.NoError(t, first.ctl.SaveItem(ctx, item2, sig2, pub2, false))

	restarted := newHarnessWithStore(t, st, gateway, ratelimit.Config{N: 2, W: 10}, "seller.example", 9000)
	item3, sig3, pub3 := signedItem(t, author, "three", 102)
	err := restarted.ctl.SaveItem(ctx, item3, sig3, pub3, false)
	require.Error(t, err)
	assert.True(t, apperrors.OfKind(err, apperrors.RateLimited))
}

func TestController_OfferCaching(t *testing.T) {
	ctx := context.Background()
	gateway := lightning.NewFakeGateway()
	author := signingProfile(t)
	item, sig, pubkey := signedItem(t, author, "cache me", 300)

	seller := newHarness(t, gateway, ratelimit.Config{N: 100, W: 1000}, "seller.example", 9000)
	require.NoError(t, seller.ctl.SaveItem(ctx, item, sig, pubkey, true))

	first, err := seller.ctl.GetBuyOffer(ctx, item.Hash, "buyer.example", 9100)
	require.NoError(t, err)
	second, err := seller.ctl.GetBuyOffer(ctx, item.Hash, "buyer.example", 9100)
	require.NoError(t, err)

	assert.Equal(t, first.PaymentRequest, second.PaymentRequest)
	assert.Len(t, seller.store.sentOffers, 1)
}

func TestController_SubscriptionResume(t *testing.T) {
	ctx := context.Background()
	gateway := lightning.NewFakeGateway()
	author := signingProfile(t)
	seller := newHarness(t, gateway, ratelimit.Config{N: 100, W: 1000}, "seller.example", 9000)

	items := make([]*models.ContentItem, 3)
	offers := make([]*models.SentOffer, 3)
	for i := range items {
		item, sig, pubkey := signedItem(t, author, "content", int64(400+i))
		require.NoError(t, seller.ctl.SaveItem(ctx, item, sig, pubkey, true))
		items[i] = item

		_, err := seller.ctl.GetBuyOffer(ctx, item.Hash, "buyer.example", 9100+i)
		require.NoError(t, err)
		cached, found, err := seller.store.GetCachedSentOffer(ctx, item.Hash, "buyer.example", 9100+i)
		require.NoError(t, err)
		require.True(t, found)
		offers[i] = cached
	}

	loopCtx, cancel := context.WithCancel(ctx)
	paymentsEngine := payment.New(gateway, logger.NewNop())
	go paymentsEngine.RunSettlementLoop(loopCtx, seller.store, payment.SettlementLoopConfig{})

	require.NoError(t, gateway.ReceivePayment(offers[0].PaymentHash))
	require.NoError(t, gateway.SettleInvoice(ctx, offers[0].SecretKey))
	require.NoError(t, gateway.ReceivePayment(offers[1].PaymentHash))
	require.NoError(t, gateway.SettleInvoice(ctx, offers[1].SecretKey))

	require.Eventually(t, func() bool {
		idx, found, _ := seller.store.LatestReceivedPaymentIndex(ctx)
		return found && idx >= 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond) // let the loop observe cancellation before restart

	resumeFrom, found, err := seller.store.LatestReceivedPaymentIndex(ctx)
	require.NoError(t, err)
	require.True(t, found)

	loopCtx2, cancel2 := context.WithCancel(ctx)
	defer cancel2()
	go paymentsEngine.RunSettlementLoop(loopCtx2, seller.store, payment.SettlementLoopConfig{StartSettleIndex: resumeFrom})

	require.NoError(t, gateway.ReceivePayment(offers[2].PaymentHash))
	require.NoError(t, gateway.SettleInvoice(ctx, offers[2].SecretKey))

	require.Eventually(t, func() bool {
		idx, found, _ := seller.store.LatestReceivedPaymentIndex(ctx)
		return found && idx >= 3
	}, time.Second, 10*time.Millisecond)

	assert.Len(t, seller.store.receivedPayments, 3)
}
