// Package controller implements the node's single orchestrator: it is
// the only component that writes to Store, and the entry point for
// every inbound peer message and admin request. It composes the pure
// components (ContentCrypto, RateLimiter, offer.Engine, payment.Engine)
// with Store and ConnectionManager, following
// web3-wallet-backend/internal/transaction/service.go's
// compose-pure-components-then-persist shape.
package controller

import (
	"context"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/connmgr"
	"github.com/squeaknode/node/internal/contentcrypto"
	"github.com/squeaknode/node/internal/eventbus"
	"github.com/squeaknode/node/internal/lightning"
	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/metrics"
	"github.com/squeaknode/node/internal/models"
	"github.com/squeaknode/node/internal/offer"
	"github.com/squeaknode/node/internal/payment"
	"github.com/squeaknode/node/internal/ratelimit"
	"github.com/squeaknode/node/internal/store"
	"github.com/squeaknode/node/internal/wire"
)

// Config controls the prices, deadlines, and self-advertised addresses
// the Controller uses when negotiating offers.
type Config struct {
	PriceMsat              int64
	MaxAcceptablePriceMsat int64
	InvoiceExpiry          time.Duration
	FeeLimitMsat           int64
	ExternalHost           string
	ExternalPort           int
	FollowedCacheTTL       time.Duration
}

func (c Config) withDefaults() Config {
	if c.InvoiceExpiry <= 0 {
		c.InvoiceExpiry = time.Hour
	}
	if c.FollowedCacheTTL <= 0 {
		c.FollowedCacheTTL = 30 * time.Second
	}
	return c
}

// Controller is the node's application-operation orchestrator.
type Controller struct {
	cfg      Config
	crypto   *contentcrypto.ContentCrypto
	limiter  *ratelimit.RateLimiter
	offers   *offer.Engine
	payments *payment.Engine
	store    store.Store
	conns    *connmgr.Manager
	gateway  lightning.Gateway
	events   eventbus.Publisher
	log      *logger.Logger

	mu         sync.Mutex
	followed   map[string]bool
	followedAt time.Time

	seededMu sync.Mutex
	seeded   map[string]bool
}

// New constructs a Controller from its components.
func New(
	cfg Config,
	crypto *contentcrypto.ContentCrypto,
	limiter *ratelimit.RateLimiter,
	offers *offer.Engine,
	payments *payment.Engine,
	st store.Store,
	conns *connmgr.Manager,
	gateway lightning.Gateway,
	events eventbus.Publisher,
	log *logger.Logger,
) *Controller {
	return &Controller{
		cfg:      cfg.withDefaults(),
		crypto:   crypto,
		limiter:  limiter,
		offers:   offers,
		payments: payments,
		store:    st,
		conns:    conns,
		gateway:  gateway,
		events:   events,
		log:      log.Named("controller"),
		seeded:   make(map[string]bool),
	}
}

// ensureSeeded loads author's already-stored item block heights into
// the rate limiter's window the first time this process admits an
// item from author, so a process restart can't reset the limiter's
// per-author counters to zero and let a rejected author immediately
// publish N more items.
func (c *Controller) ensureSeeded(ctx context.Context, author string) error {
	c.seededMu.Lock()
	if c.seeded[author] {
		c.seededMu.Unlock()
		return nil
	}
	c.seededMu.Unlock()

	heights, err := c.store.ItemBlockHeightsForAuthor(ctx, author)
	if err != nil {
		return err
	}
	c.limiter.Seed(author, heights)

	c.seededMu.Lock()
	c.seeded[author] = true
	c.seededMu.Unlock()
	return nil
}

// publish is a nil-safe wrapper so Controller works with no configured
// event bus — tests and any deployment that opts out of Kafka entirely.
func (c *Controller) publish(ctx context.Context, name, key string, data interface{}) {
	if c.events == nil {
		return
	}
	c.events.Publish(ctx, name, key, data)
}

// SaveItem validates, rate-limits, and persists item. Repeating the
// call with an item hash already on file is a no-op except that a key
// present on the incoming record is installed if the stored record
// doesn't have one yet — save_item is idempotent by construction.
func (c *Controller) SaveItem(ctx context.Context, item *models.ContentItem, signature, authorPubkey []byte, requireKey bool) error {
	existing, found, err := c.store.GetItem(ctx, item.Hash)
	if err != nil {
		return err
	}
	if found {
		if item.HasKey() && !existing.HasKey() {
			existing.DecryptionKey = item.DecryptionKey
			if err := c.crypto.CheckDecrypted(existing); err != nil {
				return err
			}
			return c.store.InstallKey(ctx, item.Hash, item.DecryptionKey)
		}
		return nil
	}

	if requireKey && !item.HasKey() {
		return apperrors.New(apperrors.InvalidKey, "item has no decryption key installed")
	}
	if _, err := c.crypto.Validate(item, signature, authorPubkey); err != nil {
		return err
	}
	if computed := c.crypto.Hash(item); computed != item.Hash {
		return apperrors.New(apperrors.InvalidItem, "claimed hash does not match computed hash")
	}
	if item.HasKey() {
		if err := c.crypto.CheckDecrypted(item); err != nil {
			return err
		}
	}
	if err := c.ensureSeeded(ctx, item.AuthorAddress); err != nil {
		return err
	}
	if !c.limiter.Admit(item.AuthorAddress, item.BlockHeight) {
		return apperrors.New(apperrors.RateLimited, "author exceeded item rate limit for this block window")
	}

	if err := c.store.SaveItem(ctx, item); err != nil && !apperrors.Idempotent(err) {
		return err
	}
	c.limiter.Record(item.AuthorAddress, item.BlockHeight)
	metrics.ItemsReceivedTotal.Inc()
	c.publish(ctx, eventbus.EventItemReceived, hex.EncodeToString(item.Hash[:]), item)
	return nil
}

// GetBuyOffer returns a wire offer for itemHash addressed to
// buyerHost:buyerPort, reusing an unexpired SentOffer for the same
// (item, buyer) pair instead of minting a new hold invoice every call.
func (c *Controller) GetBuyOffer(ctx context.Context, itemHash [32]byte, buyerHost string, buyerPort int) (*models.WireOffer, error) {
	item, found, err := c.store.GetItem(ctx, itemHash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.New(apperrors.OfferNotFound, "no item for hash")
	}
	if !item.HasKey() {
		return nil, apperrors.New(apperrors.InvalidKey, "item has no decryption key to sell")
	}

	if cached, found, err := c.store.GetCachedSentOffer(ctx, itemHash, buyerHost, buyerPort); err != nil {
		return nil, err
	} else if found && !cached.Expired(time.Now()) {
		return wireOfferOf(cached, c.cfg.ExternalHost, c.cfg.ExternalPort), nil
	}

	sentOffer, wireOffer, err := c.offers.CreateSentOffer(ctx, offer.CreateSentOfferParams{
		Item:          item,
		PriceMsat:     c.cfg.PriceMsat,
		InvoiceExpiry: c.cfg.InvoiceExpiry,
		ClientHost:    buyerHost,
		ClientPort:    buyerPort,
		ExternalHost:  c.cfg.ExternalHost,
		ExternalPort:  c.cfg.ExternalPort,
	})
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveSentOffer(ctx, sentOffer); err != nil && !apperrors.Idempotent(err) {
		return nil, err
	}
	metrics.OffersCreatedTotal.Inc()
	c.publish(ctx, eventbus.EventOfferCreated, hex.EncodeToString(itemHash[:]), sentOffer)
	return wireOffer, nil
}

func wireOfferOf(o *models.SentOffer, host string, port int) *models.WireOffer {
	return &models.WireOffer{
		Nonce:          o.Nonce,
		PaymentRequest: o.PaymentRequest,
		Host:           host,
		Port:           port,
	}
}

// PayOffer pays a previously received offer and, if the returned
// preimage checks out, installs it as the item's decryption key. A
// SentPayment is persisted whenever the gateway returned a preimage at
// all, whether or not it turned out valid — a dishonest or buggy
// counterparty still leaves an audit trail.
func (c *Controller) PayOffer(ctx context.Context, receivedOfferID int64) (*models.SentPayment, error) {
	receivedOffer, found, err := c.store.GetReceivedOffer(ctx, receivedOfferID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.New(apperrors.OfferNotFound, "no received offer with that id")
	}

	sentPayment, payErr := c.payments.PayOffer(ctx, payment.PayOfferParams{
		Offer:        receivedOffer,
		PeerHost:     receivedOffer.PeerHost,
		PeerPort:     receivedOffer.PeerPort,
		FeeLimitMsat: c.cfg.FeeLimitMsat,
	})
	if sentPayment == nil {
		return nil, payErr
	}

	valid := sentPayment.Valid
	if valid {
		if item, found, err := c.store.GetItem(ctx, receivedOffer.ItemHash); err != nil {
			return nil, err
		} else if found {
			c.crypto.SetKey(item, sentPayment.SecretKey)
			if err := c.crypto.CheckDecrypted(item); err != nil {
				valid = false
				c.log.Error("installed preimage does not decrypt item ciphertext", "error", err, "item_hash", item.Hash)
			} else if err := c.store.InstallKey(ctx, item.Hash, item.DecryptionKey); err != nil {
				return nil, err
			}
		}
	}
	sentPayment.Valid = valid

	if err := c.store.SaveSentPayment(ctx, sentPayment); err != nil {
		return sentPayment, err
	}
	if valid {
		if err := c.store.MarkReceivedOfferPaid(ctx, sentPayment.PaymentHash); err != nil {
			return sentPayment, err
		}
		metrics.PaymentsSettledTotal.WithLabelValues("buyer").Inc()
		metrics.PendingReceivedOffers.Dec()
		c.publish(ctx, eventbus.EventPaymentSettled, hex.EncodeToString(sentPayment.PaymentHash[:]), sentPayment)
		return sentPayment, nil
	}

	if payErr != nil {
		return sentPayment, payErr
	}
	return sentPayment, apperrors.New(apperrors.PreimageMismatch, "installed preimage failed the decrypt check")
}

// LookupItems returns hashes of stored items authored by one of
// addresses, restricted to the node's own followed-address set, within
// [minBlock, maxBlock].
func (c *Controller) LookupItems(ctx context.Context, addresses []string, minBlock, maxBlock int64) ([][32]byte, error) {
	followed, err := c.followedAddresses(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if followed[addr] {
			filtered = append(filtered, addr)
		}
	}
	if len(filtered) == 0 {
		return nil, nil
	}
	return c.store.LookupItems(ctx, filtered, minBlock, maxBlock)
}

// FilterUnknown reports, for each type=1 (item available) inv, whether
// this node already has it: dropped if fully unlocked, re-announced as
// type=1 if entirely unknown, or downgraded to type=2 (need the key) if
// the ciphertext is on file but key-less. Non-item invs pass through
// untouched — filter_unknown only judges item-availability
// announcements.
func (c *Controller) FilterUnknown(ctx context.Context, invs []models.Inv) ([]models.Inv, error) {
	out := make([]models.Inv, 0, len(invs))
	for _, inv := range invs {
		if inv.Type != models.InvTypeItem {
			out = append(out, inv)
			continue
		}
		item, found, err := c.store.GetItem(ctx, inv.Hash)
		if err != nil {
			return nil, err
		}
		switch {
		case !found:
			out = append(out, models.Inv{Type: models.InvTypeItem, Hash: inv.Hash})
		case !item.HasKey():
			out = append(out, models.Inv{Type: models.InvTypeKey, Hash: inv.Hash})
		}
	}
	return out, nil
}

// SyncTimeline broadcasts a getsqueaks request for every profile this
// node follows, asking peers to announce anything new from them.
func (c *Controller) SyncTimeline(ctx context.Context) (int, error) {
	profiles, err := c.store.ListFollowedProfiles(ctx)
	if err != nil {
		return 0, err
	}
	return c.conns.Broadcast(wire.CmdGetSqueaks, wire.GetSqueaksMessage{Locator: locatorFor(profiles)}), nil
}

// ShareItems broadcasts a sharesqueaks request for every profile this
// node shares, asking peers to announce anything of theirs they don't
// yet have.
func (c *Controller) ShareItems(ctx context.Context) (int, error) {
	profiles, err := c.store.ListSharingProfiles(ctx)
	if err != nil {
		return 0, err
	}
	return c.conns.Broadcast(wire.CmdShareSqueaks, wire.ShareSqueaksMessage{Locator: locatorFor(profiles)}), nil
}

// locatorFor builds a full-history interest filter per profile — this
// node has no chain-tip oracle of its own, so it asks for everything an
// author has rather than windowing by height.
func locatorFor(profiles []*models.Profile) models.CSqueakLocator {
	interested := make([]models.CInterested, 0, len(profiles))
	for _, p := range profiles {
		interested = append(interested, models.CInterested{
			Address:        p.Address,
			MinBlockHeight: 0,
			MaxBlockHeight: math.MaxInt64,
		})
	}
	return models.CSqueakLocator{Interested: interested}
}

// followedAddresses returns the set of addresses this node follows,
// rebuilding it from Store once the cached copy exceeds
// cfg.FollowedCacheTTL — a single lock guards both the read and the
// rebuild so concurrent callers never see a half-built cache.
func (c *Controller) followedAddresses(ctx context.Context) (map[string]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.followed != nil && time.Since(c.followedAt) < c.cfg.FollowedCacheTTL {
		return c.followed, nil
	}

	profiles, err := c.store.ListFollowedProfiles(ctx)
	if err != nil {
		return nil, err
	}
	followed := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		followed[p.Address] = true
	}
	c.followed = followed
	c.followedAt = time.Now()
	return followed, nil
}
