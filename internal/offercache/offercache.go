// Package offercache adds a Redis read-through cache in front of
// Store's sent-offer lookups. A SentOffer is looked up far more often
// than it's written (every getdata for type=2 on an item with an
// outstanding offer re-checks it), so caching the (item, buyer) -> offer
// mapping avoids a database round trip on the common path without
// changing who owns the data: Store is still written first, and a
// Redis outage degrades straight back to Store reads instead of
// breaking anything.
package offercache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/models"
	"github.com/squeaknode/node/internal/store"
)

// Config controls the Redis client and cache TTL.
type Config struct {
	Addrs    []string
	Password string
	DB       int
	TTL      time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Addrs) == 0 {
		c.Addrs = []string{"localhost:6379"}
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	return c
}

// Cache decorates a store.Store, adding a Redis-backed read-through
// cache in front of GetCachedSentOffer/SaveSentOffer. Every other
// Store method is delegated to the embedded store.Store unchanged.
type Cache struct {
	store.Store
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New builds a Cache wrapping backing. Construction never fails — a
// Redis that isn't reachable yet is handled the same way as one that
// becomes unreachable later: every cache operation falls back to
// backing and logs the miss.
func New(cfg Config, backing store.Store, log *logger.Logger) *Cache {
	cfg = cfg.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addrs[0],
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{Store: backing, client: client, ttl: cfg.TTL, log: log.Named("offercache")}
}

func cacheKey(itemHash [32]byte, clientHost string, clientPort int) string {
	return "squeaknode:sentoffer:" + hex.EncodeToString(itemHash[:]) + ":" + clientHost + ":" + strconv.Itoa(clientPort)
}

// GetCachedSentOffer checks Redis first, falling back to the backing
// store on a cache miss or a Redis error. A stale hit (the backing
// offer has since expired) is treated as a miss by the caller, which
// re-validates via SentOffer.Expired the same way it would without a
// cache — this layer never needs to know the expiry policy itself.
func (c *Cache) GetCachedSentOffer(ctx context.Context, itemHash [32]byte, clientHost string, clientPort int) (*models.SentOffer, bool, error) {
	key := cacheKey(itemHash, clientHost, clientPort)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var offer models.SentOffer
		if jsonErr := json.Unmarshal(raw, &offer); jsonErr == nil {
			return &offer, true, nil
		}
		c.log.Warn("failed to unmarshal cached sent offer, falling back to store", "item_hash", itemHash)
	} else if err != redis.Nil {
		c.log.Warn("redis unavailable for sent offer lookup, falling back to store", "error", err)
	}

	offer, found, err := c.Store.GetCachedSentOffer(ctx, itemHash, clientHost, clientPort)
	if err != nil || !found {
		return offer, found, err
	}

	if data, marshalErr := json.Marshal(offer); marshalErr == nil {
		if setErr := c.client.Set(ctx, key, data, c.ttl).Err(); setErr != nil {
			c.log.Warn("failed to populate sent offer cache", "error", setErr)
		}
	}
	return offer, found, nil
}

// SaveSentOffer writes through to the backing store and then primes the
// cache so the very next lookup for this (item, buyer) pair is a Redis
// hit. A cache-population failure is logged, not propagated — the
// persisted offer is what matters, and a missing cache entry just costs
// the next lookup a database round trip.
func (c *Cache) SaveSentOffer(ctx context.Context, offer *models.SentOffer) error {
	if err := c.Store.SaveSentOffer(ctx, offer); err != nil {
		return err
	}

	key := cacheKey(offer.ItemHash, offer.ClientHost, offer.ClientPort)
	data, err := json.Marshal(offer)
	if err != nil {
		c.log.Warn("failed to marshal sent offer for cache", "error", err)
		return nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("failed to populate sent offer cache", "error", err)
	}
	return nil
}

// Close closes the Redis client and the backing store.
func (c *Cache) Close() error {
	redisErr := c.client.Close()
	if storeErr := c.Store.Close(); storeErr != nil {
		return storeErr
	}
	return redisErr
}
