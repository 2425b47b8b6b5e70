package controller

import (
	"context"
	"sync"
	"time"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/models"
)

// fakeStore is an in-memory store.Store used only by this package's
// tests, standing in for a real Postgres-backed one.
type fakeStore struct {
	mu sync.Mutex

	items    map[[32]byte]*models.ContentItem
	profiles map[string]*models.Profile

	sentOffers     []*models.SentOffer
	nextSentOffer  int64
	receivedOffers map[int64]*models.ReceivedOffer
	nextReceived   int64

	sentPayments     []*models.SentPayment
	receivedPayments []*models.ReceivedPayment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:          make(map[[32]byte]*models.ContentItem),
		profiles:       make(map[string]*models.Profile),
		receivedOffers: make(map[int64]*models.ReceivedOffer),
	}
}

func cloneItem(i *models.ContentItem) *models.ContentItem {
	cp := *i
	cp.Ciphertext = append([]byte(nil), i.Ciphertext...)
	cp.BlockHeader = append([]byte(nil), i.BlockHeader...)
	cp.DecryptionKey = append([]byte(nil), i.DecryptionKey...)
	return &cp
}

func (s *fakeStore) SaveItem(ctx context.Context, item *models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[item.Hash]; ok {
		if existing.DecryptionKey == nil && item.DecryptionKey != nil {
			existing.DecryptionKey = append([]byte(nil), item.DecryptionKey...)
		}
		return nil
	}
	s.items[item.Hash] = cloneItem(item)
	return nil
}

func (s *fakeStore) GetItem(ctx context.Context, hash [32]byte) (*models.ContentItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[hash]
	if !ok {
		return nil, false, nil
	}
	return cloneItem(item), true, nil
}

func (s *fakeStore) InstallKey(ctx context.Context, hash [32]byte, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[hash]
	if !ok {
		return nil
	}
	if item.DecryptionKey == nil {
		item.DecryptionKey = append([]byte(nil), key...)
	}
	return nil
}

func (s *fakeStore) LookupItems(ctx context.Context, addresses []string, minBlockHeight, maxBlockHeight int64) ([][32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		want[a] = true
	}
	var out [][32]byte
	for hash, item := range s.items {
		if !want[item.AuthorAddress] {
			continue
		}
		if item.BlockHeight < minBlockHeight || item.BlockHeight > maxBlockHeight {
			continue
		}
		out = append(out, hash)
	}
	return out, nil
}

func (s *fakeStore) ItemBlockHeightsForAuthor(ctx context.Context, authorAddress string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, item := range s.items {
		if item.AuthorAddress == authorAddress {
			out = append(out, item.BlockHeight)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveProfile(ctx context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *profile
	s.profiles[profile.Address] = &cp
	return nil
}

func (s *fakeStore) GetProfileByAddress(ctx context.Context, address string) (*models.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[address]
	if !ok {
		return nil, false, nil
	}
	cp := *p
	return &cp, true, nil
}

func (s *fakeStore) ListSharingProfiles(ctx context.Context) ([]*models.Profile, error) {
	return s.listProfiles(func(p *models.Profile) bool { return p.Sharing })
}

func (s *fakeStore) ListFollowedProfiles(ctx context.Context) ([]*models.Profile, error) {
	return s.listProfiles(func(p *models.Profile) bool { return p.Following })
}

func (s *fakeStore) listProfiles(match func(*models.Profile) bool) ([]*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Profile
	for _, p := range s.profiles {
		if match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) SavePeer(ctx context.Context, peer *models.Peer) error { return nil }
func (s *fakeStore) ListPeers(ctx context.Context) ([]*models.Peer, error) { return nil, nil }
func (s *fakeStore) ListDownloadingPeers(ctx context.Context) ([]*models.Peer, error) {
	return nil, nil
}

func (s *fakeStore) GetCachedSentOffer(ctx context.Context, itemHash [32]byte, clientHost string, clientPort int) (*models.SentOffer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.SentOffer
	for _, o := range s.sentOffers {
		if o.ItemHash != itemHash || o.ClientHost != clientHost || o.ClientPort != clientPort {
			continue
		}
		if o.Expired(time.Now()) {
			continue
		}
		if best == nil || o.InvoiceTimestamp.After(best.InvoiceTimestamp) {
			best = o
		}
	}
	if best == nil {
		return nil, false, nil
	}
	cp := *best
	return &cp, true, nil
}

func (s *fakeStore) SaveSentOffer(ctx context.Context, offer *models.SentOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sentOffers {
		if existing.PaymentHash == offer.PaymentHash {
			return nil
		}
	}
	s.nextSentOffer++
	cp := *offer
	cp.SentOfferID = s.nextSentOffer
	s.sentOffers = append(s.sentOffers, &cp)
	return nil
}

func (s *fakeStore) MarkSentOfferPaid(ctx context.Context, paymentHash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.sentOffers {
		if o.PaymentHash == paymentHash {
			o.Paid = true
		}
	}
	return nil
}

func (s *fakeStore) SaveReceivedOffer(ctx context.Context, offer *models.ReceivedOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.receivedOffers {
		if existing.PaymentHash == offer.PaymentHash {
			offer.ReceivedOfferID = existing.ReceivedOfferID
			return nil
		}
	}
	s.nextReceived++
	cp := *offer
	cp.ReceivedOfferID = s.nextReceived
	s.receivedOffers[cp.ReceivedOfferID] = &cp
	offer.ReceivedOfferID = cp.ReceivedOfferID
	return nil
}

func (s *fakeStore) GetReceivedOffer(ctx context.Context, id int64) (*models.ReceivedOffer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.receivedOffers[id]
	if !ok {
		return nil, false, nil
	}
	cp := *o
	return &cp, true, nil
}

func (s *fakeStore) MarkReceivedOfferPaid(ctx context.Context, paymentHash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.receivedOffers {
		if o.PaymentHash == paymentHash {
			o.Paid = true
		}
	}
	return nil
}

func (s *fakeStore) DeleteExpiredSentOffers(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

func (s *fakeStore) DeleteExpiredReceivedOffers(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *fakeStore) SaveSentPayment(ctx context.Context, payment *models.SentPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *payment
	s.sentPayments = append(s.sentPayments, &cp)
	return nil
}

func (s *fakeStore) RecordReceivedPayment(ctx context.Context, payment *models.ReceivedPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.receivedPayments {
		if existing.PaymentHash == payment.PaymentHash {
			return apperrors.New(apperrors.StoreIntegrity, "duplicate payment hash")
		}
	}
	cp := *payment
	s.receivedPayments = append(s.receivedPayments, &cp)
	for _, o := range s.sentOffers {
		if o.PaymentHash == payment.PaymentHash {
			o.Paid = true
		}
	}
	return nil
}

func (s *fakeStore) ItemHashForPaymentHash(ctx context.Context, paymentHash [32]byte) (itemHash [32]byte, clientHost string, clientPort int, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.sentOffers {
		if o.PaymentHash == paymentHash {
			return o.ItemHash, o.ClientHost, o.ClientPort, true, nil
		}
	}
	return itemHash, "", 0, false, nil
}

func (s *fakeStore) LatestReceivedPaymentIndex(ctx context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max uint64
	found := false
	for _, p := range s.receivedPayments {
		if !found || p.SettleIndex > max {
			max = p.SettleIndex
			found = true
		}
	}
	return max, found, nil
}

func (s *fakeStore) Close() error { return nil }
