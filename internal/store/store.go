// Package store defines the node's persistence contract and a
// PostgreSQL implementation of it.
package store

import (
	"context"
	"time"

	"github.com/squeaknode/node/internal/models"
)

// Store is the node's full persistence contract: the seven tables
// (item, profile, peer, sent_offer, received_offer, sent_payment,
// received_payment) plus the read patterns the Controller needs.
//
// Every method is safe for concurrent use; multi-step writes that must
// be atomic (insert-and-mark-paid, install-key-and-persist) are
// implemented as a single transaction internally.
type Store interface {
	// Items

	SaveItem(ctx context.Context, item *models.ContentItem) error
	GetItem(ctx context.Context, hash [32]byte) (*models.ContentItem, bool, error)
	InstallKey(ctx context.Context, hash [32]byte, key []byte) error
	LookupItems(ctx context.Context, addresses []string, minBlockHeight, maxBlockHeight int64) ([][32]byte, error)
	ItemBlockHeightsForAuthor(ctx context.Context, authorAddress string) ([]int64, error)

	// Profiles

	SaveProfile(ctx context.Context, profile *models.Profile) error
	GetProfileByAddress(ctx context.Context, address string) (*models.Profile, bool, error)
	ListSharingProfiles(ctx context.Context) ([]*models.Profile, error)
	ListFollowedProfiles(ctx context.Context) ([]*models.Profile, error)

	// Peers

	SavePeer(ctx context.Context, peer *models.Peer) error
	ListPeers(ctx context.Context) ([]*models.Peer, error)
	ListDownloadingPeers(ctx context.Context) ([]*models.Peer, error)

	// Offers

	GetCachedSentOffer(ctx context.Context, itemHash [32]byte, clientHost string, clientPort int) (*models.SentOffer, bool, error)
	SaveSentOffer(ctx context.Context, offer *models.SentOffer) error
	MarkSentOfferPaid(ctx context.Context, paymentHash [32]byte) error
	SaveReceivedOffer(ctx context.Context, offer *models.ReceivedOffer) error
	GetReceivedOffer(ctx context.Context, id int64) (*models.ReceivedOffer, bool, error)
	MarkReceivedOfferPaid(ctx context.Context, paymentHash [32]byte) error
	DeleteExpiredSentOffers(ctx context.Context, retention time.Duration) (int64, error)
	DeleteExpiredReceivedOffers(ctx context.Context) (int64, error)

	// Payments

	SaveSentPayment(ctx context.Context, payment *models.SentPayment) error
	RecordReceivedPayment(ctx context.Context, payment *models.ReceivedPayment) error
	ItemHashForPaymentHash(ctx context.Context, paymentHash [32]byte) (itemHash [32]byte, clientHost string, clientPort int, found bool, err error)
	LatestReceivedPaymentIndex(ctx context.Context) (index uint64, found bool, err error)

	Close() error
}
