package store

import (
	"time"

	"github.com/squeaknode/node/internal/models"
)

// These row types exist because the model structs use fixed-size byte
// arrays ([32]byte) for hashes, which sqlx cannot scan directly from a
// bytea column — each row type holds the column as []byte and converts
// on the way out.

type itemRow struct {
	Hash          []byte     `db:"hash"`
	AuthorAddress string     `db:"author_address"`
	ReplyHash     []byte     `db:"reply_hash"`
	BlockHeight   int64      `db:"block_height"`
	BlockTime     int64      `db:"block_time"`
	BlockHeader   []byte     `db:"block_header"`
	Ciphertext    []byte     `db:"ciphertext"`
	DecryptionKey []byte     `db:"decryption_key"`
	CreatedAt     time.Time  `db:"created_at"`
	LikedAt       *time.Time `db:"liked_at"`
}

func (r *itemRow) toModel() *models.ContentItem {
	item := &models.ContentItem{
		AuthorAddress: r.AuthorAddress,
		BlockHeight:   r.BlockHeight,
		BlockTime:     r.BlockTime,
		BlockHeader:   r.BlockHeader,
		Ciphertext:    r.Ciphertext,
		DecryptionKey: r.DecryptionKey,
		CreatedAt:     r.CreatedAt,
		LikedAt:       r.LikedAt,
	}
	copy(item.Hash[:], r.Hash)
	copy(item.ReplyHash[:], r.ReplyHash)
	return item
}

type profileRow struct {
	ProfileID  int64  `db:"profile_id"`
	Name       string `db:"name"`
	Address    string `db:"address"`
	PrivateKey []byte `db:"private_key"`
	Sharing    bool   `db:"sharing"`
	Following  bool   `db:"following"`
	Image      []byte `db:"image"`
}

func (r *profileRow) toModel() *models.Profile {
	return &models.Profile{
		ProfileID:  r.ProfileID,
		Name:       r.Name,
		Address:    r.Address,
		PrivateKey: r.PrivateKey,
		Sharing:    r.Sharing,
		Following:  r.Following,
		Image:      r.Image,
	}
}

type peerRow struct {
	PeerID      int64  `db:"peer_id"`
	Name        string `db:"name"`
	Host        string `db:"host"`
	Port        int    `db:"port"`
	Uploading   bool   `db:"uploading"`
	Downloading bool   `db:"downloading"`
}

func (r *peerRow) toModel() *models.Peer {
	return &models.Peer{
		PeerID:      r.PeerID,
		Name:        r.Name,
		Host:        r.Host,
		Port:        r.Port,
		Uploading:   r.Uploading,
		Downloading: r.Downloading,
	}
}

type sentOfferRow struct {
	SentOfferID          int64     `db:"sent_offer_id"`
	ItemHash             []byte    `db:"item_hash"`
	PaymentHash          []byte    `db:"payment_hash"`
	SecretKey            []byte    `db:"secret_key"`
	Nonce                []byte    `db:"nonce"`
	PriceMsat            int64     `db:"price_msat"`
	PaymentRequest       string    `db:"payment_request"`
	InvoiceTimestamp     time.Time `db:"invoice_timestamp"`
	InvoiceExpirySeconds int64     `db:"invoice_expiry_seconds"`
	ClientHost           string    `db:"client_host"`
	ClientPort           int       `db:"client_port"`
	Paid                 bool      `db:"paid"`
}

type receivedOfferRow struct {
	ReceivedOfferID      int64     `db:"received_offer_id"`
	ItemHash             []byte    `db:"item_hash"`
	PaymentHash          []byte    `db:"payment_hash"`
	Nonce                []byte    `db:"nonce"`
	PriceMsat            int64     `db:"price_msat"`
	PaymentRequest       string    `db:"payment_request"`
	InvoiceTimestamp     time.Time `db:"invoice_timestamp"`
	InvoiceExpirySeconds int64     `db:"invoice_expiry_seconds"`
	Destination          []byte    `db:"destination"`
	LightningHost        string    `db:"lightning_host"`
	LightningPort        int       `db:"lightning_port"`
	PeerHost             string    `db:"peer_host"`
	PeerPort             int       `db:"peer_port"`
	PaymentPoint         []byte    `db:"payment_point"`
	Paid                 bool      `db:"paid"`
}

func (r *receivedOfferRow) toModel() *models.ReceivedOffer {
	offer := &models.ReceivedOffer{
		ReceivedOfferID:  r.ReceivedOfferID,
		PriceMsat:        r.PriceMsat,
		PaymentRequest:   r.PaymentRequest,
		InvoiceTimestamp: r.InvoiceTimestamp,
		InvoiceExpiry:    time.Duration(r.InvoiceExpirySeconds) * time.Second,
		Destination:      r.Destination,
		LightningHost:    r.LightningHost,
		LightningPort:    r.LightningPort,
		PeerHost:         r.PeerHost,
		PeerPort:         r.PeerPort,
		PaymentPoint:     r.PaymentPoint,
		Paid:             r.Paid,
	}
	copy(offer.ItemHash[:], r.ItemHash)
	copy(offer.PaymentHash[:], r.PaymentHash)
	copy(offer.Nonce[:], r.Nonce)
	return offer
}

func (r *sentOfferRow) toModel() *models.SentOffer {
	offer := &models.SentOffer{
		SentOfferID:      r.SentOfferID,
		PriceMsat:        r.PriceMsat,
		PaymentRequest:   r.PaymentRequest,
		InvoiceTimestamp: r.InvoiceTimestamp,
		InvoiceExpiry:    time.Duration(r.InvoiceExpirySeconds) * time.Second,
		ClientHost:       r.ClientHost,
		ClientPort:       r.ClientPort,
		Paid:             r.Paid,
	}
	copy(offer.ItemHash[:], r.ItemHash)
	copy(offer.PaymentHash[:], r.PaymentHash)
	copy(offer.SecretKey[:], r.SecretKey)
	copy(offer.Nonce[:], r.Nonce)
	return offer
}
