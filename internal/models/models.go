// Package models defines the node's persisted entities.
package models

import "time"

// ContentItem is a signed, encrypted content record ("squeak").
type ContentItem struct {
	Hash          [32]byte
	AuthorAddress string // 35-char base58check address
	ReplyHash     [32]byte
	BlockHeight   int64
	BlockTime     int64
	BlockHeader   []byte
	Ciphertext    []byte
	DecryptionKey []byte // nil until installed
	CreatedAt     time.Time
	LikedAt       *time.Time
}

// HasKey reports whether the decryption key has been installed.
func (c *ContentItem) HasKey() bool { return len(c.DecryptionKey) == 32 }

// HasReply reports whether ReplyHash is a real (non-zero) hash.
func (c *ContentItem) HasReply() bool { return c.ReplyHash != [32]byte{} }

// Profile is either a signing identity (owns a private key) or a contact
// (address only).
type Profile struct {
	ProfileID  int64
	Name       string
	Address    string
	PrivateKey []byte // nil for a contact profile
	Sharing    bool
	Following  bool
	Image      []byte
}

// IsSigning reports whether this profile can author new items.
func (p *Profile) IsSigning() bool { return len(p.PrivateKey) > 0 }

// Peer is a configured remote node, uniquely identified by (Host,Port).
type Peer struct {
	PeerID      int64
	Name        string
	Host        string
	Port        int
	Uploading   bool
	Downloading bool
}

// SentOffer is a seller's commitment to reveal a decryption key upon
// payment of a specific invoice.
type SentOffer struct {
	SentOfferID      int64
	ItemHash         [32]byte
	PaymentHash      [32]byte
	SecretKey        [32]byte // preimage = item decryption key
	Nonce            [32]byte
	PriceMsat        int64
	PaymentRequest   string
	InvoiceTimestamp time.Time
	InvoiceExpiry    time.Duration
	ClientHost       string
	ClientPort       int
	Paid             bool
}

// Expired reports whether the offer's invoice has passed its expiry at t.
func (s *SentOffer) Expired(t time.Time) bool {
	return t.After(s.InvoiceTimestamp.Add(s.InvoiceExpiry))
}

// ReceivedOffer is a buyer's record of a seller's Offer, before payment.
type ReceivedOffer struct {
	ReceivedOfferID  int64
	ItemHash         [32]byte
	PaymentHash      [32]byte
	Nonce            [32]byte
	PriceMsat        int64
	PaymentRequest   string
	InvoiceTimestamp time.Time
	InvoiceExpiry    time.Duration
	Destination      []byte // seller node pubkey
	LightningHost    string
	LightningPort    int
	PeerHost         string
	PeerPort         int
	PaymentPoint     []byte // opaque elliptic_point_from_scalar(payment_hash)
	Paid             bool
}

// Expired reports whether the offer's invoice has passed its expiry at t.
func (r *ReceivedOffer) Expired(t time.Time) bool {
	return t.After(r.InvoiceTimestamp.Add(r.InvoiceExpiry))
}

// SentPayment is a completed (or attempted) buy.
type SentPayment struct {
	SentPaymentID int64
	PeerHost      string
	PeerPort      int
	ItemHash      [32]byte
	PaymentHash   [32]byte
	SecretKey     [32]byte // preimage returned by the Lightning pay RPC
	PriceMsat     int64
	NodePubkey    []byte
	Valid         bool
	CreatedAt     time.Time
}

// ReceivedPayment is a completed sale.
type ReceivedPayment struct {
	ReceivedPaymentID int64
	ItemHash          [32]byte
	PaymentHash       [32]byte
	PriceMsat         int64
	SettleIndex       uint64
	ClientHost        string
	ClientPort        int
	CreatedAt         time.Time
}

// WireOffer is the transport-only representation of a SentOffer, never
// persisted directly.
type WireOffer struct {
	Nonce          [32]byte
	PaymentRequest string
	Host           string
	Port           int
}

// CInterested is a single locator filter entry: an address plus the
// block-height range the requester is interested in.
type CInterested struct {
	Address        string
	MinBlockHeight int64
	MaxBlockHeight int64
}

// CSqueakLocator is a list of interest filters, carried by getsqueaks
// and sharesqueaks messages.
type CSqueakLocator struct {
	Interested []CInterested
}

// InvType distinguishes "I don't have this item" from "I have the
// ciphertext but not the key" in an Inv entry.
type InvType int

const (
	InvTypeItem InvType = 1
	InvTypeKey  InvType = 2
)

// Inv is one entry of an inv or getdata message.
type Inv struct {
	Type InvType
	Hash [32]byte
}
