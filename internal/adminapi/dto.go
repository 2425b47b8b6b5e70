package adminapi

import (
	"encoding/hex"
	"time"

	"github.com/squeaknode/node/internal/models"
)

// Every [32]byte identity in this package is hex-encoded on the wire —
// friendlier for curl and JS clients than a raw JSON array of 32
// integers, and the one place in the codebase that needs a convention
// for it, since wire/ and models/ never cross an HTTP boundary directly.

func hashString(h [32]byte) string { return hex.EncodeToString(h[:]) }

func parseHash(s string) ([32]byte, error) {
	var h [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != 32 {
		return h, errWrongHashLength
	}
	copy(h[:], b)
	return h, nil
}

var errWrongHashLength = hexLengthError{}

type hexLengthError struct{}

func (hexLengthError) Error() string { return "hash must decode to exactly 32 bytes" }

// saveItemRequest is the body of POST /v1/items.
type saveItemRequest struct {
	Hash          string `json:"hash"`
	AuthorAddress string `json:"author_address"`
	ReplyHash     string `json:"reply_hash"`
	BlockHeight   int64  `json:"block_height"`
	BlockTime     int64  `json:"block_time"`
	BlockHeader   []byte `json:"block_header"`
	Ciphertext    []byte `json:"ciphertext"`
	Signature     []byte `json:"signature"`
	AuthorPubkey  []byte `json:"author_pubkey"`
	RequireKey    bool   `json:"require_key"`
}

func (r saveItemRequest) toModel() (*models.ContentItem, error) {
	hash, err := parseHash(r.Hash)
	if err != nil {
		return nil, err
	}
	var replyHash [32]byte
	if r.ReplyHash != "" {
		replyHash, err = parseHash(r.ReplyHash)
		if err != nil {
			return nil, err
		}
	}
	return &models.ContentItem{
		Hash:          hash,
		AuthorAddress: r.AuthorAddress,
		ReplyHash:     replyHash,
		BlockHeight:   r.BlockHeight,
		BlockTime:     r.BlockTime,
		BlockHeader:   r.BlockHeader,
		Ciphertext:    r.Ciphertext,
	}, nil
}

type itemResponse struct {
	Hash          string     `json:"hash"`
	AuthorAddress string     `json:"author_address"`
	ReplyHash     string     `json:"reply_hash"`
	BlockHeight   int64      `json:"block_height"`
	BlockTime     int64      `json:"block_time"`
	HasKey        bool       `json:"has_key"`
	CreatedAt     time.Time  `json:"created_at"`
	LikedAt       *time.Time `json:"liked_at,omitempty"`
}

func newItemResponse(item *models.ContentItem) itemResponse {
	return itemResponse{
		Hash:          hashString(item.Hash),
		AuthorAddress: item.AuthorAddress,
		ReplyHash:     hashString(item.ReplyHash),
		BlockHeight:   item.BlockHeight,
		BlockTime:     item.BlockTime,
		HasKey:        item.HasKey(),
		CreatedAt:     item.CreatedAt,
		LikedAt:       item.LikedAt,
	}
}

type buyOfferResponse struct {
	Nonce          string `json:"nonce"`
	PaymentRequest string `json:"payment_request"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
}

func newBuyOfferResponse(o *models.WireOffer) buyOfferResponse {
	return buyOfferResponse{
		Nonce:          hashString(o.Nonce),
		PaymentRequest: o.PaymentRequest,
		Host:           o.Host,
		Port:           o.Port,
	}
}

type sentPaymentResponse struct {
	SentPaymentID int64     `json:"sent_payment_id"`
	PeerHost      string    `json:"peer_host"`
	PeerPort      int       `json:"peer_port"`
	ItemHash      string    `json:"item_hash"`
	PaymentHash   string    `json:"payment_hash"`
	PriceMsat     int64     `json:"price_msat"`
	Valid         bool      `json:"valid"`
	CreatedAt     time.Time `json:"created_at"`
}

func newSentPaymentResponse(p *models.SentPayment) sentPaymentResponse {
	return sentPaymentResponse{
		SentPaymentID: p.SentPaymentID,
		PeerHost:      p.PeerHost,
		PeerPort:      p.PeerPort,
		ItemHash:      hashString(p.ItemHash),
		PaymentHash:   hashString(p.PaymentHash),
		PriceMsat:     p.PriceMsat,
		Valid:         p.Valid,
		CreatedAt:     p.CreatedAt,
	}
}

type invDTO struct {
	Type int    `json:"type"`
	Hash string `json:"hash"`
}

func newInvDTO(inv models.Inv) invDTO {
	return invDTO{Type: int(inv.Type), Hash: hashString(inv.Hash)}
}

func (d invDTO) toModel() (models.Inv, error) {
	hash, err := parseHash(d.Hash)
	if err != nil {
		return models.Inv{}, err
	}
	return models.Inv{Type: models.InvType(d.Type), Hash: hash}, nil
}

type filterUnknownRequest struct {
	Invs []invDTO `json:"invs"`
}

type filterUnknownResponse struct {
	Invs []invDTO `json:"invs"`
}

type lookupItemsResponse struct {
	Hashes []string `json:"hashes"`
}

func newLookupItemsResponse(hashes [][32]byte) lookupItemsResponse {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = hashString(h)
	}
	return lookupItemsResponse{Hashes: out}
}

type syncResponse struct {
	Count int `json:"count"`
}
