// Package wire defines the node's peer-to-peer message types and the
// framing codec used to exchange them over a TCP connection.
package wire

import (
	"time"

	"github.com/squeaknode/node/internal/models"
)

// Command identifies a message's payload type on the wire.
type Command string

const (
	CmdVersion      Command = "version"
	CmdVerack       Command = "verack"
	CmdPing         Command = "ping"
	CmdPong         Command = "pong"
	CmdInv          Command = "inv"
	CmdGetData      Command = "getdata"
	CmdGetSqueaks   Command = "getsqueaks"
	CmdShareSqueaks Command = "sharesqueaks"
	CmdSqueak       Command = "squeak"
	CmdOffer        Command = "offer"
)

// ProtocolVersion is the single version this node speaks. A peer
// advertising any other value is rejected during the handshake — see
// Connection's handshake step.
const ProtocolVersion = 1

// VersionMessage is sent first by each side of a new connection.
type VersionMessage struct {
	Version     int32
	Services    uint64
	Timestamp   time.Time
	ListenPort  int
	UserAgent   string
}

// VerackMessage acknowledges a received VersionMessage.
type VerackMessage struct{}

// PingMessage carries a nonce that must be echoed back in the Pong.
type PingMessage struct {
	Nonce uint64
}

// PongMessage echoes a PingMessage's nonce.
type PongMessage struct {
	Nonce uint64
}

// InvMessage announces items or keys the sender has available.
type InvMessage struct {
	Invs []models.Inv
}

// GetDataMessage requests the full payload for previously-announced
// inventory entries.
type GetDataMessage struct {
	Invs []models.Inv
}

// GetSqueaksMessage asks a peer for items matching a locator.
type GetSqueaksMessage struct {
	Locator models.CSqueakLocator
}

// ShareSqueaksMessage asks a peer to announce (via Inv) items matching
// a locator that the requester doesn't have yet.
type ShareSqueaksMessage struct {
	Locator models.CSqueakLocator
}

// SqueakMessage carries one content item, addressed by hash for the
// type=1 getdata reply. Signature and AuthorPubkey travel alongside the
// item rather than inside it, so Item's canonical serialization (and
// therefore its hash) never depends on how it was authenticated.
type SqueakMessage struct {
	Item         models.ContentItem
	Signature    []byte
	AuthorPubkey []byte
}

// OfferMessage carries a seller's WireOffer, addressed by item hash for
// the type=2 getdata reply.
type OfferMessage struct {
	ItemHash [32]byte
	Offer    models.WireOffer
}
