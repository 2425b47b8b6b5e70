package controller

import (
	"context"
	"encoding/json"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/metrics"
	"github.com/squeaknode/node/internal/models"
	"github.com/squeaknode/node/internal/offer"
	"github.com/squeaknode/node/internal/peer"
	"github.com/squeaknode/node/internal/wire"
)

var _ peer.Handler = (*Controller)(nil)

// Handle dispatches one inbound wire message to the operation it maps
// to. ping/pong never reach here — Connection's read loop answers them.
// version/verack are consumed by the handshake; one arriving after it
// falls to the default case and is rejected as a protocol violation.
func (c *Controller) Handle(ctx context.Context, conn *peer.Connection, command wire.Command, payload json.RawMessage) error {
	switch command {
	case wire.CmdGetSqueaks:
		return c.handleGetSqueaks(ctx, conn, payload)
	case wire.CmdShareSqueaks:
		return c.handleShareSqueaks(ctx, conn, payload)
	case wire.CmdInv:
		return c.handleInv(ctx, conn, payload)
	case wire.CmdGetData:
		return c.handleGetData(ctx, conn, payload)
	case wire.CmdSqueak:
		return c.handleSqueak(ctx, payload)
	case wire.CmdOffer:
		return c.handleOffer(ctx, conn, payload)
	default:
		return apperrors.New(apperrors.PeerProtocolViolation, "unhandled command: "+string(command))
	}
}

func (c *Controller) handleGetSqueaks(ctx context.Context, conn *peer.Connection, payload json.RawMessage) error {
	var msg wire.GetSqueaksMessage
	if err := wire.DecodePayload(payload, &msg); err != nil {
		return err
	}

	seen := make(map[[32]byte]bool)
	invs := make([]models.Inv, 0)
	for _, want := range msg.Locator.Interested {
		hashes, err := c.store.LookupItems(ctx, []string{want.Address}, want.MinBlockHeight, want.MaxBlockHeight)
		if err != nil {
			c.log.Error("lookup items for getsqueaks failed", "error", err, "address", want.Address)
			continue
		}
		for _, h := range hashes {
			if seen[h] {
				continue
			}
			seen[h] = true
			invs = append(invs, models.Inv{Type: models.InvTypeItem, Hash: h})
		}
	}
	return conn.Send(wire.CmdInv, wire.InvMessage{Invs: invs})
}

func (c *Controller) handleShareSqueaks(ctx context.Context, conn *peer.Connection, payload json.RawMessage) error {
	var msg wire.ShareSqueaksMessage
	if err := wire.DecodePayload(payload, &msg); err != nil {
		return err
	}

	seen := make(map[[32]byte]bool)
	invs := make([]models.Inv, 0)
	for _, want := range msg.Locator.Interested {
		hashes, err := c.LookupItems(ctx, []string{want.Address}, want.MinBlockHeight, want.MaxBlockHeight)
		if err != nil {
			c.log.Error("lookup items for sharesqueaks failed", "error", err, "address", want.Address)
			continue
		}
		for _, h := range hashes {
			if seen[h] {
				continue
			}
			seen[h] = true
			invs = append(invs, models.Inv{Type: models.InvTypeItem, Hash: h})
		}
	}
	return conn.Send(wire.CmdInv, wire.InvMessage{Invs: invs})
}

func (c *Controller) handleInv(ctx context.Context, conn *peer.Connection, payload json.RawMessage) error {
	var msg wire.InvMessage
	if err := wire.DecodePayload(payload, &msg); err != nil {
		return err
	}
	useful, err := c.FilterUnknown(ctx, msg.Invs)
	if err != nil {
		return err
	}
	if len(useful) == 0 {
		return nil
	}
	return conn.Send(wire.CmdGetData, wire.GetDataMessage{Invs: useful})
}

func (c *Controller) handleGetData(ctx context.Context, conn *peer.Connection, payload json.RawMessage) error {
	var msg wire.GetDataMessage
	if err := wire.DecodePayload(payload, &msg); err != nil {
		return err
	}

	for _, inv := range msg.Invs {
		item, found, err := c.store.GetItem(ctx, inv.Hash)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		switch inv.Type {
		case models.InvTypeItem:
			ciphertextOnly := *item
			ciphertextOnly.DecryptionKey = nil
			if err := conn.Send(wire.CmdSqueak, wire.SqueakMessage{Item: ciphertextOnly}); err != nil {
				return err
			}
		case models.InvTypeKey:
			if !item.HasKey() {
				continue
			}
			wireOffer, err := c.GetBuyOffer(ctx, item.Hash, conn.RemoteHost(), conn.RemoteListenPort())
			if err != nil {
				c.log.Error("failed to build buy offer for getdata request", "error", err, "item_hash", item.Hash)
				continue
			}
			if err := conn.Send(wire.CmdOffer, wire.OfferMessage{ItemHash: item.Hash, Offer: *wireOffer}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Controller) handleSqueak(ctx context.Context, payload json.RawMessage) error {
	var msg wire.SqueakMessage
	if err := wire.DecodePayload(payload, &msg); err != nil {
		return err
	}
	if err := c.SaveItem(ctx, &msg.Item, msg.Signature, msg.AuthorPubkey, false); err != nil {
		c.log.Warn("rejected squeak from peer", "error", err, "item_hash", msg.Item.Hash)
	}
	return nil
}

func (c *Controller) handleOffer(ctx context.Context, conn *peer.Connection, payload json.RawMessage) error {
	var msg wire.OfferMessage
	if err := wire.DecodePayload(payload, &msg); err != nil {
		return err
	}

	receivedOffer, err := c.offers.UnpackOffer(ctx, offer.UnpackOfferParams{
		ItemHash:           msg.ItemHash,
		Wire:               msg.Offer,
		MaxAcceptablePrice: c.cfg.MaxAcceptablePriceMsat,
		PeerHost:           conn.RemoteHost(),
		PeerPort:           conn.RemoteListenPort(),
	})
	if err != nil {
		c.log.Warn("rejected offer from peer", "error", err, "item_hash", msg.ItemHash)
		return nil
	}

	if err := c.store.SaveReceivedOffer(ctx, receivedOffer); err != nil {
		if !apperrors.Idempotent(err) {
			return err
		}
		return nil
	}
	metrics.PendingReceivedOffers.Inc()
	return nil
}
