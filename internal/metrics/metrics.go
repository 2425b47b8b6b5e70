// Package metrics declares the node's Prometheus instrumentation as
// package-level collectors, following the pack's pattern of a single
// metrics.go registering everything via promauto at import time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActivePeers is the number of currently connected peer connections.
	ActivePeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squeaknode_active_peers",
		Help: "Number of currently connected peer connections",
	})

	// PendingReceivedOffers is the number of received offers this node
	// has not yet paid or let expire.
	PendingReceivedOffers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squeaknode_pending_received_offers",
		Help: "Number of received offers not yet paid or expired",
	})

	// LatestSettleIndex is the highest Lightning settle index this node
	// has recorded a ReceivedPayment for.
	LatestSettleIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squeaknode_latest_settle_index",
		Help: "Highest settle index recorded in a ReceivedPayment",
	})

	// ItemsReceivedTotal counts items persisted by save_item, including
	// both self-authored and peer-delivered items.
	ItemsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "squeaknode_items_received_total",
		Help: "Total items persisted via save_item",
	})

	// OffersCreatedTotal counts freshly minted SentOffers (cache hits
	// are not counted, since no new hold invoice was created).
	OffersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "squeaknode_offers_created_total",
		Help: "Total SentOffers created (excludes cache reuse)",
	})

	// PaymentsSettledTotal counts successfully validated settlements,
	// buyer and seller side combined, labeled by role.
	PaymentsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squeaknode_payments_settled_total",
		Help: "Total settled payments with a valid preimage",
	}, []string{"role"})
)
