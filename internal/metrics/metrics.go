// Package metrics exposes Prometheus collectors for the hearth chat service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks the number of live WebSocket connections.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_connections_active",
			Help: "Currently connected WebSocket clients",
		},
	)

	// IntentsTotal counts client intents by event name.
	IntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_intents_total",
			Help: "Client intents processed, by event",
		},
		[]string{"event"},
	)

	// MessagesRouted counts user messages fanned out to room peers.
	MessagesRouted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_messages_routed_total",
			Help: "User messages routed to room broadcast groups",
		},
	)

	// RoomsCreated counts successful room creations.
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_rooms_created_total",
			Help: "Rooms created by clients",
		},
	)

	// RateLimitDrops counts intents discarded by the per-connection limiter.
	RateLimitDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_rate_limit_drops_total",
			Help: "Client intents dropped due to rate limiting",
		},
	)

	// ClientsDropped counts clients removed because their send buffer filled.
	ClientsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_clients_dropped_total",
			Help: "Clients dropped due to a full send buffer",
		},
	)
)
