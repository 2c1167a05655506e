package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamEvents counts change-stream events by routing outcome.
	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hola_chat_stream_events_total",
			Help: "Change stream events seen by the sync controller, by outcome",
		},
		[]string{"outcome"},
	)

	// SyncTransitions counts sync controller state transitions by target state.
	SyncTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hola_chat_sync_transitions_total",
			Help: "Sync controller state transitions, by target state",
		},
		[]string{"state"},
	)

	// SyncEscalations counts persistent subscription failures.
	SyncEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hola_chat_sync_escalations_total",
		Help: "Change stream failure streaks escalated to the session",
	})

	// Sends counts compose pipeline outcomes.
	Sends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hola_chat_sends_total",
			Help: "Messages sent through the compose pipeline, by outcome",
		},
		[]string{"outcome"},
	)

	// GatewayClients tracks websocket clients connected to the realtime gateway.
	GatewayClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hola_chat_gateway_clients",
		Help: "Websocket clients connected to the realtime gateway",
	})

	// GatewayBroadcasts counts change envelopes fanned out by the gateway.
	GatewayBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hola_chat_gateway_broadcasts_total",
			Help: "Change envelopes broadcast by the realtime gateway, by channel",
		},
		[]string{"channel"},
	)
)
