package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedChargePoints tracks the number of live charge point connections.
	ConnectedChargePoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voltcore_connected_charge_points",
		Help: "The number of charge points with a live WebSocket connection.",
	})

	// ActiveTransactions tracks the number of transactions currently active.
	ActiveTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voltcore_active_transactions",
		Help: "The number of charging transactions currently active.",
	})

	// MessagesReceived counts inbound protocol messages, labeled by action.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voltcore_messages_received_total",
		Help: "Total number of messages received from charge points.",
	}, []string{"action"})

	// StartsRejected counts refused start-transaction requests, labeled by cause.
	StartsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voltcore_starts_rejected_total",
		Help: "Total number of rejected start-transaction requests.",
	}, []string{"cause"})

	// CommandsSent counts centrally initiated commands, labeled by action and outcome.
	CommandsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voltcore_commands_sent_total",
		Help: "Total number of centrally initiated commands by outcome.",
	}, []string{"action", "outcome"})
)
