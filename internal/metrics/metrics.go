// Package metrics holds the Prometheus collectors of the session layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "huddle",
		Name:      "signal_connections",
		Help:      "Registered signaling connections.",
	})

	ReconnectGraceExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "reconnect_grace_expired_total",
		Help:      "Users that did not reconnect within the grace period.",
	})

	MessagesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "messages_delivered_total",
		Help:      "Chat frames handed to connections, by delivery path.",
	}, []string{"path"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "frames_dropped_total",
		Help:      "Frames not delivered, by reason.",
	}, []string{"reason"})

	SignalsUndelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "signals_undelivered_total",
		Help:      "Call signals dropped because the peer was offline.",
	}, []string{"event"})

	GroupCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "huddle",
		Name:      "group_calls_active",
		Help:      "Group calls with at least one participant.",
	})

	RelayRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "huddle",
		Name:      "relay_rooms",
		Help:      "Relay rooms alive.",
	})

	RelayObjects = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "huddle",
		Name:      "relay_objects",
		Help:      "Live relay transports, producers and consumers.",
	}, []string{"kind"})

	WorkerLoad = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "huddle",
		Name:      "relay_worker_rooms",
		Help:      "Rooms hosted per relay worker.",
	}, []string{"worker"})
)
