// Package metrics exposes prometheus collectors for the signaling core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LiveRooms tracks the number of rooms currently registered.
	LiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_live_rooms",
		Help: "Number of rooms currently registered in the hub.",
	})

	// LiveParticipants tracks connected participants across all rooms.
	LiveParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_live_participants",
		Help: "Number of participants currently connected.",
	})

	// RelayedMessages counts signaling messages relayed between peers,
	// labeled by message kind.
	RelayedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_relayed_messages_total",
		Help: "Signaling messages relayed between participants.",
	}, []string{"kind"})

	// DroppedMessages counts messages dropped because a participant's
	// outbound queue was full.
	DroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_dropped_messages_total",
		Help: "Messages dropped due to a full participant send queue.",
	})
)
