// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Switch forwarding outcomes, used as the "result" label.
const (
	ResultForwarded = "forwarded"
	ResultFallback  = "fallback"
	ResultDropped   = "dropped"
	ResultMalformed = "malformed"
	ResultAborted   = "aborted"
)

// Host traffic directions, used as the "direction" label.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
	DirectionIgnored  = "ignored"
)

var (
	// SwitchPacketsTotal counts packets taken off switch ports by outcome
	SwitchPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lansim_switch_packets_total",
			Help: "Total number of packets handled by the switch forwarding loop",
		},
		[]string{"result"},
	)

	// SwitchDeliverSeconds measures how long the forwarding loop is held by a delivery
	SwitchDeliverSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lansim_switch_deliver_seconds",
			Help:    "Time spent handing a packet to the destination host in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12), // 1µs to ~4s
		},
	)

	// HostPacketsTotal counts packets per host and direction
	HostPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lansim_host_packets_total",
			Help: "Total number of packets sent or received by a host",
		},
		[]string{"host", "direction"},
	)

	// MailboxPending tracks payloads held for, or being handed to, a host mailbox
	MailboxPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lansim_mailbox_pending",
			Help: "Number of received payloads in or entering host mailboxes, not yet collected by applications",
		},
		[]string{"host"},
	)
)
