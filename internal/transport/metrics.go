package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ocf"

// Metrics holds the Prometheus instruments of one transport.
type Metrics struct {
	// Traffic, labelled by socket role
	PacketsReceived *prometheus.CounterVec
	BytesReceived   *prometheus.CounterVec
	PacketsSent     *prometheus.CounterVec
	BytesSent       *prometheus.CounterVec

	// Faults
	ReceiveErrors  *prometheus.CounterVec
	SendErrors     *prometheus.CounterVec
	PacketsDropped *prometheus.CounterVec

	// Multicast membership, labelled by family and result
	GroupJoins *prometheus.CounterVec

	// Interface-change events acted on
	InterfaceEvents prometheus.Counter

	// Open sockets
	Sockets prometheus.Gauge
}

// NewMetrics registers the transport instruments on reg. A nil reg uses a
// fresh private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		PacketsReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "packets_received_total",
				Help:      "Datagrams delivered to the packet handler",
			},
			[]string{"socket", "cast"},
		),
		BytesReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "bytes_received_total",
				Help:      "Bytes read from sockets",
			},
			[]string{"socket"},
		),
		PacketsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "packets_sent_total",
				Help:      "Datagrams written to sockets",
			},
			[]string{"socket", "cast"},
		),
		BytesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "bytes_sent_total",
				Help:      "Bytes written to sockets",
			},
			[]string{"socket"},
		),
		ReceiveErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "receive_errors_total",
				Help:      "Failed socket reads and decrypts",
			},
			[]string{"socket", "stage"},
		),
		SendErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "send_errors_total",
				Help:      "Failed socket writes and encrypts",
			},
			[]string{"socket", "stage"},
		),
		PacketsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "packets_dropped_total",
				Help:      "Datagrams read but not delivered",
			},
			[]string{"socket", "reason"},
		),
		GroupJoins: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "group_joins_total",
				Help:      "Multicast group join attempts",
			},
			[]string{"family", "result"},
		),
		InterfaceEvents: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "interface_events_total",
				Help:      "Interfaces that came up and were rejoined",
			},
		),
		Sockets: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "sockets",
				Help:      "Open registry sockets",
			},
		),
	}
}

func castLabel(multicast bool) string {
	if multicast {
		return "multicast"
	}
	return "unicast"
}
