// Package metrics defines the Prometheus collectors an Engine updates as it
// runs: peer and discovered-channel table sizes, per-worker send/receive
// counts, and parser error counts broken down by flag.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every metric one Engine instance updates. Each Engine
// owns its own Collectors registered under a distinct constant label so
// that multiple engines in one process (as in tests) don't collide.
type Collectors struct {
	PeerTableSize      prometheus.Gauge
	DiscoveredChannels prometheus.Gauge
	MessagesSent       *prometheus.CounterVec
	MessagesReceived   *prometheus.CounterVec
	ParseErrors        *prometheus.CounterVec
	WorkerRestarts     *prometheus.CounterVec
}

// New constructs a Collectors with engineID as the constant "engine" label
// value, ready to be registered against reg.
func New(reg prometheus.Registerer, engineID string) *Collectors {
	constLabels := prometheus.Labels{"engine": engineID}

	c := &Collectors{
		PeerTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mchat",
			Name:        "peer_table_size",
			Help:        "Current number of peers tracked in the peer table.",
			ConstLabels: constLabels,
		}),
		DiscoveredChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mchat",
			Name:        "discovered_channels",
			Help:        "Current number of channels learned from CDSC beacons.",
			ConstLabels: constLabels,
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "mchat",
			Name:        "messages_sent_total",
			Help:        "Messages emitted by worker and kind.",
			ConstLabels: constLabels,
		}, []string{"worker", "kind"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "mchat",
			Name:        "messages_received_total",
			Help:        "Messages accepted (validated) by worker and kind.",
			ConstLabels: constLabels,
		}, []string{"worker", "kind"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "mchat",
			Name:        "parse_errors_total",
			Help:        "Recoverable parse error occurrences by flag name.",
			ConstLabels: constLabels,
		}, []string{"flag"}),
		WorkerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "mchat",
			Name:        "worker_restarts_total",
			Help:        "Events reported by the worker supervisor, by event type.",
			ConstLabels: constLabels,
		}, []string{"worker"}),
	}

	if reg != nil {
		reg.MustRegister(c.PeerTableSize, c.DiscoveredChannels, c.MessagesSent, c.MessagesReceived, c.ParseErrors, c.WorkerRestarts)
	}

	return c
}
