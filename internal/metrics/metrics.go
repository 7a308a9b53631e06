package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coopdoor"

// NewRegistry creates a Prometheus registry with the Go runtime and process
// collectors already registered
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler that exposes reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// LinkMetrics counts reliable link activity
type LinkMetrics struct {
	FramesSent      *prometheus.CounterVec // labels: type=command|accept
	Retransmissions prometheus.Counter
	FramesDiscarded *prometheus.CounterVec // labels: reason=corrupt|stale|spurious|unexpected
	Submits         *prometheus.CounterVec // labels: result=acked|exhausted|busy|cancelled|io_fault
	AckLatency      prometheus.Histogram
}

// NewLinkMetrics registers and returns the link metrics. A nil registry
// creates unregistered collectors, which is convenient in tests.
func NewLinkMetrics(reg prometheus.Registerer) *LinkMetrics {
	m := &LinkMetrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "frames_sent_total",
			Help:      "Frames transmitted by the controller.",
		}, []string{"type"}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "retransmissions_total",
			Help:      "Command frames sent again after a missed acknowledgment.",
		}),
		FramesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "frames_discarded_total",
			Help:      "Received frames dropped without completing a command.",
		}, []string{"reason"}),
		Submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "submits_total",
			Help:      "Commands submitted to the link by outcome.",
		}, []string{"result"}),
		AckLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "ack_latency_seconds",
			Help:      "Time from first transmission to matching acknowledgment.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.FramesSent, m.Retransmissions, m.FramesDiscarded, m.Submits, m.AckLatency)
	}
	return m
}

// DoorMetrics tracks the controller's view of the door
type DoorMetrics struct {
	State       *prometheus.GaugeVec // labels: state; 1 for the current state
	Unconfirmed prometheus.Gauge
	Transitions *prometheus.CounterVec // labels: from, to
}

// NewDoorMetrics registers and returns the door metrics
func NewDoorMetrics(reg prometheus.Registerer) *DoorMetrics {
	m := &DoorMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "door",
			Name:      "state",
			Help:      "Current door state (1 for the active state).",
		}, []string{"state"}),
		Unconfirmed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "door",
			Name:      "unconfirmed",
			Help:      "1 when the last command was not confirmed by the door.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "door",
			Name:      "transitions_total",
			Help:      "Door state transitions.",
		}, []string{"from", "to"}),
	}
	if reg != nil {
		reg.MustRegister(m.State, m.Unconfirmed, m.Transitions)
	}
	return m
}

// BridgeMetrics counts radio bridge traffic
type BridgeMetrics struct {
	Clients       prometheus.Gauge
	Rejected      prometheus.Counter
	FramesRelayed *prometheus.CounterVec // labels: direction=to_radio|to_client
}

// NewBridgeMetrics registers and returns the bridge metrics
func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "clients",
			Help:      "Connected bridge clients (0 or 1).",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "rejected_clients_total",
			Help:      "Clients refused because the radio was already in use.",
		}),
		FramesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "frames_relayed_total",
			Help:      "Frames relayed between the radio and the client.",
		}, []string{"direction"}),
	}
	if reg != nil {
		reg.MustRegister(m.Clients, m.Rejected, m.FramesRelayed)
	}
	return m
}
