package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aeolun/udpchat/pkg/protocol"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	registry *prometheus.Registry

	// Transport metrics
	packetsReceived prometheus.Counter
	packetsDropped  *prometheus.CounterVec // by reason

	// Message type metrics
	messagesReceived *prometheus.CounterVec // by verb
	messagesSent     *prometheus.CounterVec // by verb

	// Session metrics
	activeSessions       prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter
	joinsRejected        *prometheus.CounterVec // by reason

	// Routing metrics
	routeFanout          prometheus.Histogram
	unresolvedRecipients prometheus.Counter
	deliveryFailures     prometheus.Counter
}

// NewMetrics creates a metrics instance backed by its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		packetsReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "udpchat_packets_received_total",
				Help: "Total number of datagrams read from the socket",
			},
		),
		packetsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "udpchat_packets_dropped_total",
				Help: "Total number of inbound datagrams dropped before dispatch",
			},
			[]string{"reason"},
		),
		messagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "udpchat_messages_received_total",
				Help: "Total number of messages received from clients by verb",
			},
			[]string{"verb"},
		),
		messagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "udpchat_messages_sent_total",
				Help: "Total number of messages sent to clients by verb",
			},
			[]string{"verb"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "udpchat_active_sessions",
				Help: "Current number of joined sessions",
			},
		),
		sessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "udpchat_sessions_created_total",
				Help: "Total number of successful joins",
			},
		),
		sessionsDisconnected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "udpchat_sessions_disconnected_total",
				Help: "Total number of sessions removed by disconnect",
			},
		),
		joinsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "udpchat_joins_rejected_total",
				Help: "Total number of rejected joins by reason",
			},
			[]string{"reason"},
		),
		routeFanout: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "udpchat_route_fanout",
				Help:    "Number of recipients that received each routed message",
				Buckets: []float64{0, 1, 2, 3, 5, 10},
			},
		),
		unresolvedRecipients: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "udpchat_unresolved_recipients_total",
				Help: "Total number of recipients named in send_message that had no session",
			},
		),
		deliveryFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "udpchat_delivery_failures_total",
				Help: "Total number of forward_message writes that failed",
			},
		),
	}
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and embedding
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPacketReceived increments the datagram counter
func (m *Metrics) RecordPacketReceived() {
	m.packetsReceived.Inc()
}

// RecordPacketDropped increments the drop counter for a reason
func (m *Metrics) RecordPacketDropped(reason string) {
	m.packetsDropped.WithLabelValues(reason).Inc()
}

// RecordKernelDrops counts datagrams the kernel discarded before they were read
func (m *Metrics) RecordKernelDrops(n uint64) {
	m.packetsDropped.WithLabelValues("kernel_rcvbuf").Add(float64(n))
}

// RecordMessageReceived increments the received counter for a verb
func (m *Metrics) RecordMessageReceived(verb protocol.Verb) {
	m.messagesReceived.WithLabelValues(verbLabel(verb)).Inc()
}

// RecordMessageSent increments the sent counter for a verb
func (m *Metrics) RecordMessageSent(verb protocol.Verb) {
	m.messagesSent.WithLabelValues(verbLabel(verb)).Inc()
}

// RecordActiveSessions updates the active session count
func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordSessionCreated increments the session creation counter
func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

// RecordSessionDisconnected increments the session disconnection counter
func (m *Metrics) RecordSessionDisconnected() {
	m.sessionsDisconnected.Inc()
}

// RecordJoinRejected increments the rejected join counter
func (m *Metrics) RecordJoinRejected(reason string) {
	m.joinsRejected.WithLabelValues(reason).Inc()
}

// RecordRoute records one routed message
func (m *Metrics) RecordRoute(result RouteResult) {
	m.routeFanout.Observe(float64(len(result.Delivered)))
	m.unresolvedRecipients.Add(float64(len(result.Unresolved)))
	m.deliveryFailures.Add(float64(len(result.Failed)))
}

// verbLabel folds every unrecognised verb into one "unknown" label
func verbLabel(verb protocol.Verb) string {
	if verb.Known() {
		return string(verb)
	}
	return "unknown"
}
