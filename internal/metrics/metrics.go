// Package metrics provides Prometheus metrics for the nettest server and client.
//
// All Record methods are safe to call on a nil receiver, which discards the
// observation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "nettest"
)

// ServerMetrics contains the metrics exported by the line protocol server.
type ServerMetrics struct {
	// Connection metrics
	ConnectionsActive   *prometheus.GaugeVec
	ConnectionsTotal    *prometheus.CounterVec
	ConnectionsRejected prometheus.Counter

	// Protocol metrics
	Commands       *prometheus.CounterVec
	ProtocolErrors *prometheus.CounterVec
	SizeMismatches prometheus.Counter
	Panics         prometheus.Counter

	// Data transfer metrics
	BytesSent     *prometheus.CounterVec
	BytesReceived *prometheus.CounterVec
}

// NewServerMetrics creates server metrics registered with reg.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	factory := promauto.With(reg)

	return &ServerMetrics{
		ConnectionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Number of currently open connections by transport",
		}, []string{"transport"}),
		ConnectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Total accepted connections by transport",
		}, []string{"transport"}),
		ConnectionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_rejected_total",
			Help:      "Connections refused because max_connections was reached",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "commands_total",
			Help:      "Commands handled by name",
		}, []string{"command"}),
		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "protocol_errors_total",
			Help:      "Connections ended by a protocol error, by kind",
		}, []string{"kind"}),
		SizeMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "upload_size_mismatches_total",
			Help:      "Uploads whose counted bytes differ from the declared size",
		}),
		Panics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "panics_total",
			Help:      "Connection handlers that panicked",
		}),
		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "bytes_sent_total",
			Help:      "Bytes written to clients by command",
		}, []string{"command"}),
		BytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "bytes_received_total",
			Help:      "Bytes read from clients by command",
		}, []string{"command"}),
	}
}

// RecordConnect records an accepted connection.
func (m *ServerMetrics) RecordConnect(transport string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(transport).Inc()
	m.ConnectionsTotal.WithLabelValues(transport).Inc()
}

// RecordDisconnect records a closed connection.
func (m *ServerMetrics) RecordDisconnect(transport string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(transport).Dec()
}

// RecordRejected records a connection refused at the limit.
func (m *ServerMetrics) RecordRejected() {
	if m == nil {
		return
	}
	m.ConnectionsRejected.Inc()
}

// RecordCommand records a dispatched command.
func (m *ServerMetrics) RecordCommand(command string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command).Inc()
}

// RecordProtocolError records a connection ended by kind of failure.
func (m *ServerMetrics) RecordProtocolError(kind string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(kind).Inc()
}

// RecordSizeMismatch records an upload whose count differs from its declaration.
func (m *ServerMetrics) RecordSizeMismatch() {
	if m == nil {
		return
	}
	m.SizeMismatches.Inc()
}

// RecordPanic records a recovered handler panic.
func (m *ServerMetrics) RecordPanic() {
	if m == nil {
		return
	}
	m.Panics.Inc()
}

// RecordBytesSent records bytes written for command.
func (m *ServerMetrics) RecordBytesSent(command string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.BytesSent.WithLabelValues(command).Add(float64(bytes))
}

// RecordBytesReceived records bytes read for command.
func (m *ServerMetrics) RecordBytesReceived(command string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.BytesReceived.WithLabelValues(command).Add(float64(bytes))
}

// ClientMetrics contains the metrics recorded by a measurement run.
type ClientMetrics struct {
	Probes     *prometheus.CounterVec
	RTT        *prometheus.HistogramVec
	Throughput *prometheus.GaugeVec
	Bytes      *prometheus.CounterVec
}

// NewClientMetrics creates client metrics registered with reg.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	factory := promauto.With(reg)

	return &ClientMetrics{
		Probes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "probes_total",
			Help:      "Probes run by task and result",
		}, []string{"task", "result"}),
		RTT: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "rtt_seconds",
			Help:      "Round trip time of latency probes",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"task"}),
		Throughput: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "throughput_mbps",
			Help:      "Throughput of the last bandwidth run",
		}, []string{"task"}),
		Bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "bytes_total",
			Help:      "Payload bytes transferred by bandwidth runs",
		}, []string{"task"}),
	}
}

// RecordProbe records the outcome of one run. result is "ok" or an error class.
func (m *ClientMetrics) RecordProbe(task, result string) {
	if m == nil {
		return
	}
	m.Probes.WithLabelValues(task, result).Inc()
}

// RecordRTT records a latency sample.
func (m *ClientMetrics) RecordRTT(task string, seconds float64) {
	if m == nil {
		return
	}
	m.RTT.WithLabelValues(task).Observe(seconds)
}

// RecordTransfer records a completed bandwidth run.
func (m *ClientMetrics) RecordTransfer(task string, bytes int64, mbps float64) {
	if m == nil {
		return
	}
	m.Bytes.WithLabelValues(task).Add(float64(bytes))
	m.Throughput.WithLabelValues(task).Set(mbps)
}
