// Package pgwmetrics exposes Prometheus metrics for the PGW emulator.
package pgwmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "gopgw"
	subsystem = "pgw"
)

// labelEvent is the label naming a session transition or packet outcome.
const labelEvent = "event"

// Session event label values. They mirror the CDR actions plus the
// refresh case, which never produces a CDR line.
const (
	EventCreated   = "created"
	EventRefreshed = "refreshed"
	EventRejected  = "rejected"
	EventTimeout   = "timeout"
	EventOffloaded = "offloaded"
)

// Collector holds all PGW Prometheus metrics.
//
// Metrics cover the datagram plane (packet volumes and drops), the session
// table (active session gauge, transition counters), and the audit trail
// (CDR write failures, which signal a degraded audit log to operators).
type Collector struct {
	// Sessions tracks the number of currently active subscriber sessions.
	Sessions prometheus.Gauge

	// PacketsReceived counts datagrams that decoded to a valid IMSI.
	PacketsReceived prometheus.Counter

	// PacketsDropped counts datagrams dropped before reaching the session
	// table (BCD decode failures).
	PacketsDropped prometheus.Counter

	// SessionEvents counts session transitions by event.
	SessionEvents *prometheus.CounterVec

	// CDRWriteErrors counts CDR appends that were skipped or failed.
	CDRWriteErrors prometheus.Counter
}

// NewCollector creates a Collector with all PGW metrics registered against
// the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics carry the "gopgw_pgw_" prefix (namespace_subsystem) to avoid
// collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.PacketsReceived,
		c.PacketsDropped,
		c.SessionEvents,
		c.CDRWriteErrors,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently active subscriber sessions.",
		}),

		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total datagrams carrying a decodable BCD IMSI.",
		}),

		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total datagrams dropped due to BCD decode failure.",
		}),

		SessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_events_total",
			Help:      "Total session transitions by event.",
		}, []string{labelEvent}),

		CDRWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cdr_write_errors_total",
			Help:      "Total CDR appends skipped or failed.",
		}),
	}
}

// -------------------------------------------------------------------------
// Reporter implementation — consumed by the session engine
// -------------------------------------------------------------------------

// PacketReceived records one successfully decoded datagram.
func (c *Collector) PacketReceived() {
	c.PacketsReceived.Inc()
}

// PacketDropped records one datagram dropped before the session table.
func (c *Collector) PacketDropped() {
	c.PacketsDropped.Inc()
}

// SessionEvent records a session transition. Created increments the active
// session gauge; timeout and offloaded events are recorded per removal via
// SessionsRemoved instead.
func (c *Collector) SessionEvent(event string) {
	c.SessionEvents.WithLabelValues(event).Inc()
	if event == EventCreated {
		c.Sessions.Inc()
	}
}

// SessionsRemoved records n sessions leaving the table for the given
// event (timeout or offloaded) and lowers the active session gauge.
func (c *Collector) SessionsRemoved(n int, event string) {
	if n <= 0 {
		return
	}
	c.SessionEvents.WithLabelValues(event).Add(float64(n))
	c.Sessions.Sub(float64(n))
}

// CDRWriteError records one skipped or failed CDR append.
func (c *Collector) CDRWriteError() {
	c.CDRWriteErrors.Inc()
}
