package pgw

// MetricsReporter receives gateway events for export. The concrete
// implementation lives in internal/metrics; the engine depends only on
// this interface so tests and metric-less deployments need no registry.
type MetricsReporter interface {
	// PacketReceived records one successfully decoded datagram.
	PacketReceived()

	// PacketDropped records one datagram discarded before the table.
	PacketDropped()

	// SessionEvent records a single session transition (created,
	// refreshed, rejected).
	SessionEvent(event string)

	// SessionsRemoved records n sessions leaving the table for the given
	// event (timeout, offloaded).
	SessionsRemoved(n int, event string)

	// CDRWriteError records one skipped or failed CDR append.
	CDRWriteError()
}

// noopMetrics is the default reporter when no collector is configured.
type noopMetrics struct{}

func (noopMetrics) PacketReceived()             {}
func (noopMetrics) PacketDropped()              {}
func (noopMetrics) SessionEvent(string)         {}
func (noopMetrics) SessionsRemoved(int, string) {}
func (noopMetrics) CDRWriteError()              {}
