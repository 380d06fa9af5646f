package pgw

import (
	"log/slog"

	"github.com/dantte-lp/gopgw/internal/cdr"
	pgwmetrics "github.com/dantte-lp/gopgw/internal/metrics"
	"github.com/dantte-lp/gopgw/internal/session"
)

// Reply texts sent back over the datagram socket. Part of the wire
// contract: ASCII, no framing.
const (
	ReplyCreated  = "created"
	ReplyActive   = "active"
	ReplyRejected = "rejected"
)

// HandleIMSI processes one decoded IMSI and returns the reply text.
// Implements netio.PacketHandler.
//
// The created CDR is appended inside the table's critical section, via
// the Touch callback: a concurrent drain or sweep could otherwise remove
// the session and write its removal record before the create record
// lands, inverting the per-IMSI order in the log. Removal and rejection
// records carry no such hazard and are written after the table operation.
func (s *Server) HandleIMSI(imsi string) string {
	s.metrics.PacketReceived()

	if s.table.IsBlacklisted(imsi) {
		s.metrics.SessionEvent(pgwmetrics.EventRejected)
		s.appendCDR(imsi, cdr.ActionRejected)
		s.logger.Info("blacklisted IMSI rejected", slog.String("imsi", imsi))
		return ReplyRejected
	}

	res := s.table.Touch(imsi, func() {
		s.appendCDR(imsi, cdr.ActionCreated)
	})
	if res == session.Created {
		s.metrics.SessionEvent(pgwmetrics.EventCreated)
		s.logger.Info("session created", slog.String("imsi", imsi))
		return ReplyCreated
	}

	s.metrics.SessionEvent(pgwmetrics.EventRefreshed)
	s.logger.Debug("session refreshed", slog.String("imsi", imsi))
	return ReplyActive
}

// PacketDropped records a datagram dropped before the session table.
// Implements netio.PacketHandler.
func (s *Server) PacketDropped() {
	s.metrics.PacketDropped()
}

// appendCDR writes one audit record, counting failures. The writer logs
// its own diagnostics; nothing is dropped silently.
func (s *Server) appendCDR(imsi string, action cdr.Action) {
	if err := s.cdr.Append(imsi, action); err != nil {
		s.metrics.CDRWriteError()
	}
}
