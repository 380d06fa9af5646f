package netio

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"

	"github.com/dantte-lp/gopgw/internal/bcd"
)

// PacketHandler decides the gateway's response to one decoded IMSI.
// This interface decouples the receiver from the session engine so the
// transport can be tested against a fake handler.
type PacketHandler interface {
	// HandleIMSI processes a decoded IMSI and returns the reply text to
	// send back to the packet's source ("created", "active" or
	// "rejected").
	HandleIMSI(imsi string) string

	// PacketDropped records a datagram discarded before reaching the
	// session table (BCD decode failure).
	PacketDropped()
}

// Receiver reads IMSI datagrams from a Listener and routes them through a
// PacketHandler, sending the handler's reply back to the packet source.
//
// Per-packet failures never stop the loop: decode failures drop the packet
// with a warning and no reply; send failures are logged and the loop
// continues. Only cancellation, a closed socket, or a fatal read error
// terminates Run.
type Receiver struct {
	handler PacketHandler
	logger  *slog.Logger
}

// NewReceiver creates a Receiver that routes packets to the given handler.
func NewReceiver(handler PacketHandler, logger *slog.Logger) *Receiver {
	return &Receiver{
		handler: handler,
		logger:  logger.With(slog.String("component", "netio.receiver")),
	}
}

// Run reads from the listener until ctx is cancelled or a fatal socket
// error occurs. Returns nil on cancellation or socket close, the read
// error otherwise so the caller can treat it as fatal.
func (r *Receiver) Run(ctx context.Context, ln *Listener) error {
	buf := make([]byte, MaxDatagramSize)

	for {
		n, src, err := ln.Recv(ctx, buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil // Shutdown path.
			}
			r.logger.Error("fatal recv error", slog.String("error", err.Error()))
			return err
		}

		r.handlePacket(ln, buf[:n], src)
	}
}

// handlePacket performs one decode-handle-reply cycle.
func (r *Receiver) handlePacket(ln *Listener, payload []byte, src netip.AddrPort) {
	imsi, err := bcd.Decode(payload)
	if err != nil {
		r.handler.PacketDropped()
		r.logger.Warn("failed to decode BCD IMSI, packet dropped",
			slog.Int("bytes", len(payload)),
			slog.String("src", src.String()),
			slog.String("error", err.Error()),
		)
		return // No reply for undecodable packets.
	}

	r.logger.Debug("received IMSI",
		slog.String("imsi", imsi),
		slog.String("src", src.String()),
	)

	reply := r.handler.HandleIMSI(imsi)

	if err := ln.Reply(src, []byte(reply)); err != nil {
		// Send failures are transient from the gateway's point of view:
		// the peer may simply be gone.
		r.logger.Warn("reply send failed",
			slog.String("imsi", imsi),
			slog.String("src", src.String()),
			slog.String("error", err.Error()),
		)
	}
}
