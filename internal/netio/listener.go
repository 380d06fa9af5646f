// Package netio implements the datagram transport of the PGW emulator:
// a UDP listener for incoming BCD-encoded IMSI packets and the receive
// loop that feeds them to the session engine.
package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// MaxDatagramSize is the receive buffer size per packet. A packed 15-digit
// IMSI is 8 bytes; anything larger than this is operator error and the
// excess is truncated by the kernel.
const MaxDatagramSize = 512

// recvTimeout is the per-read deadline. It bounds how long the receive
// loop can block without observing a shutdown request.
const recvTimeout = 1 * time.Second

// ErrUnexpectedConnType indicates ListenPacket returned something other
// than a *net.UDPConn.
var ErrUnexpectedConnType = errors.New("unexpected connection type")

// Listener wraps a UDP socket bound to the gateway's datagram address.
// Reads carry a short deadline so the caller can observe cancellation
// between packets; replies go back to the packet's source address over
// the same socket.
type Listener struct {
	conn *net.UDPConn
}

// NewListener binds a UDP socket to addr ("ip:port"). The socket is
// created with SO_REUSEADDR so a restart does not race the kernel's
// lingering socket state. Bind failure is fatal to the caller.
func NewListener(ctx context.Context, addr string) (*Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setListenerOpts(c)
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen UDP %s: %w", addr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, fmt.Errorf("listen UDP %s: %w: %w", addr, ErrUnexpectedConnType, closeErr)
	}

	return &Listener{conn: conn}, nil
}

// setListenerOpts configures the datagram socket: SO_REUSEADDR for fast
// rebinding after restart.
func setListenerOpts(c syscall.RawConn) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return fmt.Errorf("rawconn control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", sockErr)
	}
	return nil
}

// Recv blocks until a datagram arrives or ctx is cancelled. Each read
// carries a 1 second deadline; deadline expiries re-check ctx and retry,
// so shutdown latency is bounded by the deadline.
//
// Returns the packet bytes (valid until the next Recv on this buffer),
// the source address, and any terminal error. A ctx error or a closed
// socket ends the loop; other read errors are returned to the caller to
// classify.
func (l *Listener) Recv(ctx context.Context, buf []byte) (int, netip.AddrPort, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, netip.AddrPort{}, fmt.Errorf("listener recv: %w", err)
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(recvTimeout)); err != nil {
			return 0, netip.AddrPort{}, fmt.Errorf("set read deadline: %w", err)
		}

		n, src, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue // Deadline expiry: poll ctx and keep listening.
			}
			return 0, netip.AddrPort{}, fmt.Errorf("listener read: %w", err)
		}

		return n, src, nil
	}
}

// Reply sends payload to the source address of a received packet.
func (l *Listener) Reply(dst netip.AddrPort, payload []byte) error {
	if _, err := l.conn.WriteToUDPAddrPort(payload, dst); err != nil {
		return fmt.Errorf("reply to %s: %w", dst, err)
	}
	return nil
}

// LocalAddr returns the bound datagram address.
func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// Close closes the underlying socket. A blocked Recv returns with
// net.ErrClosed.
func (l *Listener) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}
