// Package pgw implements the session engine of the PGW control-plane
// emulator: the datagram-driven session table, the expiry sweeper, the
// rate-limited offload drainer, and the lifecycle coordinator that starts
// and stops them as one unit.
package pgw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gopgw/internal/admin"
	"github.com/dantte-lp/gopgw/internal/cdr"
	"github.com/dantte-lp/gopgw/internal/config"
	"github.com/dantte-lp/gopgw/internal/netio"
	"github.com/dantte-lp/gopgw/internal/session"
)

// shutdownTimeout bounds the admin HTTP server's connection drain during
// teardown.
const shutdownTimeout = 2 * time.Second

// Stop polls for the drain to finish before forcing termination:
// stopPollAttempts * stopPollInterval ~= 2 s.
const (
	stopPollInterval = 200 * time.Millisecond
	stopPollAttempts = 10
)

// httpReadHeaderTimeout guards the admin listener against slow clients.
const httpReadHeaderTimeout = 10 * time.Second

// ErrNotRunning indicates an operation that requires a started gateway.
var ErrNotRunning = errors.New("gateway is not running")

// Server is the PGW control-plane gateway. It owns the session table and
// the CDR writer; the datagram loop, expiry sweeper, offload drainer, and
// admin HTTP handlers all share them under their respective locks and
// none outlives the server.
//
// Two logically-atomic flags govern the lifecycle: running gates every
// loop, offloading enforces single-run drain semantics. Cancellation is
// cooperative: no task is forcibly killed.
type Server struct {
	cfg     *config.Config
	table   *session.Table
	cdr     *cdr.Writer
	metrics MetricsReporter
	logger  *slog.Logger

	running    atomic.Bool
	offloading atomic.Bool

	mu       sync.Mutex
	runCtx   context.Context
	cancel   context.CancelFunc
	httpSrv  *http.Server
	udpAddr  net.Addr
	httpAddr net.Addr

	ready     chan struct{}
	readyOnce sync.Once

	drainWG sync.WaitGroup
}

// Option configures optional Server parameters.
type Option func(*Server)

// WithMetrics sets the MetricsReporter for the gateway. If mr is nil, a
// no-op reporter is used.
func WithMetrics(mr MetricsReporter) Option {
	return func(s *Server) {
		if mr != nil {
			s.metrics = mr
		}
	}
}

// NewServer creates a gateway from the given configuration. The CDR file
// is opened here (append mode); an unopenable file degrades the audit
// trail but does not prevent construction. Call Close to release it.
func NewServer(cfg *config.Config, logger *slog.Logger, opts ...Option) *Server {
	logger = logger.With(slog.String("component", "pgw.server"))

	s := &Server{
		cfg:     cfg,
		table:   session.NewTable(cfg.Blacklist),
		cdr:     cdr.NewWriter(cfg.CDRFile, logger),
		metrics: noopMetrics{},
		logger:  logger,
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the gateway and blocks until it stops: the admin HTTP plane
// and the expiry sweeper run as background tasks, the datagram loop runs
// on the caller's goroutine. On exit all tasks are joined, including any
// offload drainer.
//
// Run is idempotent against re-entry: a second call while running logs a
// warning and returns nil. Bind failures are fatal and returned.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("gateway already running")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.runCtx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	udpLn, err := netio.NewListener(runCtx, net.JoinHostPort(s.cfg.UDPIP, strconv.Itoa(s.cfg.UDPPort)))
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("bind datagram socket: %w", err)
	}

	lc := net.ListenConfig{}
	httpLn, err := lc.Listen(runCtx, "tcp", fmt.Sprintf("0.0.0.0:%d", s.cfg.HTTPPort))
	if err != nil {
		closeErr := udpLn.Close()
		s.running.Store(false)
		return errors.Join(fmt.Errorf("bind admin listener: %w", err), closeErr)
	}

	handler := admin.NewRouter(s, admin.Config{
		DefaultDrainRate: s.cfg.GracefulShutdownRate,
	}, s.logger)

	httpSrv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	s.mu.Lock()
	s.httpSrv = httpSrv
	s.udpAddr = udpLn.LocalAddr()
	s.httpAddr = httpLn.Addr()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	s.logger.Info("gateway started",
		slog.String("udp", udpLn.LocalAddr().String()),
		slog.String("http", httpLn.Addr().String()),
		slog.Int("session_timeout_sec", s.cfg.SessionTimeoutSec),
	)

	var g errgroup.Group

	g.Go(func() error {
		if serveErr := httpSrv.Serve(httpLn); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("admin http serve: %w", serveErr)
		}
		return nil
	})

	g.Go(func() error {
		s.runSweeper(runCtx)
		return nil
	})

	// The datagram loop owns the caller's goroutine. A fatal socket error
	// here cascades into full shutdown below.
	recv := netio.NewReceiver(s, s.logger)
	recvErr := recv.Run(runCtx, udpLn)

	s.running.Store(false)
	cancel()

	s.stopHTTP()

	if closeErr := udpLn.Close(); closeErr != nil {
		s.logger.Warn("failed to close datagram socket", slog.String("error", closeErr.Error()))
	}

	joinErr := g.Wait()
	s.drainWG.Wait()

	s.logger.Info("gateway stopped")
	return errors.Join(recvErr, joinErr)
}

// Stop requests a graceful shutdown. Safe to call from a signal context
// or concurrently with the HTTP /stop path: if no drain is in progress
// one is started at the configured rate, the admin plane stops accepting,
// and Stop waits up to ~2 s for the drain to clear running before forcing
// termination. Calling Stop on a stopped gateway is a no-op.
func (s *Server) Stop() {
	if !s.running.Load() {
		return
	}

	s.logger.Info("stop requested, initiating graceful shutdown")

	if err := s.StartOffload(s.cfg.GracefulShutdownRate); err != nil && !errors.Is(err, admin.ErrOffloadInProgress) {
		s.logger.Warn("failed to start offload", slog.String("error", err.Error()))
	}

	s.stopHTTP()

	for i := 0; i < stopPollAttempts; i++ {
		if !s.running.Load() {
			break
		}
		time.Sleep(stopPollInterval)
	}

	s.shutdown()
	s.drainWG.Wait()
}

// Close releases the CDR writer. Call after Run has returned.
func (s *Server) Close() error {
	return s.cdr.Close()
}

// Ready is closed once both the datagram socket and the admin listener
// are bound. UDPAddr and HTTPAddr are valid afterwards.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// UDPAddr returns the bound datagram address.
func (s *Server) UDPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpAddr
}

// HTTPAddr returns the bound admin HTTP address.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

// IsActive reports whether a session exists for imsi. Part of the
// admin.Gateway interface.
func (s *Server) IsActive(imsi string) bool {
	return s.table.Contains(imsi)
}

// shutdown trips the termination flag and cancels the run context.
// Idempotent; called from the drainer on completion, from Stop, and from
// fatal error paths.
func (s *Server) shutdown() {
	s.running.Store(false)

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// stopHTTP asks the admin HTTP server to stop accepting and drains its
// active connections, bounded by shutdownTimeout. Safe to call multiple
// times and before the server ever started.
func (s *Server) stopHTTP() {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warn("admin http shutdown", slog.String("error", err.Error()))
	}
}
