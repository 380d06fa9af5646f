package pgw

import (
	"context"
	"log/slog"
	"time"

	"github.com/dantte-lp/gopgw/internal/cdr"
	pgwmetrics "github.com/dantte-lp/gopgw/internal/metrics"
)

// sweepInterval is how often the expiry sweeper scans the session table.
const sweepInterval = 1 * time.Second

// runSweeper removes sessions whose inactivity age has reached the
// configured TTL, once per sweepInterval, until ctx is cancelled.
//
// The snapshot-and-remove happens atomically inside Table.Sweep; timeout
// CDRs are emitted afterwards, outside the table lock. Ages come from the
// monotonic clock, CDR timestamps from the wall clock.
func (s *Server) runSweeper(ctx context.Context) {
	ttl := time.Duration(s.cfg.SessionTimeoutSec) * time.Second

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.sweepOnce(ttl)
		}
	}
}

// sweepOnce performs a single expiry scan.
func (s *Server) sweepOnce(ttl time.Duration) {
	expired := s.table.Sweep(time.Now(), ttl)
	if len(expired) == 0 {
		return
	}

	for _, imsi := range expired {
		s.appendCDR(imsi, cdr.ActionTimeout)
		s.logger.Info("session timed out", slog.String("imsi", imsi))
	}
	s.metrics.SessionsRemoved(len(expired), pgwmetrics.EventTimeout)
}
