package pgw

import (
	"context"
	"log/slog"
	"time"

	"github.com/dantte-lp/gopgw/internal/admin"
	"github.com/dantte-lp/gopgw/internal/cdr"
	pgwmetrics "github.com/dantte-lp/gopgw/internal/metrics"
)

// drainInterval is the pause between offload batches; together with the
// rate it bounds removals to rate sessions per second.
const drainInterval = 1 * time.Second

// StartOffload launches a background drain of the session table at rate
// sessions per second (clamped to >= 1). Part of the admin.Gateway
// interface; also used by Stop.
//
// At most one drain runs at a time: the offloading flag is set with a
// compare-and-swap, so concurrent callers race for a single slot and the
// losers get admin.ErrOffloadInProgress. When the drain empties the
// table it trips the gateway's termination flag, so offload completion is
// global shutdown.
func (s *Server) StartOffload(rate int) error {
	if rate < 1 {
		rate = 1
	}

	if !s.running.Load() {
		return ErrNotRunning
	}

	if !s.offloading.CompareAndSwap(false, true) {
		s.logger.Warn("offload already in progress")
		return admin.ErrOffloadInProgress
	}

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	if ctx == nil {
		// Startup has not reached the point where loops can be joined.
		s.offloading.Store(false)
		return ErrNotRunning
	}

	s.logger.Info("starting offload", slog.Int("rate", rate))

	s.drainWG.Add(1)
	go func() {
		defer s.drainWG.Done()
		s.runDrainer(ctx, rate)
	}()

	return nil
}

// runDrainer removes up to rate sessions per second until the table is
// empty or the gateway stops. New sessions may keep arriving while the
// drain runs; under sustained load above the rate the drain may never
// converge, bounded deliberately by the operator-chosen rate.
func (s *Server) runDrainer(ctx context.Context, rate int) {
	defer s.offloading.Store(false)

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for s.running.Load() {
		batch := s.table.DrainBatch(rate)
		if len(batch) == 0 {
			s.logger.Info("offload complete, no sessions left")
			s.shutdown()
			return
		}

		for _, imsi := range batch {
			s.appendCDR(imsi, cdr.ActionOffloaded)
			s.logger.Info("session offloaded", slog.String("imsi", imsi))
		}
		s.metrics.SessionsRemoved(len(batch), pgwmetrics.EventOffloaded)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
