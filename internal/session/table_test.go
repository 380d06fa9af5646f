package session_test

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dantte-lp/gopgw/internal/session"
)

// TestTouchCreateThenRefresh verifies that the first Touch creates a
// session and subsequent touches refresh it, keeping exactly one entry.
func TestTouchCreateThenRefresh(t *testing.T) {
	t.Parallel()

	tbl := session.NewTable(nil)

	if got := tbl.Touch("123456789012345", nil); got != session.Created {
		t.Fatalf("first Touch = %v, want Created", got)
	}
	if got := tbl.Touch("123456789012345", nil); got != session.Refreshed {
		t.Fatalf("second Touch = %v, want Refreshed", got)
	}
	if got := tbl.Len(); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}
	if !tbl.Contains("123456789012345") {
		t.Error("Contains = false after Touch")
	}
	if tbl.Contains("999999999999999") {
		t.Error("Contains = true for never-seen IMSI")
	}
}

// TestSweepBoundary verifies that Sweep removes entries exactly at the TTL
// boundary (age >= ttl) and keeps younger ones.
func TestSweepBoundary(t *testing.T) {
	t.Parallel()

	tbl := session.NewTable(nil)
	tbl.Touch("1111", nil)
	tbl.Touch("2222", nil)

	ttl := 30 * time.Second

	// Nothing is old enough yet.
	if expired := tbl.Sweep(time.Now(), ttl); len(expired) != 0 {
		t.Fatalf("Sweep(now) removed %v, want none", expired)
	}

	// Exactly at the boundary: both must go.
	expired := tbl.Sweep(time.Now().Add(ttl), ttl)
	slices.Sort(expired)
	if want := []string{"1111", "2222"}; !slices.Equal(expired, want) {
		t.Fatalf("Sweep(now+ttl) = %v, want %v", expired, want)
	}
	if got := tbl.Len(); got != 0 {
		t.Errorf("Len after sweep = %d, want 0", got)
	}
}

// TestSweepRefreshedSurvives verifies that refreshing a session resets its
// age so an immediate sweep at the original deadline keeps it.
func TestSweepRefreshedSurvives(t *testing.T) {
	t.Parallel()

	tbl := session.NewTable(nil)
	tbl.Touch("1111", nil)

	created := time.Now()
	time.Sleep(10 * time.Millisecond)
	tbl.Touch("1111", nil)

	ttl := 10 * time.Millisecond
	if expired := tbl.Sweep(created.Add(ttl), ttl); len(expired) != 0 {
		t.Fatalf("Sweep removed refreshed session: %v", expired)
	}
	if !tbl.Contains("1111") {
		t.Error("refreshed session missing after sweep")
	}
}

// TestDrainBatch verifies batch sizing and that a drained table returns nil.
func TestDrainBatch(t *testing.T) {
	t.Parallel()

	tbl := session.NewTable(nil)
	for i := 0; i < 5; i++ {
		tbl.Touch(fmt.Sprintf("10000000000000%d", i), nil)
	}

	if got := tbl.DrainBatch(2); len(got) != 2 {
		t.Fatalf("DrainBatch(2) returned %d entries, want 2", len(got))
	}
	if got := tbl.Len(); got != 3 {
		t.Fatalf("Len after first batch = %d, want 3", got)
	}

	// Batch larger than the table drains the rest.
	if got := tbl.DrainBatch(10); len(got) != 3 {
		t.Fatalf("DrainBatch(10) returned %d entries, want 3", len(got))
	}

	if got := tbl.DrainBatch(10); got != nil {
		t.Errorf("DrainBatch on empty table = %v, want nil", got)
	}
	if got := tbl.DrainBatch(0); got != nil {
		t.Errorf("DrainBatch(0) = %v, want nil", got)
	}
}

// TestTouchCallbackRunsOnCreateOnly verifies the on-create callback fires
// exactly once per insertion and never on refresh.
func TestTouchCallbackRunsOnCreateOnly(t *testing.T) {
	t.Parallel()

	tbl := session.NewTable(nil)

	var created int
	onCreate := func() { created++ }

	if got := tbl.Touch("1111", onCreate); got != session.Created {
		t.Fatalf("first Touch = %v, want Created", got)
	}
	if got := tbl.Touch("1111", onCreate); got != session.Refreshed {
		t.Fatalf("second Touch = %v, want Refreshed", got)
	}
	if created != 1 {
		t.Errorf("onCreate ran %d times, want 1", created)
	}
}

// TestDrainNeverPrecedesCreateRecord hammers Touch against a concurrent
// drainer and checks that for every IMSI the create record was written
// before the drain removed it. The callback runs inside the table's
// critical section, so a drained session always has its record first.
func TestDrainNeverPrecedesCreateRecord(t *testing.T) {
	t.Parallel()

	tbl := session.NewTable(nil)

	const workers = 4
	const perWorker = 250

	var logMu sync.Mutex
	events := make(map[string][]string)
	record := func(imsi, ev string) {
		logMu.Lock()
		events[imsi] = append(events[imsi], ev)
		logMu.Unlock()
	}

	done := make(chan struct{})
	var drainWG sync.WaitGroup
	drainWG.Add(1)
	go func() {
		defer drainWG.Done()
		for {
			for _, imsi := range tbl.DrainBatch(8) {
				record(imsi, "drained")
			}
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				imsi := fmt.Sprintf("46%03d%010d", w, i)
				tbl.Touch(imsi, func() { record(imsi, "created") })
			}
		}()
	}
	wg.Wait()
	close(done)
	drainWG.Wait()

	for imsi, evs := range events {
		if evs[0] != "created" {
			t.Fatalf("imsi %s events = %v, want created first", imsi, evs)
		}
	}
}

// TestBlacklist verifies blacklist membership and that membership is
// independent of session state.
func TestBlacklist(t *testing.T) {
	t.Parallel()

	tbl := session.NewTable([]string{"001010123456789", "001010000000001"})

	if !tbl.IsBlacklisted("001010123456789") {
		t.Error("IsBlacklisted = false for listed IMSI")
	}
	if tbl.IsBlacklisted("123456789012345") {
		t.Error("IsBlacklisted = true for unlisted IMSI")
	}
	if tbl.Contains("001010123456789") {
		t.Error("blacklisted IMSI present in fresh table")
	}
}

// TestConcurrentTouch hammers the table from many goroutines to exercise
// the mutex under the race detector. Each IMSI must end up with exactly
// one entry regardless of interleaving.
func TestConcurrentTouch(t *testing.T) {
	t.Parallel()

	tbl := session.NewTable(nil)

	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				imsi := fmt.Sprintf("2500%011d", i)
				tbl.Touch(imsi, nil)
				tbl.Contains(imsi)
				if w%2 == 0 {
					tbl.Sweep(time.Now(), time.Hour)
				}
			}
		}()
	}
	wg.Wait()

	if got := tbl.Len(); got != perWorker {
		t.Errorf("Len = %d, want %d", got, perWorker)
	}
}
