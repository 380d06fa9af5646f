package cdr_test

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/dantte-lp/gopgw/internal/cdr"
)

// lineRe matches one CDR record: ISO 8601 local time with numeric offset,
// IMSI digits, and an action word.
var lineRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[+-]\d{4}, \d+, (created|offloaded|timeout|rejected)$`)

func newTestWriter(t *testing.T) (*cdr.Writer, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cdr.log")
	w := cdr.NewWriter(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		if err := w.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	return w, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// TestAppendFormat verifies the record layout and the per-action rendering.
func TestAppendFormat(t *testing.T) {
	t.Parallel()

	w, path := newTestWriter(t)

	for _, action := range []cdr.Action{
		cdr.ActionCreated, cdr.ActionOffloaded, cdr.ActionTimeout, cdr.ActionRejected,
	} {
		if err := w.Append("123456789012345", action); err != nil {
			t.Fatalf("Append(%s): %v", action, err)
		}
	}

	lines := readLines(t, path)
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	for i, line := range lines {
		if !lineRe.MatchString(line) {
			t.Errorf("line %d %q does not match record format", i, line)
		}
	}
	if !strings.HasSuffix(lines[0], ", created") {
		t.Errorf("line 0 = %q, want created action", lines[0])
	}
}

// TestAppendOrdering verifies that sequential appends land in call order.
func TestAppendOrdering(t *testing.T) {
	t.Parallel()

	w, path := newTestWriter(t)

	if err := w.Append("1111", cdr.ActionCreated); err != nil {
		t.Fatalf("Append created: %v", err)
	}
	if err := w.Append("1111", cdr.ActionTimeout); err != nil {
		t.Fatalf("Append timeout: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "created") || !strings.Contains(lines[1], "timeout") {
		t.Errorf("lines out of order: %v", lines)
	}
}

// TestConcurrentAppendsDoNotInterleave runs many appends from concurrent
// goroutines and verifies every resulting line is a complete record.
func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	t.Parallel()

	w, path := newTestWriter(t)

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				imsi := fmt.Sprintf("25099%010d", i)
				if err := w.Append(imsi, cdr.ActionCreated); err != nil {
					t.Errorf("Append: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	lines := readLines(t, path)
	if len(lines) != workers*perWorker {
		t.Fatalf("got %d lines, want %d", len(lines), workers*perWorker)
	}
	for i, line := range lines {
		if !lineRe.MatchString(line) {
			t.Fatalf("line %d %q is interleaved or malformed", i, line)
		}
	}
}

// TestUnopenableFile verifies that a writer on an unopenable path skips
// appends with ErrUnavailable instead of failing the caller.
func TestUnopenableFile(t *testing.T) {
	t.Parallel()

	// A directory component that does not exist makes OpenFile fail.
	path := filepath.Join(t.TempDir(), "missing", "cdr.log")
	w := cdr.NewWriter(path, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := w.Append("1111", cdr.ActionCreated); !errors.Is(err, cdr.ErrUnavailable) {
		t.Errorf("Append error = %v, want ErrUnavailable", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// TestAppendAfterClose verifies that appends after Close degrade to the
// unavailable behavior rather than writing to a closed descriptor.
func TestAppendAfterClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cdr.log")
	w := cdr.NewWriter(path, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := w.Append("1111", cdr.ActionCreated); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Append("1111", cdr.ActionTimeout); !errors.Is(err, cdr.ErrUnavailable) {
		t.Errorf("Append after Close error = %v, want ErrUnavailable", err)
	}
}
