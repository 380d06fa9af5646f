// Package cdr implements the append-only Call Detail Record log.
//
// Every subscriber session transition is recorded as one comma-separated
// line. The log is the only state that survives a restart; the session
// table itself is ephemeral process state.
package cdr

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Action is the session transition recorded in a CDR line.
type Action string

// CDR actions. Exactly one line is written per transition.
const (
	// ActionCreated records a new session inserted into the table.
	ActionCreated Action = "created"

	// ActionOffloaded records a session removed by the offload drainer.
	ActionOffloaded Action = "offloaded"

	// ActionTimeout records a session removed by the expiry sweeper.
	ActionTimeout Action = "timeout"

	// ActionRejected records a packet refused because the IMSI is
	// blacklisted.
	ActionRejected Action = "rejected"
)

// timestampLayout renders local wall-clock time as ISO 8601 with a
// numeric zone offset, e.g. "2024-05-01T12:34:56+0200".
const timestampLayout = "2006-01-02T15:04:05-0700"

// ErrUnavailable indicates the CDR file could not be opened at startup;
// appends are skipped until the process restarts.
var ErrUnavailable = errors.New("cdr file unavailable")

// Writer serializes CDR appends so that no two lines interleave and each
// line reaches the operating system before Append returns.
//
// Writer has its own mutex. When a caller appends from inside a session
// table critical section (the created record), the lock order is table
// first, then writer; nothing under the writer's mutex ever touches the
// table, so the order cannot invert.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	logger *slog.Logger
}

// NewWriter opens path in append mode and returns a Writer bound to it.
//
// An unopenable file is not fatal: the returned Writer skips every append
// with a diagnostic, matching the contract that the gateway keeps serving
// while the audit trail is degraded.
func NewWriter(path string, logger *slog.Logger) *Writer {
	logger = logger.With(slog.String("component", "cdr.writer"))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Error("failed to open CDR file, records will be skipped",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &Writer{logger: logger}
	}

	logger.Info("CDR file opened", slog.String("path", path))
	return &Writer{f: f, logger: logger}
}

// Append writes one record "<timestamp>, <imsi>, <action>\n" to the log.
// The write goes straight to the file descriptor, so a completed Append
// survives a process crash.
//
// Returns ErrUnavailable when the file was never opened; the failure is
// also logged here so no record is dropped without a diagnostic.
func (w *Writer) Append(imsi string, action Action) error {
	line := fmt.Sprintf("%s, %s, %s\n", time.Now().Format(timestampLayout), imsi, action)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		w.logger.Error("CDR file not available, record skipped",
			slog.String("imsi", imsi),
			slog.String("action", string(action)),
		)
		return ErrUnavailable
	}

	if _, err := w.f.WriteString(line); err != nil {
		w.logger.Error("CDR write failed",
			slog.String("imsi", imsi),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("append cdr: %w", err)
	}

	return nil
}

// Close closes the underlying file. Appends after Close are skipped like
// those on an unopenable file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}

	f := w.f
	w.f = nil

	if err := f.Close(); err != nil {
		return fmt.Errorf("close cdr file: %w", err)
	}
	return nil
}
