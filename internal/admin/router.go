// Package admin implements the administrative HTTP plane of the PGW
// emulator: liveness, subscriber lookup, and controlled drain.
//
// The plane is deliberately orthogonal to the datagram path: handlers only
// read the session table through the Gateway interface and never block on
// gateway internals.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestTimeout bounds handler execution; every endpoint is a short
// table read or a flag flip.
const requestTimeout = 10 * time.Second

// ErrOffloadInProgress is returned by Gateway.StartOffload when a drain
// is already running. At most one drain exists at a time.
var ErrOffloadInProgress = errors.New("offload already in progress")

// Gateway is the narrow view of the session engine the HTTP plane needs.
type Gateway interface {
	// IsActive reports whether a session exists for imsi.
	IsActive(imsi string) bool

	// StartOffload launches a background drain at rate sessions per
	// second (clamped to >= 1). Returns ErrOffloadInProgress when a
	// drain is already running.
	StartOffload(rate int) error
}

// Config holds the router's knobs.
type Config struct {
	// DefaultDrainRate is the drain rate used when POST /stop carries no
	// rate parameter.
	DefaultDrainRate int
}

// NewRouter builds the admin HTTP handler:
//
//	GET  /health                       -> 200 "ok"
//	GET  /check_subscriber?imsi=<d>    -> 200 "active" | "not active"
//	POST /stop[?rate=<n>]              -> 200 "offload_started" | "already offloading"
//
// All responses are text/plain. Handlers may run concurrently; they share
// the session table under its own lock via the Gateway.
func NewRouter(gw Gateway, cfg Config, logger *slog.Logger) http.Handler {
	logger = logger.With(slog.String("component", "admin"))

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", handleHealth)
	r.Get("/check_subscriber", handleCheckSubscriber(gw))
	r.Post("/stop", handleStop(gw, cfg.DefaultDrainRate, logger))

	return r
}

// handleHealth answers liveness probes.
func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// handleCheckSubscriber reports whether a session exists for the given
// IMSI. The lookup is a single table read under the table's lock.
//
// Only an absent imsi parameter is a client error; a present-but-empty
// value is just an IMSI that is never active.
func handleCheckSubscriber(gw Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vals, ok := r.URL.Query()["imsi"]
		if !ok || len(vals) == 0 {
			writeText(w, http.StatusBadRequest, "missing imsi param")
			return
		}
		imsi := vals[0]

		if gw.IsActive(imsi) {
			writeText(w, http.StatusOK, "active")
			return
		}
		writeText(w, http.StatusOK, "not active")
	}
}

// handleStop starts a rate-limited drain of the session table. The reply
// is sent immediately; the drain proceeds in the background and stops the
// whole gateway when the table is empty.
func handleStop(gw Gateway, defaultRate int, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rate := defaultRate
		if raw := r.URL.Query().Get("rate"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				rate = parsed
			}
		}
		if rate < 1 {
			rate = 1
		}

		err := gw.StartOffload(rate)
		switch {
		case errors.Is(err, ErrOffloadInProgress):
			writeText(w, http.StatusOK, "already offloading")
		case err != nil:
			logger.Error("failed to start offload", slog.String("error", err.Error()))
			writeText(w, http.StatusInternalServerError, "offload failed")
		default:
			logger.Info("offload started via HTTP", slog.Int("rate", rate))
			writeText(w, http.StatusOK, "offload_started")
		}
	}
}

// writeText sends a plain-text response body.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// requestLogger logs each admin request at debug level with method, path,
// status, and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("admin request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
