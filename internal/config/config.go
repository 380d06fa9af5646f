// Package config manages gopgw daemon configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides. Keys are flat,
// matching the historical PGW emulator configuration surface.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structure
// -------------------------------------------------------------------------

// Config holds the complete gopgw configuration.
type Config struct {
	// UDPIP is the datagram bind address for IMSI packets.
	UDPIP string `koanf:"udp_ip"`

	// UDPPort is the datagram bind port.
	UDPPort int `koanf:"udp_port"`

	// SessionTimeoutSec is the inactivity TTL in whole seconds. Sessions
	// whose age reaches the TTL are removed by the expiry sweeper.
	SessionTimeoutSec int `koanf:"session_timeout_sec"`

	// CDRFile is the path of the append-only Call Detail Record log.
	CDRFile string `koanf:"cdr_file"`

	// HTTPPort is the admin HTTP plane port (bound on 0.0.0.0).
	HTTPPort int `koanf:"http_port"`

	// GracefulShutdownRate is the offload drain rate in sessions per second.
	GracefulShutdownRate int `koanf:"graceful_shutdown_rate"`

	// Blacklist is the fixed set of IMSIs that are always rejected.
	Blacklist []string `koanf:"blacklist"`

	// LogLevel is the log level: "debug", "info", "warn", "error".
	LogLevel string `koanf:"log_level"`

	// LogFormat is the log output format: "json" or "text".
	LogFormat string `koanf:"log_format"`

	// MetricsAddr is the Prometheus HTTP listen address.
	MetricsAddr string `koanf:"metrics_addr"`

	// MetricsPath is the URL path of the Prometheus endpoint.
	MetricsPath string `koanf:"metrics_path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the historical defaults:
// UDP on 0.0.0.0:9000, a 30 second session TTL, the admin plane on 8080,
// and a drain rate of 10 sessions per second.
func DefaultConfig() *Config {
	return &Config{
		UDPIP:                "0.0.0.0",
		UDPPort:              9000,
		SessionTimeoutSec:    30,
		CDRFile:              "cdr.log",
		HTTPPort:             8080,
		GracefulShutdownRate: 10,
		LogLevel:             "info",
		LogFormat:            "json",
		MetricsAddr:          ":9100",
		MetricsPath:          "/metrics",
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gopgw configuration.
// Variables are named GOPGW_<key>, e.g., GOPGW_UDP_PORT.
const envPrefix = "GOPGW_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOPGW_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping (keys are flat, underscores preserved):
//
//	GOPGW_UDP_PORT               -> udp_port
//	GOPGW_SESSION_TIMEOUT_SEC    -> session_timeout_sec
//	GOPGW_CDR_FILE               -> cdr_file
//	GOPGW_GRACEFUL_SHUTDOWN_RATE -> graceful_shutdown_rate
//	GOPGW_LOG_LEVEL              -> log_level
//
// Uses koanf/v2 with file + env providers and the YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOPGW_UDP_PORT -> udp_port.
// The configuration keys are flat, so underscores are kept as-is.
func envKeyMapper(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, envPrefix))
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"udp_ip":                 defaults.UDPIP,
		"udp_port":               defaults.UDPPort,
		"session_timeout_sec":    defaults.SessionTimeoutSec,
		"cdr_file":               defaults.CDRFile,
		"http_port":              defaults.HTTPPort,
		"graceful_shutdown_rate": defaults.GracefulShutdownRate,
		"log_level":              defaults.LogLevel,
		"log_format":             defaults.LogFormat,
		"metrics_addr":           defaults.MetricsAddr,
		"metrics_path":           defaults.MetricsPath,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidUDPIP indicates the datagram bind address is not an IP.
	ErrInvalidUDPIP = errors.New("udp_ip must be a valid IPv4 address")

	// ErrInvalidUDPPort indicates the datagram port is out of range.
	ErrInvalidUDPPort = errors.New("udp_port must be in range 1-65535")

	// ErrInvalidHTTPPort indicates the admin HTTP port is out of range.
	ErrInvalidHTTPPort = errors.New("http_port must be in range 1-65535")

	// ErrInvalidSessionTimeout indicates the session TTL is below 1 second.
	ErrInvalidSessionTimeout = errors.New("session_timeout_sec must be >= 1")

	// ErrInvalidShutdownRate indicates the drain rate is below 1 per second.
	ErrInvalidShutdownRate = errors.New("graceful_shutdown_rate must be >= 1")

	// ErrEmptyCDRFile indicates the CDR log path is empty.
	ErrEmptyCDRFile = errors.New("cdr_file must not be empty")

	// ErrInvalidBlacklistIMSI indicates a blacklist entry is not a decimal
	// digit string.
	ErrInvalidBlacklistIMSI = errors.New("blacklist entry must be a non-empty digit string")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	addr, err := netip.ParseAddr(cfg.UDPIP)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("udp_ip %q: %w", cfg.UDPIP, ErrInvalidUDPIP)
	}

	if cfg.UDPPort < 1 || cfg.UDPPort > 65535 {
		return fmt.Errorf("udp_port %d: %w", cfg.UDPPort, ErrInvalidUDPPort)
	}

	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d: %w", cfg.HTTPPort, ErrInvalidHTTPPort)
	}

	if cfg.SessionTimeoutSec < 1 {
		return ErrInvalidSessionTimeout
	}

	if cfg.GracefulShutdownRate < 1 {
		return ErrInvalidShutdownRate
	}

	if cfg.CDRFile == "" {
		return ErrEmptyCDRFile
	}

	for i, imsi := range cfg.Blacklist {
		if !isDigits(imsi) {
			return fmt.Errorf("blacklist[%d] %q: %w", i, imsi, ErrInvalidBlacklistIMSI)
		}
	}

	return nil
}

// isDigits reports whether s is a non-empty ASCII decimal digit string.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
