// Package api provides the HTTP control server. The JSON endpoints live in
// the v1 subpackage.
package api

import (
	"fmt"
	"net"
	"time"

	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port

	TLSCertFile string
	TLSKeyFile  string

	AllowedOrigins []string

	// WriteTimeout does not apply to the live event stream, which clears
	// its deadline per message.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // e.g. "1M"
	Debug     bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       "1M",
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings.API.Listen != "" {
		cfg.Listen = settings.API.Listen
	}
	if len(settings.API.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = settings.API.AllowedOrigins
	}
	cfg.TLSCertFile = settings.API.TLSCertFile
	cfg.TLSKeyFile = settings.API.TLSKeyFile
	cfg.Debug = settings.Debug
	return cfg
}

// TLSEnabled reports whether both certificate files are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS requires both certificate and key file")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	return nil
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	tlsStatus := "disabled"
	if c.TLSEnabled() {
		tlsStatus = "manual"
	}
	return fmt.Sprintf("Server Config: address=%s, tls=%s, debug=%v", c.Listen, tlsStatus, c.Debug)
}
