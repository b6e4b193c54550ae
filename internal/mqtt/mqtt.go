// Package mqtt publishes live camera state to an MQTT broker.
package mqtt

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/lensnet-go/internal/logger"
)

// Client defines the MQTT operations the publisher needs.
type Client interface {
	// Connect attempts to connect to the broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error

	// IsConnected returns true while the broker connection is up.
	IsConnected() bool

	// Disconnect closes the connection and stops reconnect attempts.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	ReconnectCooldown time.Duration
	ReconnectDelay    time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ReconnectDelay:    1 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

var (
	pkgLogger     logger.Logger
	pkgLoggerOnce sync.Once
)

// GetLogger returns the mqtt module logger.
func GetLogger() logger.Logger {
	pkgLoggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("mqtt")
	})
	return pkgLogger
}
