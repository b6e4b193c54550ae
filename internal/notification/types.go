// Package notification delivers push notifications about best shot sessions
// and pipeline problems through shoutrrr services.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/lensnet-go/internal/logger"
)

// Type classifies a notification.
type Type string

const (
	TypeBestShot Type = "bestshot"
	TypeError    Type = "error"
	TypeWarning  Type = "warning"
	TypeInfo     Type = "info"
	TypeSystem   Type = "system"
)

// Priority orders notifications by urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Notification is a single message to deliver.
type Notification struct {
	Type      Type
	Priority  Priority
	Title     string
	Message   string
	Component string
	Timestamp time.Time
}

// Provider is a push delivery backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	GetName() string
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
	SupportsType(t Type) bool
	IsEnabled() bool
}

var (
	pkgLogger     logger.Logger
	pkgLoggerOnce sync.Once
)

// GetLogger returns the notification module logger.
func GetLogger() logger.Logger {
	pkgLoggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("notification")
	})
	return pkgLogger
}
