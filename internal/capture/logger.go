package capture

import (
	"sync"

	"github.com/tphakala/lensnet-go/internal/logger"
)

var (
	pkgLogger     logger.Logger
	pkgLoggerOnce sync.Once
)

// GetLogger returns the capture module logger.
func GetLogger() logger.Logger {
	pkgLoggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("capture")
	})
	return pkgLogger
}
