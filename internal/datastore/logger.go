package datastore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
)

// DefaultSlowQueryThreshold marks queries worth a warning.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

var (
	pkgLogger     logger.Logger
	pkgLoggerOnce sync.Once
)

// GetLogger returns the datastore module logger.
func GetLogger() logger.Logger {
	pkgLoggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("datastore")
	})
	return pkgLogger
}

// GormLogger routes GORM logging through the module logger and records
// query metrics.
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
	metrics       *metrics.DatastoreMetrics
}

// NewGormLogger creates a GORM logger.
func NewGormLogger(slowThreshold time.Duration, level gormlogger.LogLevel, m *metrics.DatastoreMetrics) *GormLogger {
	return &GormLogger{SlowThreshold: slowThreshold, LogLevel: level, metrics: m}
}

// LogMode implements gormlogger.Interface.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	n := *l
	n.LogLevel = level
	return &n
}

// Info implements gormlogger.Interface.
func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Info {
		GetLogger().Info(fmt.Sprintf(msg, data...))
	}
}

// Warn implements gormlogger.Interface.
func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Warn {
		GetLogger().Warn(fmt.Sprintf(msg, data...))
	}
}

// Error implements gormlogger.Interface.
func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Error {
		GetLogger().Error("GORM error", logger.String("msg", fmt.Sprintf(msg, data...)))
	}
}

// Trace implements gormlogger.Interface.
func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	op := "query_" + sqlOperation(sql)
	l.metrics.RecordOperation(op, elapsed, err)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		GetLogger().Error("database query failed",
			logger.String("sql", sql),
			logger.Duration("duration", elapsed),
			logger.Int64("rows_affected", rows),
			logger.Error(err))
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold:
		GetLogger().Warn("slow query detected",
			logger.String("sql", sql),
			logger.Duration("duration", elapsed),
			logger.Duration("threshold", l.SlowThreshold))
	case l.LogLevel >= gormlogger.Info:
		GetLogger().Debug("query",
			logger.String("sql", sql),
			logger.Duration("duration", elapsed),
			logger.Int64("rows_affected", rows))
	}
}

func sqlOperation(sql string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	switch op := strings.ToLower(head); op {
	case "select", "insert", "update", "delete", "create", "alter", "drop", "pragma":
		return op
	default:
		return "other"
	}
}
