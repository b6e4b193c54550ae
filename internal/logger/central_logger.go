package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	_ "time/tzdata"
)

const (
	// defaultAttrCapacity covers module plus a handful of fields
	defaultAttrCapacity = 8

	// traceLevelValue sits below slog.LevelDebug (-4)
	traceLevelValue = slog.Level(-8)

	// floatPrecisionRatio rounds floats to 3 decimal places in log output
	floatPrecisionRatio = 1000.0

	dirPermissions = 0o755
)

var (
	globalLogger   *CentralLogger
	globalLoggerMu sync.Mutex
)

// SetGlobal sets the global CentralLogger instance.
func SetGlobal(cl *CentralLogger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = cl
}

// Global returns the global CentralLogger instance, falling back to a console logger.
func Global() *CentralLogger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()

	if globalLogger != nil {
		return globalLogger
	}

	globalLogger = &CentralLogger{
		config:       &LoggingConfig{DefaultLevel: DefaultLogLevel, Timezone: "Local"},
		timezone:     time.Local,
		moduleLevels: make(map[string]slog.Level),
		baseHandler:  newTextHandler(os.Stdout, slog.LevelInfo, time.Local),
	}
	return globalLogger
}

type loggerContextKey struct{ name string }

// TraceIDKey is the context key for trace IDs. Use WithTraceID() to set values.
var TraceIDKey = loggerContextKey{"trace_id"}

// WithTraceID returns a new context with the trace ID set
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

var attrPool = sync.Pool{
	New: func() any {
		s := make([]slog.Attr, 0, defaultAttrCapacity)
		return &s
	},
}

func getAttrs() *[]slog.Attr {
	ptr, ok := attrPool.Get().(*[]slog.Attr)
	if !ok {
		s := make([]slog.Attr, 0, defaultAttrCapacity)
		return &s
	}
	return ptr
}

func putAttrs(attrs *[]slog.Attr) {
	*attrs = (*attrs)[:0]
	attrPool.Put(attrs)
}

// CentralLogger manages module-aware logging to the console and an optional JSON log file.
type CentralLogger struct {
	config       *LoggingConfig
	timezone     *time.Location
	baseHandler  slog.Handler
	mainWriter   *BufferedFileWriter
	moduleLevels map[string]slog.Level
	mu           sync.RWMutex
}

// NewCentralLogger creates a centralized logger from configuration
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		config:       cfg,
		timezone:     tz,
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, levelStr := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(levelStr)
	}

	if err := cl.createBaseHandler(); err != nil {
		return nil, fmt.Errorf("failed to create base handler: %w", err)
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	default:
		tz, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
		}
		return tz, nil
	}
}

func (cl *CentralLogger) createBaseHandler() error {
	var handlers []slog.Handler

	if cl.config.Console != nil && cl.config.Console.Enabled {
		handlers = append(handlers, newTextHandler(os.Stdout, parseLogLevel(cl.config.Console.Level), cl.timezone))
	}

	if fo := cl.config.FileOutput; fo != nil && fo.Enabled {
		if err := ensureFileDirectory(fo.Path); err != nil {
			return err
		}
		writer, err := NewBufferedFileWriter(fo.Path)
		if err != nil {
			return err
		}
		cl.mainWriter = writer
		handlers = append(handlers, slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: parseLogLevel(fo.Level)}))
	}

	switch len(handlers) {
	case 0:
		cl.baseHandler = newTextHandler(os.Stdout, parseLogLevel(cl.config.DefaultLevel), cl.timezone)
	case 1:
		cl.baseHandler = handlers[0]
	default:
		cl.baseHandler = slog.NewMultiHandler(handlers...)
	}
	return nil
}

// Module returns a logger scoped to a specific module
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level, ok := cl.moduleLevels[name]
	if !ok {
		level = parseLogLevel(cl.config.DefaultLevel)
	}
	return &moduleLogger{
		module: name,
		logger: slog.New(cl.baseHandler),
		level:  level,
	}
}

// Close flushes and closes the log file, if any.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.mainWriter == nil {
		return nil
	}
	err := cl.mainWriter.Close()
	cl.mainWriter = nil
	return err
}

// Flush writes buffered log lines to the OS.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if cl.mainWriter == nil {
		return nil
	}
	return cl.mainWriter.Flush()
}

func ensureFileDirectory(filePath string) error {
	dir := filepath.Dir(filePath)
	if dir == "." || dir == filePath {
		return nil
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch LogLevel(level) {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlogLogger creates a standalone Logger writing text to w. Mostly used in tests.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = io.Discard
	}
	if tz == nil {
		tz = time.UTC
	}
	lvl := parseLogLevel(string(level))
	return &moduleLogger{
		logger: slog.New(newTextHandler(w, lvl, tz)),
		level:  lvl,
	}
}

// moduleLogger implements Logger for a specific module
type moduleLogger struct {
	module string
	logger *slog.Logger
	level  slog.Level
	fields []Field
}

func (m *moduleLogger) Module(name string) Logger {
	module := name
	if m.module != "" {
		module = m.module + "." + name
	}
	return &moduleLogger{
		module: module,
		logger: m.logger,
		level:  m.level,
		fields: slices.Clone(m.fields),
	}
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.log(traceLevelValue, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.log(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.log(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.log(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.log(slog.LevelError, msg, fields) }

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.log(parseLogLevel(string(level)), msg, fields)
}

func (m *moduleLogger) With(fields ...Field) Logger {
	return &moduleLogger{
		module: m.module,
		logger: m.logger,
		level:  m.level,
		fields: slices.Concat(m.fields, fields),
	}
}

func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return m
	}
	traceID, _ := ctx.Value(TraceIDKey).(string)
	if traceID == "" {
		return m
	}
	return m.With(String(traceIDKey, traceID))
}

func (m *moduleLogger) Flush() error { return nil }

func (m *moduleLogger) log(level slog.Level, msg string, fields []Field) {
	if m == nil || level < m.level {
		return
	}

	attrsPtr := getAttrs()
	attrs := *attrsPtr
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	for i := range m.fields {
		attrs = append(attrs, fieldToAttr(m.fields[i]))
	}
	for i := range fields {
		attrs = append(attrs, fieldToAttr(fields[i]))
	}

	m.logger.LogAttrs(context.Background(), level, msg, attrs...)

	*attrsPtr = attrs
	putAttrs(attrsPtr)
}

func roundFloat(val float64) float64 {
	return math.Round(val*floatPrecisionRatio) / floatPrecisionRatio
}

func fieldToAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case float32:
		return slog.Float64(f.Key, roundFloat(float64(v)))
	case float64:
		return slog.Float64(f.Key, roundFloat(v))
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}
