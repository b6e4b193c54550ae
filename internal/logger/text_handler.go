package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const maxLevelWidth = 5

// textHandler renders records as "LEVEL [module] message key=value ..." for the console.
type textHandler struct {
	mu       *sync.Mutex
	w        io.Writer
	level    slog.Level
	timezone *time.Location
	attrs    []slog.Attr
}

func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return &textHandler{mu: &sync.Mutex{}, w: w, level: level, timezone: tz}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

//nolint:gocritic // slog.Handler interface requires record by value
func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(padLevel(levelName(r.Level)))

	var module string
	var rest []slog.Attr
	collect := func(a slog.Attr) bool {
		if a.Key == moduleKey {
			module = a.Value.String()
			return true
		}
		rest = append(rest, a)
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	if module != "" {
		sb.WriteString(" [")
		sb.WriteString(module)
		sb.WriteByte(']')
	}
	sb.WriteByte(' ')
	sb.WriteString(r.Message)
	for _, a := range rest {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		sb.WriteString(h.formatValue(a.Value))
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *textHandler) formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t\"=") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindTime:
		return v.Time().In(h.timezone).Format(time.RFC3339)
	default:
		return v.String()
	}
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

// WithGroup is flattened for console output.
func (h *textHandler) WithGroup(string) slog.Handler {
	return h
}

func levelName(l slog.Level) string {
	if l <= traceLevelValue {
		return "TRACE"
	}
	return l.String()
}

func padLevel(s string) string {
	if len(s) >= maxLevelWidth {
		return s
	}
	return s + strings.Repeat(" ", maxLevelWidth-len(s))
}
