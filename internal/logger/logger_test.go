package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLoggerTextOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, time.UTC).Module("throttle")

	log.Debug("frame dropped",
		String("reason", "busy"),
		Int64("seq", 42),
		Float32("confidence", 0.87654),
		Duration("elapsed", 1500*time.Millisecond))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "DEBUG [throttle] frame dropped"), out)
	assert.Contains(t, out, "reason=busy")
	assert.Contains(t, out, "seq=42")
	assert.Contains(t, out, "confidence=0.877")
	assert.Contains(t, out, "elapsed=1.5s")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, time.UTC)

	log.Trace("trace")
	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Log(LogLevelError, "error")

	out := buf.String()
	assert.NotContains(t, out, "trace")
	assert.NotContains(t, out, "debug")
	assert.NotContains(t, out, " info")
	assert.Contains(t, out, "warn")
	assert.Contains(t, out, "error")
}

func TestWithFieldsAndSubmodules(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := NewSlogLogger(&buf, LogLevelInfo, time.UTC).Module("pipeline")
	child := base.With(String("model", "mobilenet_v2")).Module("bestshot")

	child.Info("session started", Error(errors.New("none")))
	base.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[pipeline.bestshot]")
	assert.Contains(t, lines[0], "model=mobilenet_v2")
	assert.Contains(t, lines[0], "error=none")
	assert.NotContains(t, lines[1], "model=")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)
	log.WithContext(WithTraceID(context.Background(), "abc-123")).Info("request")
	assert.Contains(t, buf.String(), "trace_id=abc-123")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "lensnet.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"noisy": "error"},
	})
	require.NoError(t, err)

	cl.Module("inference").Info("model loaded", String("model", "resnet50"))
	cl.Module("noisy").Info("suppressed")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "model loaded", rec["msg"])
	assert.Equal(t, "inference", rec["module"])
	assert.Equal(t, "resnet50", rec["model"])
}

func TestCentralLoggerInvalidTimezone(t *testing.T) {
	t.Parallel()
	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestBufferedFileWriterFlushAndClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "buffered.log")
	w, err := NewBufferedFileWriter(path, WithFlushInterval(0), WithBufferSize(1024))
	require.NoError(t, err)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, w.Buffered())

	require.NoError(t, w.Flush())
	assert.Zero(t, w.Buffered())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}
