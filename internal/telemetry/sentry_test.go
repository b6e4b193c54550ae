package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/tphakala/lensnet-go/internal/buildinfo"
	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/errors"
)

type mockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (m *mockTransport) Configure(sentry.ClientOptions) {}

func (m *mockTransport) SendEvent(event *sentry.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockTransport) Flush(time.Duration) bool { return true }

func (m *mockTransport) FlushWithContext(context.Context) bool { return true }

func (m *mockTransport) Close() {}

func (m *mockTransport) Events() []*sentry.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*sentry.Event(nil), m.events...)
}

type countingReporter struct {
	mu    sync.Mutex
	count int
}

func (c *countingReporter) IsEnabled() bool { return true }

func (c *countingReporter) ReportError(*errors.EnhancedError) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func TestInit_DisabledIsNoop(t *testing.T) {
	settings := conf.Defaults()
	settings.Sentry.Enabled = false

	flush, err := Init(settings, buildinfo.NewContext("1.0.0", "today"))
	require.NoError(t, err)
	require.NotNil(t, flush)
	flush()
}

func TestInit_RequiresDSN(t *testing.T) {
	settings := conf.Defaults()
	settings.Sentry.Enabled = true
	settings.Sentry.DSN = ""

	_, err := Init(settings, buildinfo.NewContext("1.0.0", "today"))
	require.Error(t, err)
}

func TestInit_ReportsFilteredEvents(t *testing.T) {
	settings := conf.Defaults()
	settings.Sentry.Enabled = true
	settings.Sentry.DSN = "https://public@example.com/1"
	transport := &mockTransport{}

	flush, err := Init(settings, buildinfo.NewContext("2.1.0", "today"), WithTransport(transport))
	require.NoError(t, err)
	defer flush()

	_ = errors.Newf("model load failed for /home/alice/models/net.tflite").
		Component("inference").
		Category(errors.CategoryModelLoad).
		Build()

	events := transport.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "lensnet-go@2.1.0", ev.Release)
	assert.Empty(t, ev.ServerName)
	assert.NotContains(t, ev.Message, "alice")
	assert.Equal(t, "inference", ev.Tags["component"])
	assert.NotContains(t, ev.Contexts, "device")
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	ev := sentry.NewEvent()
	ev.ServerName = "camera-host"
	ev.User = sentry.User{ID: "42", IPAddress: "10.0.0.5"}
	ev.Contexts = map[string]sentry.Context{
		"device":   {"name": "pi"},
		"os":       {"name": "linux"},
		"platform": {"num_cpu": 4},
	}
	ev.Tags = map[string]string{"hostname": "camera-host", "component": "api"}
	ev.Extra = map[string]any{"component": "api", "cwd": "/home/alice"}

	out := applyPrivacyFilters(ev)

	assert.Empty(t, out.ServerName)
	assert.Empty(t, out.User.ID)
	assert.Empty(t, out.User.IPAddress)
	assert.NotContains(t, out.Contexts, "device")
	assert.NotContains(t, out.Contexts, "os")
	assert.Contains(t, out.Contexts, "platform")
	assert.NotContains(t, out.Tags, "hostname")
	assert.Equal(t, "api", out.Tags["component"])
	assert.NotContains(t, out.Extra, "cwd")
}

func TestRateLimitedReporter_DropsBeyondBurst(t *testing.T) {
	t.Parallel()

	inner := &countingReporter{}
	r := NewRateLimitedReporter(inner, rate.Every(time.Hour), 3)
	ee := errors.Newf("boom").Component("test").Build()

	for range 10 {
		r.ReportError(ee)
	}

	assert.Equal(t, 3, inner.count)
	assert.Equal(t, uint64(7), r.Dropped())
	assert.True(t, r.IsEnabled())
}
