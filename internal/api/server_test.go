package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/tphakala/lensnet-go/internal/api/v1"
	"github.com/tphakala/lensnet-go/internal/buildinfo"
	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/observability"
)

type stubCamera struct{ v1.Camera }

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad listen", func(c *Config) { c.Listen = "8080" }, true},
		{"cert without key", func(c *Config) { c.TLSCertFile = "cert.pem" }, true},
		{"full tls", func(c *Config) { c.TLSCertFile, c.TLSKeyFile = "cert.pem", "key.pem" }, false},
		{"zero read timeout", func(c *Config) { c.ReadTimeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := DefaultConfig()
			tt.mutate(c)
			if tt.wantErr {
				assert.Error(t, c.Validate())
			} else {
				assert.NoError(t, c.Validate())
			}
		})
	}
}

func TestNewRequiresCamera(t *testing.T) {
	t.Parallel()
	_, err := New(conf.Defaults())
	require.Error(t, err)
}

func TestServeHealthAndMetrics(t *testing.T) {
	t.Parallel()
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	settings := conf.Defaults()
	settings.Main.Name = "porch"
	s, err := New(settings,
		WithCamera(stubCamera{}),
		WithMetrics(m),
		WithBuildInfo(buildinfo.NewContext("1.2.3", "")))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	base := "http://" + ln.Addr().String()

	resp, err := client.Get(base + "/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "1.2.3", health["version"])
	assert.Equal(t, "porch", health["node"])
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"), "no HSTS without TLS")

	resp, err = client.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	require.NoError(t, <-done)
}
