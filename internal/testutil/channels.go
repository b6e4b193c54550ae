// Package testutil provides shared test helpers for LensNet-Go packages.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second
)

// WaitForChannel waits for a signal on the channel or fails after timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// Receive returns the next value from ch or fails after timeout.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.Fail(t, msg)
		var zero T
		return zero
	}
}

// AssertNoReceive fails if ch yields a value within wait.
func AssertNoReceive[T any](t *testing.T, ch <-chan T, wait time.Duration, msg string) {
	t.Helper()
	select {
	case v := <-ch:
		require.Failf(t, msg, "unexpected value %v", v)
	case <-time.After(wait):
	}
}
