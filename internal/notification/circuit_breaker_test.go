package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensnet-go/internal/testutil"
)

func TestCircuitBreakerLifecycle(t *testing.T) {
	t.Parallel()
	clock := testutil.NewClock(testutil.Epoch)
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, Timeout: 30 * time.Second, HalfOpenMaxRequests: 1}, "test", clock.Now)

	fail := func(context.Context) error { return fmt.Errorf("boom") }
	ok := func(context.Context) error { return nil }

	for range 3 {
		require.Error(t, cb.Call(t.Context(), fail))
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, 3, cb.Failures())

	err := cb.Call(t.Context(), ok)
	require.ErrorIs(t, err, ErrCircuitBreakerOpen)

	clock.Advance(30 * time.Second)
	require.NoError(t, cb.Call(t.Context(), ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	clock := testutil.NewClock(testutil.Epoch)
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Second, HalfOpenMaxRequests: 1}, "test", clock.Now)

	fail := func(context.Context) error { return fmt.Errorf("boom") }
	require.Error(t, cb.Call(t.Context(), fail))
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Second)
	require.Error(t, cb.Call(t.Context(), fail))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Second, HalfOpenMaxRequests: 1}, "test", nil)
	require.ErrorIs(t, cb.Call(t.Context(), func(context.Context) error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
