package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/logger"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitBreakerOpen = errors.NewStd("circuit breaker is open")
	ErrTooManyRequests    = errors.NewStd("circuit breaker is half-open, too many requests")
)

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures         int           // consecutive failures before opening
	Timeout             time.Duration // open duration before a trial request
	HalfOpenMaxRequests int
}

// DefaultCircuitBreakerConfig returns default circuit breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// CircuitBreaker stops calling a failing provider until it has had time to
// recover.
type CircuitBreaker struct {
	config           CircuitBreakerConfig
	state            CircuitState
	failures         int
	lastStateChange  time.Time
	halfOpenRequests int
	provider         string
	now              func() time.Time
	mu               sync.Mutex
}

// NewCircuitBreaker creates a closed breaker for provider.
func NewCircuitBreaker(config CircuitBreakerConfig, provider string, now func() time.Time) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: now(),
		provider:        provider,
		now:             now,
	}
}

// Call runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return fmt.Errorf("circuit breaker rejected request (%v, %d consecutive failures): %w",
			cb.State(), cb.Failures(), err)
	}
	err := fn(ctx)
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenRequests = 1
			return nil
		}
		return ErrCircuitBreakerOpen
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.HalfOpenMaxRequests {
			return ErrTooManyRequests
		}
		cb.halfOpenRequests++
		return nil
	default:
		return ErrCircuitBreakerOpen
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		return
	}
	// cancellation is not a provider failure
	if errors.Is(err, context.Canceled) {
		return
	}

	cb.failures++
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(s CircuitState) {
	if cb.state == s {
		return
	}
	old := cb.state
	cb.state = s
	cb.lastStateChange = cb.now()
	GetLogger().Info("circuit breaker state transition",
		logger.String("provider", cb.provider),
		logger.String("old_state", old.String()),
		logger.String("new_state", s.String()),
		logger.Int("consecutive_failures", cb.failures))
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
