// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package resilience provides the outbound-call protection layer for the saga
// engine: per-dependency circuit breakers gated by a sliding window of recent
// outcomes, bounded exponential-backoff retry, and a resilient client that
// composes both around timeout-guarded invocations.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/orchestrix/sagaflow/pkg/logger"
	"go.uber.org/zap"
)

// ErrCircuitOpen is the sentinel matched by errors.Is when a breaker rejects
// a call while open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError is returned when a call is rejected because the breaker is
// open and its open timeout has not yet elapsed.
type CircuitOpenError struct {
	// Name is the logical dependency name of the breaker.
	Name string

	// RetryAfter is how long until the breaker will allow a probe.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open (retry after %s)", e.Name, e.RetryAfter)
}

// Unwrap allows errors.Is(err, ErrCircuitOpen) to match.
func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed (normal operation).
	StateClosed State = iota

	// StateOpen indicates the circuit is open (failing fast).
	StateOpen

	// StateHalfOpen indicates the circuit is half-open (testing recovery).
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig defines the configuration for a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of failures within the sliding window
	// that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in half-open
	// state required to close the circuit.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before the next call is
	// allowed through as a half-open probe.
	OpenTimeout time.Duration

	// WindowSize is the capacity of the sliding window of call outcomes.
	// The oldest outcome is evicted when the window is full.
	WindowSize int

	// OnStateChange is called when the circuit state changes (optional).
	OnStateChange func(name string, from, to State)
}

// DefaultBreakerConfig returns a default circuit breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		WindowSize:       20,
	}
}

// Validate validates the breaker configuration.
func (c *BreakerConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure threshold must be >= 1", ErrInvalidConfig)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("%w: success threshold must be >= 1", ErrInvalidConfig)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("%w: open timeout must be > 0", ErrInvalidConfig)
	}
	if c.WindowSize < c.FailureThreshold {
		return fmt.Errorf("%w: window size must be >= failure threshold", ErrInvalidConfig)
	}
	return nil
}

// ErrInvalidConfig is returned when a resilience configuration is invalid.
var ErrInvalidConfig = errors.New("invalid resilience configuration")

// Operation is an invocation guarded by a circuit breaker.
type Operation func(ctx context.Context) (interface{}, error)

// CircuitBreaker gates calls to a single named dependency based on a bounded
// sliding window of recent outcomes.
//
// The breaker has three states:
//   - closed: calls pass through; the window tracks outcomes and the breaker
//     opens once failures in the window reach FailureThreshold.
//   - open: calls fail fast with CircuitOpenError until OpenTimeout has
//     elapsed since the last failure.
//   - half-open: a probe is allowed through; SuccessThreshold consecutive
//     successes close the circuit, any failure reopens it.
//
// Failure counts are always derived from the window contents, so old failures
// age out as the window rolls over.
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu                sync.Mutex
	state             State
	window            []bool
	halfOpenSuccesses int
	totalCalls        int64
	lastFailureTime   time.Time

	logger  *zap.Logger
	metrics *BreakerMetrics
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerLogger sets a custom logger on the breaker.
func WithBreakerLogger(l *zap.Logger) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.logger = l
	}
}

// WithBreakerMetrics attaches a metrics collector to the breaker.
func WithBreakerMetrics(m *BreakerMetrics) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.metrics = m
	}
}

// NewCircuitBreaker creates a new circuit breaker for the named dependency.
func NewCircuitBreaker(name string, config BreakerConfig, opts ...BreakerOption) (*CircuitBreaker, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: breaker name must not be empty", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cb := &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
		window: make([]bool, 0, config.WindowSize),
		logger: logger.GetLogger().Named("breaker"),
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb, nil
}

// Name returns the logical dependency name of the breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Call executes the operation if the breaker allows it and records exactly
// one outcome in the window. The breaker lock is not held while the
// operation runs, so slow calls on one dependency never block state reads
// or calls through other breakers.
func (cb *CircuitBreaker) Call(ctx context.Context, op Operation) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := cb.beforeCall(); err != nil {
		if cb.metrics != nil {
			cb.metrics.RecordRejection(cb.name)
		}
		return nil, err
	}

	result, err := op(ctx)
	cb.afterCall(err == nil)

	return result, err
}

// State returns the current breaker state, applying the open-timeout
// transition if it is due.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeProbe(time.Now())
	return cb.state
}

// Reset forces the breaker to closed state and clears the window. This is an
// operational escape hatch, not part of steady-state logic.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transitionTo(StateClosed)
	cb.window = cb.window[:0]
	cb.halfOpenSuccesses = 0
}

// Snapshot returns an observability snapshot of the breaker. All counters
// are derived from the current window contents.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failures, successes := cb.windowCounts()
	return BreakerSnapshot{
		Name:            cb.name,
		State:           cb.state,
		FailureCount:    failures,
		SuccessCount:    successes,
		RecentFailures:  cb.trailingFailures(),
		TotalCalls:      cb.totalCalls,
		LastFailureTime: cb.lastFailureTime,
	}
}

// BreakerSnapshot is a point-in-time view of a breaker for dashboards.
type BreakerSnapshot struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	RecentFailures  int       `json:"recent_failures"`
	TotalCalls      int64     `json:"total_calls"`
	LastFailureTime time.Time `json:"last_failure_time"`
}

// beforeCall checks whether a call may proceed, transitioning open breakers
// to half-open once the open timeout has elapsed.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.maybeProbe(now)

	if cb.state == StateOpen {
		retryAfter := cb.config.OpenTimeout - now.Sub(cb.lastFailureTime)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &CircuitOpenError{Name: cb.name, RetryAfter: retryAfter}
	}

	return nil
}

// afterCall records the outcome of a completed call and applies state
// transitions.
func (cb *CircuitBreaker) afterCall(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.recordOutcome(success)
	cb.totalCalls++
	if !success {
		cb.lastFailureTime = time.Now()
	}

	if cb.metrics != nil {
		cb.metrics.RecordCall(cb.name, success)
	}

	switch cb.state {
	case StateClosed:
		failures, _ := cb.windowCounts()
		if failures >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		if success {
			cb.halfOpenSuccesses++
			if cb.halfOpenSuccesses >= cb.config.SuccessThreshold {
				cb.transitionTo(StateClosed)
			}
		} else {
			// The probe failed, reopen and restart the cooldown.
			cb.transitionTo(StateOpen)
		}
	}
}

// maybeProbe transitions an open breaker to half-open once the open timeout
// has elapsed since the last failure. Must be called with the lock held.
func (cb *CircuitBreaker) maybeProbe(now time.Time) {
	if cb.state == StateOpen && now.Sub(cb.lastFailureTime) >= cb.config.OpenTimeout {
		cb.transitionTo(StateHalfOpen)
	}
}

// recordOutcome appends one outcome to the window, evicting the oldest entry
// when the window is at capacity. Must be called with the lock held.
func (cb *CircuitBreaker) recordOutcome(success bool) {
	if len(cb.window) >= cb.config.WindowSize {
		copy(cb.window, cb.window[1:])
		cb.window[len(cb.window)-1] = success
		return
	}
	cb.window = append(cb.window, success)
}

// windowCounts derives failure and success counts from the window contents.
// Must be called with the lock held.
func (cb *CircuitBreaker) windowCounts() (failures, successes int) {
	for _, ok := range cb.window {
		if ok {
			successes++
		} else {
			failures++
		}
	}
	return failures, successes
}

// trailingFailures counts consecutive failures at the tail of the window.
// Must be called with the lock held.
func (cb *CircuitBreaker) trailingFailures() int {
	n := 0
	for i := len(cb.window) - 1; i >= 0; i-- {
		if cb.window[i] {
			break
		}
		n++
	}
	return n
}

// transitionTo changes the breaker state and resets transient counters.
// Must be called with the lock held.
func (cb *CircuitBreaker) transitionTo(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.halfOpenSuccesses = 0

	// A breaker that has just recovered starts with a fresh window, so
	// failures observed before the outage cannot instantly re-open it.
	if newState == StateClosed {
		cb.window = cb.window[:0]
	}

	if cb.logger != nil {
		cb.logger.Info("circuit breaker state changed",
			zap.String("breaker", cb.name),
			zap.Stringer("from", oldState),
			zap.Stringer("to", newState),
		)
	}
	if cb.metrics != nil {
		cb.metrics.RecordStateChange(cb.name, newState)
	}
	if cb.config.OnStateChange != nil {
		// Run outside the lock to prevent deadlocks in callbacks.
		go cb.config.OnStateChange(cb.name, oldState, newState)
	}
}
