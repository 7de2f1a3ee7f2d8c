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

package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/orchestrix/sagaflow/pkg/logger"
	"go.uber.org/zap"
)

// ErrRetryExhausted is the sentinel matched by errors.Is when all retry
// attempts have been used without success.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryExhaustedError surfaces the last underlying error after all attempts
// have failed.
type RetryExhaustedError struct {
	// Attempts is the total number of invocations made.
	Attempts int

	// LastErr is the error from the final attempt.
	LastErr error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry attempts exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

// Unwrap exposes the last underlying error to errors.Is/As.
func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// Is matches both the sentinel and the wrapped chain.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// RetryPolicy is an immutable configuration value for bounded
// exponential-backoff retry.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt, so a
	// policy performs at most MaxRetries+1 invocations.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration

	// ExponentialBase is the factor by which the delay grows per attempt.
	ExponentialBase float64

	// Jitter scales each delay by a uniform random factor in [0.5, 1.0] to
	// avoid thundering herds.
	Jitter bool

	// Classifier decides which failures are retryable. When nil, the default
	// classifier (timeouts, connection failures, transient status codes) is
	// used.
	Classifier ErrorClassifier
}

// DefaultRetryPolicy returns a default retry policy.
// - MaxRetries: 3
// - BaseDelay: 100ms
// - MaxDelay: 5s
// - ExponentialBase: 2.0, jitter enabled
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// Validate validates the retry policy.
func (p *RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", ErrInvalidConfig)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("%w: base delay must be >= 0", ErrInvalidConfig)
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("%w: max delay must be >= base delay", ErrInvalidConfig)
	}
	if p.ExponentialBase < 1.0 {
		return fmt.Errorf("%w: exponential base must be >= 1.0", ErrInvalidConfig)
	}
	return nil
}

// Delay returns the backoff delay before retry number attempt (0-indexed):
// min(BaseDelay * ExponentialBase^attempt, MaxDelay), before jitter.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// classifier returns the configured classifier or the default.
func (p *RetryPolicy) classifier() ErrorClassifier {
	if p.Classifier != nil {
		return p.Classifier
	}
	return DefaultClassifier()
}

// Executor wraps arbitrary invocations with bounded exponential-backoff
// retry. Non-retryable failures propagate immediately; retryable failures
// are reattempted until the policy's budget is exhausted, at which point a
// RetryExhaustedError carrying the last error is returned.
type Executor struct {
	policy  RetryPolicy
	logger  *zap.Logger
	metrics *RetryMetrics

	// rand generates jitter factors; replaced in tests for determinism.
	rand func() float64
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets a custom logger.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithRetryMetrics attaches a metrics collector to the executor.
func WithRetryMetrics(m *RetryMetrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates a retry executor with the given policy.
func NewExecutor(policy RetryPolicy, opts ...ExecutorOption) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	e := &Executor{
		policy: policy,
		logger: logger.GetLogger().Named("retry"),
		rand:   rand.Float64,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Policy returns the executor's retry policy.
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Execute invokes fn, retrying classified-retryable failures with backoff
// until the policy's budget is exhausted. The backoff sleep blocks only the
// calling goroutine and honors context cancellation.
func (e *Executor) Execute(ctx context.Context, fn Operation) (interface{}, error) {
	startTime := time.Now()
	classifier := e.policy.classifier()

	var lastErr error
	attempts := e.policy.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if e.metrics != nil {
			e.metrics.RecordAttempt(attempt + 1)
		}

		result, err := fn(ctx)
		if err == nil {
			if e.metrics != nil {
				e.metrics.RecordSuccess(attempt+1, time.Since(startTime))
			}
			return result, nil
		}
		lastErr = err

		if !classifier.IsRetryable(err) {
			e.logger.Debug("non-retryable failure, propagating",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			if e.metrics != nil {
				e.metrics.RecordFailure("non_retryable", time.Since(startTime))
			}
			return nil, err
		}

		// No delay after the final attempt.
		if attempt == attempts-1 {
			break
		}

		delay := e.policy.Delay(attempt)
		if e.policy.Jitter && delay > 0 {
			delay = time.Duration(float64(delay) * (0.5 + e.rand()*0.5))
		}

		e.logger.Info("retrying after error",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if e.metrics != nil {
		e.metrics.RecordFailure("exhausted", time.Since(startTime))
	}

	e.logger.Warn("all retry attempts exhausted",
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)

	return nil, &RetryExhaustedError{Attempts: attempts, LastErr: lastErr}
}
