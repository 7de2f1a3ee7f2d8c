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
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrBreakerNotFound is returned when a named breaker does not exist.
var ErrBreakerNotFound = errors.New("circuit breaker not found")

// BreakerRegistry is a lazily-populated, thread-safe map from dependency name
// to circuit breaker. Breakers are created on first reference and live for
// the lifetime of the registry.
//
// Registries are plain injected objects; production wiring creates one per
// process and hands it to every resilient client.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults BreakerConfig

	logger  *zap.Logger
	metrics *BreakerMetrics
}

// RegistryOption configures a BreakerRegistry.
type RegistryOption func(*BreakerRegistry)

// WithRegistryLogger sets the logger propagated to created breakers.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *BreakerRegistry) {
		r.logger = l
	}
}

// WithRegistryMetrics sets the metrics collector propagated to created breakers.
func WithRegistryMetrics(m *BreakerMetrics) RegistryOption {
	return func(r *BreakerRegistry) {
		r.metrics = m
	}
}

// NewBreakerRegistry creates a registry whose breakers default to the given
// configuration.
func NewBreakerRegistry(defaults BreakerConfig, opts ...RegistryOption) (*BreakerRegistry, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}

	r := &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// GetOrCreate returns the breaker for the named dependency, creating it with
// the registry defaults on first reference. The same name always yields the
// same instance.
func (r *BreakerRegistry) GetOrCreate(name string) (*CircuitBreaker, error) {
	return r.GetOrCreateWithConfig(name, r.defaults)
}

// GetOrCreateWithConfig returns the breaker for the named dependency,
// creating it with the given configuration on first reference. The
// configuration is ignored for breakers that already exist.
func (r *BreakerRegistry) GetOrCreateWithConfig(name string, config BreakerConfig) (*CircuitBreaker, error) {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have created it between the read and write locks.
	if cb, ok := r.breakers[name]; ok {
		return cb, nil
	}

	var opts []BreakerOption
	if r.logger != nil {
		opts = append(opts, WithBreakerLogger(r.logger))
	}
	if r.metrics != nil {
		opts = append(opts, WithBreakerMetrics(r.metrics))
	}

	cb, err := NewCircuitBreaker(name, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create breaker %q: %w", name, err)
	}

	r.breakers[name] = cb
	return cb, nil
}

// Get returns the breaker for the named dependency, or ErrBreakerNotFound.
func (r *BreakerRegistry) Get(name string) (*CircuitBreaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cb, ok := r.breakers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBreakerNotFound, name)
	}
	return cb, nil
}

// GetAllStates returns an observability snapshot of every breaker keyed by
// dependency name.
func (r *BreakerRegistry) GetAllStates() map[string]BreakerSnapshot {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.RUnlock()

	// Snapshot outside the registry lock; each breaker takes its own lock.
	states := make(map[string]BreakerSnapshot, len(breakers))
	for _, cb := range breakers {
		states[cb.Name()] = cb.Snapshot()
	}
	return states
}

// Reset forces the named breaker back to closed with a cleared window. This
// is an operational escape hatch for manual recovery.
func (r *BreakerRegistry) Reset(name string) error {
	cb, err := r.Get(name)
	if err != nil {
		return err
	}
	cb.Reset()
	return nil
}
