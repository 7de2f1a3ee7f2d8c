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

package saga

import (
	"context"
	"time"
)

// Step is a single unit of work within a saga. Business logic (reserve
// inventory, charge payment, ...) is supplied entirely by the caller as a
// Step implementation; the orchestrator only sequences execution and
// compensation.
type Step interface {
	// Name returns the step name, unique within a saga.
	Name() string

	// Execute runs the step's action. The returned value is stored in the
	// saga context keyed by the step name.
	Execute(ctx context.Context, sagaCtx *Context) (interface{}, error)

	// Compensate undoes the step's effects during rollback.
	Compensate(ctx context.Context, sagaCtx *Context) error

	// Timeout bounds each execution attempt. Zero means no per-step timeout.
	Timeout() time.Duration

	// MaxRetries is the number of automatic retries after a failed attempt.
	MaxRetries() int

	// Idempotent reports whether the step may be safely re-executed by a
	// caller-driven saga-level retry without duplicating side effects.
	Idempotent() bool
}

// NoCompensation can be embedded by Step implementations that have no
// rollback action. The orchestrator logs and skips such steps during
// compensation.
type NoCompensation struct{}

// Compensate is a no-op.
func (NoCompensation) Compensate(context.Context, *Context) error { return nil }

// HasCompensation reports that no rollback is defined.
func (NoCompensation) HasCompensation() bool { return false }

// hasCompensation reports whether a step defines a rollback action. Steps
// may opt out by implementing HasCompensation() bool (see NoCompensation).
func hasCompensation(s Step) bool {
	if hc, ok := s.(interface{ HasCompensation() bool }); ok {
		return hc.HasCompensation()
	}
	return true
}

// ActionFunc is a step action supplied as a plain function.
type ActionFunc func(ctx context.Context, sagaCtx *Context) (interface{}, error)

// CompensateFunc is a compensation action supplied as a plain function.
type CompensateFunc func(ctx context.Context, sagaCtx *Context) error

// funcStep adapts plain functions to the Step interface.
type funcStep struct {
	name       string
	action     ActionFunc
	compensate CompensateFunc
	timeout    time.Duration
	maxRetries int
	idempotent bool
}

// StepOption configures a function-based step.
type StepOption func(*funcStep)

// WithCompensation sets the step's rollback action.
func WithCompensation(fn CompensateFunc) StepOption {
	return func(s *funcStep) {
		s.compensate = fn
	}
}

// WithTimeout bounds each execution attempt of the step.
func WithTimeout(d time.Duration) StepOption {
	return func(s *funcStep) {
		s.timeout = d
	}
}

// WithMaxRetries sets the number of automatic retries after a failed attempt.
func WithMaxRetries(n int) StepOption {
	return func(s *funcStep) {
		s.maxRetries = n
	}
}

// Idempotent marks the step as safe to re-execute.
func Idempotent() StepOption {
	return func(s *funcStep) {
		s.idempotent = true
	}
}

// NewStep builds a Step from a name and an action function. Compensation,
// timeout, retries, and idempotency are supplied through options; a step
// without WithCompensation has no rollback defined and is skipped during
// compensation.
func NewStep(name string, action ActionFunc, opts ...StepOption) Step {
	s := &funcStep{
		name:   name,
		action: action,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *funcStep) Name() string { return s.name }

func (s *funcStep) Execute(ctx context.Context, sagaCtx *Context) (interface{}, error) {
	return s.action(ctx, sagaCtx)
}

func (s *funcStep) Compensate(ctx context.Context, sagaCtx *Context) error {
	if s.compensate == nil {
		return nil
	}
	return s.compensate(ctx, sagaCtx)
}

func (s *funcStep) HasCompensation() bool { return s.compensate != nil }

func (s *funcStep) Timeout() time.Duration { return s.timeout }

func (s *funcStep) MaxRetries() int { return s.maxRetries }

func (s *funcStep) Idempotent() bool { return s.idempotent }
