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
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/orchestrix/sagaflow/pkg/logger"
	"go.uber.org/zap"
)

// maxStepRetryDelay caps the fixed per-step backoff between retries.
const maxStepRetryDelay = 30 * time.Second

// Recorder receives step and saga outcomes as they happen. Persistence of
// execution records is the caller's responsibility; implementations may
// snapshot outcomes to any store for crash recovery or auditing. Recorder
// failures are logged and never affect saga execution.
type Recorder interface {
	// RecordStepResult is called after every step and compensation outcome.
	RecordStepResult(ctx context.Context, sagaID string, result StepResult) error

	// RecordSagaStatus is called on every saga state transition.
	RecordSagaStatus(ctx context.Context, status StatusSnapshot) error
}

// Orchestrator executes an ordered list of steps sequentially and, on any
// step failure, compensates already-completed steps in reverse order.
//
// An orchestrator instance is single-writer: it must not be executed
// concurrently by two callers, and Execute runs at most once. Status
// snapshots may be read concurrently at any time. Steps within one saga run
// strictly sequentially because later steps may depend on earlier results
// and compensation order is the reverse of completion order; distinct sagas
// run concurrently with no shared mutable state beyond injected registries.
type Orchestrator struct {
	id    string
	steps []Step

	mu             sync.RWMutex
	state          State
	completedSteps []string
	failedStep     string
	startTime      time.Time
	endTime        time.Time

	ctx      *Context
	executed atomic.Bool

	logger   *zap.Logger
	recorder Recorder

	// retryDelay computes the backoff before a step retry; replaced in tests.
	retryDelay func(attempt int) time.Duration
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSagaID overrides the generated saga ID.
func WithSagaID(id string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.id = id
	}
}

// WithOrchestratorLogger sets a custom logger.
func WithOrchestratorLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithRecorder attaches a step-outcome recorder.
func WithRecorder(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// NewOrchestrator creates an orchestrator with a generated saga ID and no
// steps. Steps are added with AddStep before Execute is called.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		id:         fmt.Sprintf("saga-%s", uuid.NewString()),
		state:      StatePending,
		logger:     logger.GetLogger().Named("saga"),
		retryDelay: stepRetryDelay,
	}

	for _, opt := range opts {
		opt(o)
	}

	o.ctx = NewContext(o.id)
	return o
}

// ID returns the saga ID.
func (o *Orchestrator) ID() string {
	return o.id
}

// Context returns the saga context.
func (o *Orchestrator) Context() *Context {
	return o.ctx
}

// AddStep appends a step to the saga. Step names must be unique; steps can
// only be added before execution starts.
func (o *Orchestrator) AddStep(step Step) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StatePending {
		return ErrAlreadyExecuted
	}
	for _, existing := range o.steps {
		if existing.Name() == step.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateStep, step.Name())
		}
	}

	o.steps = append(o.steps, step)
	return nil
}

// Abort marks a constructed saga as not-to-be-executed. It is only valid
// before execution begins.
func (o *Orchestrator) Abort() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StatePending {
		return ErrAbortAfterStart
	}
	o.state = StateAborted
	return nil
}

// GetStatus returns a point-in-time snapshot of the saga for status queries.
func (o *Orchestrator) GetStatus() StatusSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	completed := make([]string, len(o.completedSteps))
	copy(completed, o.completedSteps)

	return StatusSnapshot{
		SagaID:         o.id,
		Status:         o.state,
		TotalSteps:     len(o.steps),
		CompletedSteps: completed,
		FailedStep:     o.failedStep,
		StartTime:      o.startTime,
		EndTime:        o.endTime,
	}
}

// Execute runs the saga to a terminal state and returns a structured
// outcome. It never panics out: step failures trigger reverse-order
// compensation and are reported in the outcome, not raised.
//
// Execute runs at most once per orchestrator instance; subsequent calls
// return a failed outcome carrying ErrAlreadyExecuted. An already-COMPLETED
// step is therefore never re-run.
func (o *Orchestrator) Execute(ctx context.Context, initialData map[string]interface{}) *Outcome {
	if !o.executed.CompareAndSwap(false, true) {
		return &Outcome{SagaID: o.id, Status: o.currentState(), Err: ErrAlreadyExecuted}
	}

	o.mu.Lock()
	if o.state == StateAborted {
		o.mu.Unlock()
		return &Outcome{SagaID: o.id, Status: StateAborted, Err: ErrSagaAborted}
	}
	if len(o.steps) == 0 {
		o.state = StateFailed
		o.mu.Unlock()
		return &Outcome{SagaID: o.id, Status: StateFailed, Err: ErrNoSteps}
	}
	o.state = StateRunning
	o.startTime = time.Now()
	steps := o.steps
	o.mu.Unlock()

	o.ctx.merge(initialData)
	o.recordStatus(ctx)

	o.logger.Info("saga started",
		zap.String("saga_id", o.id),
		zap.Int("total_steps", len(steps)),
	)

	for _, step := range steps {
		result, err := o.runStep(ctx, step)
		if err != nil {
			return o.failAndCompensate(ctx, step, result, err)
		}

		o.ctx.Set(step.Name(), result.Result)
		o.ctx.appendResult(result)
		o.recordStepResult(ctx, result)

		o.mu.Lock()
		o.completedSteps = append(o.completedSteps, step.Name())
		o.mu.Unlock()
	}

	o.mu.Lock()
	o.state = StateCompleted
	o.endTime = time.Now()
	duration := o.endTime.Sub(o.startTime)
	o.mu.Unlock()
	o.recordStatus(ctx)

	o.logger.Info("saga completed",
		zap.String("saga_id", o.id),
		zap.Duration("duration", duration),
	)

	return &Outcome{
		SagaID:   o.id,
		Status:   StateCompleted,
		Duration: duration,
		Data:     o.ctx.Data(),
	}
}

// runStep executes one step under its own bounded retry. Each attempt is
// bounded by the step's timeout; a timed-out attempt counts against the
// retry budget like any other failure. The fixed backoff between retries is
// min(2^attempt seconds, 30s), independent of the resilience layer's jitter
// policy.
func (o *Orchestrator) runStep(ctx context.Context, step Step) (StepResult, error) {
	start := time.Now()
	attempts := step.MaxRetries() + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		result, err := o.executeAttempt(ctx, step)
		if err == nil {
			return StepResult{
				StepName:   step.Name(),
				Status:     StepCompleted,
				Result:     result,
				Duration:   time.Since(start),
				RetryCount: attempt,
				Timestamp:  time.Now(),
			}, nil
		}
		lastErr = err

		if attempt < attempts-1 {
			delay := o.retryDelay(attempt)
			o.logger.Warn("step attempt failed, retrying",
				zap.String("saga_id", o.id),
				zap.String("step", step.Name()),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	result := StepResult{
		StepName:   step.Name(),
		Status:     StepFailed,
		Err:        lastErr,
		Duration:   time.Since(start),
		RetryCount: attempts - 1,
		Timestamp:  time.Now(),
	}
	return result, &StepFailedError{
		SagaID:   o.id,
		StepName: step.Name(),
		Attempts: attempts,
		Err:      lastErr,
	}
}

// executeAttempt runs a single attempt of the step's action under the
// step's timeout. No orchestrator lock is held while the action runs.
func (o *Orchestrator) executeAttempt(ctx context.Context, step Step) (interface{}, error) {
	attemptCtx := ctx
	if timeout := step.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return step.Execute(attemptCtx, o.ctx)
}

// failAndCompensate records a step failure, compensates completed steps in
// reverse order, and returns the terminal failure outcome.
func (o *Orchestrator) failAndCompensate(ctx context.Context, step Step, result StepResult, stepErr error) *Outcome {
	o.ctx.appendResult(result)
	o.recordStepResult(ctx, result)

	o.mu.Lock()
	o.failedStep = step.Name()
	o.state = StateCompensating
	o.mu.Unlock()
	o.recordStatus(ctx)

	o.logger.Error("step failed, compensating",
		zap.String("saga_id", o.id),
		zap.String("step", step.Name()),
		zap.Error(stepErr),
	)

	o.compensate(ctx)

	o.mu.Lock()
	o.state = StateFailed
	o.endTime = time.Now()
	duration := o.endTime.Sub(o.startTime)
	o.mu.Unlock()
	o.recordStatus(ctx)

	return &Outcome{
		SagaID:     o.id,
		Status:     StateFailed,
		Duration:   duration,
		FailedStep: step.Name(),
		Err:        stepErr,
	}
}

// compensate undoes completed steps in exact reverse completion order.
// Compensation is best-effort: a step without a compensator is logged and
// skipped, and one failing compensator does not block compensation of the
// remaining steps. Compensation runs exactly once per failed saga.
func (o *Orchestrator) compensate(ctx context.Context) {
	// Rollback must run even if the caller's context was cancelled.
	ctx = context.WithoutCancel(ctx)

	o.mu.RLock()
	completed := make([]string, len(o.completedSteps))
	copy(completed, o.completedSteps)
	o.mu.RUnlock()

	for i := len(completed) - 1; i >= 0; i-- {
		step := o.findStep(completed[i])
		if step == nil {
			continue
		}

		if !hasCompensation(step) {
			o.logger.Info("no compensation defined, skipping",
				zap.String("saga_id", o.id),
				zap.String("step", step.Name()),
			)
			continue
		}

		if err := o.compensateStep(ctx, step); err != nil {
			compErr := &CompensationError{SagaID: o.id, StepName: step.Name(), Err: err}
			o.logger.Error("compensation failed",
				zap.String("saga_id", o.id),
				zap.String("step", step.Name()),
				zap.Error(compErr),
			)
			continue
		}

		o.logger.Info("step compensated",
			zap.String("saga_id", o.id),
			zap.String("step", step.Name()),
		)
	}
}

// compensateStep runs one compensator under the step's timeout.
func (o *Orchestrator) compensateStep(ctx context.Context, step Step) error {
	compCtx := ctx
	if timeout := step.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		compCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return step.Compensate(compCtx, o.ctx)
}

// findStep locates a step descriptor by name.
func (o *Orchestrator) findStep(name string) Step {
	for _, s := range o.steps {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// currentState reads the saga state under the lock.
func (o *Orchestrator) currentState() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// recordStepResult forwards a step outcome to the recorder, if any.
func (o *Orchestrator) recordStepResult(ctx context.Context, result StepResult) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordStepResult(ctx, o.id, result); err != nil {
		o.logger.Warn("failed to record step result",
			zap.String("saga_id", o.id),
			zap.String("step", result.StepName),
			zap.Error(err),
		)
	}
}

// recordStatus forwards a status snapshot to the recorder, if any.
func (o *Orchestrator) recordStatus(ctx context.Context) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordSagaStatus(ctx, o.GetStatus()); err != nil {
		o.logger.Warn("failed to record saga status",
			zap.String("saga_id", o.id),
			zap.Error(err),
		)
	}
}

// stepRetryDelay computes the fixed per-step backoff: min(2^attempt, 30s).
func stepRetryDelay(attempt int) time.Duration {
	seconds := math.Pow(2, float64(attempt))
	delay := time.Duration(seconds * float64(time.Second))
	if delay > maxStepRetryDelay {
		delay = maxStepRetryDelay
	}
	return delay
}
