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

// Package saga provides distributed transaction support using the Saga
// pattern: an orchestrator executes an ordered list of caller-supplied steps
// sequentially and, on any step failure, triggers reverse-order compensation
// of already-completed steps.
package saga

import (
	"time"
)

// State represents the overall state of a saga instance.
type State int

const (
	// StatePending indicates the saga is created but not yet started.
	StatePending State = iota

	// StateRunning indicates the saga is currently executing steps.
	StateRunning

	// StateCompensating indicates the saga is executing compensation
	// operations after a step failure.
	StateCompensating

	// StateCompleted indicates the saga has completed successfully.
	StateCompleted

	// StateFailed indicates the saga has failed; compensation has run.
	StateFailed

	// StateAborted indicates the caller decided not to execute a constructed
	// saga. Reachable only before execution begins.
	StateAborted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompensating:
		return "compensating"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if no further execution is possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAborted
}

// IsActive returns true if the saga is currently executing or compensating.
func (s State) IsActive() bool {
	return s == StateRunning || s == StateCompensating
}

// StepStatus represents the terminal status of a single step execution.
type StepStatus int

const (
	// StepCompleted indicates the step's action succeeded.
	StepCompleted StepStatus = iota

	// StepFailed indicates the step's action failed after exhausting its
	// retries.
	StepFailed
)

// String returns the string representation of the step status.
func (s StepStatus) String() string {
	switch s {
	case StepCompleted:
		return "completed"
	case StepFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepResult records the outcome of one step execution. Results are
// immutable once appended to a saga context.
type StepResult struct {
	// StepName is the name of the executed step.
	StepName string `json:"step_name"`

	// Status is the terminal status of the execution.
	Status StepStatus `json:"status"`

	// Result is the value returned by a completed step, nil for failures.
	Result interface{} `json:"result,omitempty"`

	// Err is the error from a failed step, nil for completions.
	Err error `json:"-"`

	// Duration is how long the step ran, across all attempts.
	Duration time.Duration `json:"duration"`

	// RetryCount is the number of retries consumed (0 means the first
	// attempt succeeded).
	RetryCount int `json:"retry_count"`

	// Timestamp is when the outcome was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// StatusSnapshot is a point-in-time view of a saga for status queries and
// monitoring endpoints.
type StatusSnapshot struct {
	SagaID         string    `json:"saga_id"`
	Status         State     `json:"status"`
	TotalSteps     int       `json:"total_steps"`
	CompletedSteps []string  `json:"completed_steps"`
	FailedStep     string    `json:"failed_step,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

// Outcome is the structured result of a saga execution. Execute never
// panics or leaks an unhandled failure: every terminal condition is
// represented here so callers can render a deterministic response.
type Outcome struct {
	// SagaID identifies the saga instance.
	SagaID string `json:"saga_id"`

	// Status is the terminal saga state.
	Status State `json:"status"`

	// Duration is the total wall-clock execution time.
	Duration time.Duration `json:"duration"`

	// Data holds the accumulated context data on success.
	Data map[string]interface{} `json:"data,omitempty"`

	// FailedStep names the step whose failure triggered compensation.
	FailedStep string `json:"failed_step,omitempty"`

	// Err carries the original step error on failure.
	Err error `json:"-"`
}

// Succeeded reports whether the saga completed all steps.
func (o *Outcome) Succeeded() bool {
	return o.Status == StateCompleted
}
