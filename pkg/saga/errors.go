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
	"errors"
	"fmt"
)

// Common errors returned by the saga engine.
var (
	// ErrNoSteps is returned when a saga is executed without any steps.
	ErrNoSteps = errors.New("saga has no steps")

	// ErrDuplicateStep is returned when a step name is reused within a saga.
	ErrDuplicateStep = errors.New("duplicate step name")

	// ErrAlreadyExecuted is returned when Execute is called more than once
	// on the same orchestrator instance.
	ErrAlreadyExecuted = errors.New("saga has already been executed")

	// ErrSagaAborted is returned when Execute is called on an aborted saga.
	ErrSagaAborted = errors.New("saga was aborted")

	// ErrAbortAfterStart is returned when Abort is called once execution has
	// begun.
	ErrAbortAfterStart = errors.New("cannot abort a saga after execution has started")

	// ErrSagaNotFound is returned by the registry for unknown saga IDs.
	ErrSagaNotFound = errors.New("saga not found")
)

// StepFailedError reports that a step's action failed after exhausting its
// retry budget. It halts forward progress and triggers compensation.
type StepFailedError struct {
	SagaID   string
	StepName string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *StepFailedError) Error() string {
	return fmt.Sprintf("saga %s: step %q failed after %d attempts: %v", e.SagaID, e.StepName, e.Attempts, e.Err)
}

// Unwrap exposes the underlying step error.
func (e *StepFailedError) Unwrap() error {
	return e.Err
}

// CompensationError reports that a compensator failed. It is logged and
// isolated: one bad compensator never blocks compensation of the remaining
// steps.
type CompensationError struct {
	SagaID   string
	StepName string
	Err      error
}

// Error implements the error interface.
func (e *CompensationError) Error() string {
	return fmt.Sprintf("saga %s: compensation for step %q failed: %v", e.SagaID, e.StepName, e.Err)
}

// Unwrap exposes the underlying compensation error.
func (e *CompensationError) Unwrap() error {
	return e.Err
}
