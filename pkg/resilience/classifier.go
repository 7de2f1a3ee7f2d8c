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
	"net"
	"syscall"
)

// ErrorClassifier classifies failures as retryable or terminal. Retry loops
// branch on the classification rather than on error type matching.
type ErrorClassifier interface {
	// IsRetryable reports whether the error is transient and worth retrying.
	IsRetryable(err error) bool
}

// ClassifierFunc adapts a function to the ErrorClassifier interface.
type ClassifierFunc func(err error) bool

// IsRetryable implements ErrorClassifier.
func (f ClassifierFunc) IsRetryable(err error) bool {
	return f(err)
}

// HTTPStatusError represents a response carrying a non-success status code
// from a remote dependency.
type HTTPStatusError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// defaultTransientStatusCodes are the status codes treated as transient by
// the default classifier.
var defaultTransientStatusCodes = map[int]bool{
	408: true, // request timeout
	429: true, // too many requests
	500: true,
	502: true,
	503: true,
	504: true,
}

// transientClassifier implements the default retryability rules: connection
// failures, timeouts, and responses carrying a configured set of transient
// status codes are retryable; everything else is terminal on first
// occurrence.
type transientClassifier struct {
	statusCodes map[int]bool
}

// DefaultClassifier returns the default error classifier.
func DefaultClassifier() ErrorClassifier {
	return &transientClassifier{statusCodes: defaultTransientStatusCodes}
}

// NewTransientStatusClassifier returns a classifier using the given set of
// transient status codes in place of the defaults.
func NewTransientStatusClassifier(statusCodes []int) ErrorClassifier {
	codes := make(map[int]bool, len(statusCodes))
	for _, c := range statusCodes {
		codes[c] = true
	}
	return &transientClassifier{statusCodes: codes}
}

// IsRetryable implements ErrorClassifier.
func (c *transientClassifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Timeouts are retryable, including deadline expiry on the invocation
	// context.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection-level failures.
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	// Transient status codes from the remote dependency.
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return c.statusCodes[statusErr.StatusCode]
	}

	return false
}
