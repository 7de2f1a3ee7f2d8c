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
	"testing"
	"time"
)

// fastPolicy keeps backoff negligible so retry tests run quickly.
func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      maxRetries,
		BaseDelay:       time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		ExponentialBase: 2.0,
		Jitter:          false,
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{
			name:   "defaults",
			policy: DefaultRetryPolicy(),
		},
		{
			name:   "zero retries is valid",
			policy: RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, ExponentialBase: 2.0},
		},
		{
			name:    "negative retries",
			policy:  RetryPolicy{MaxRetries: -1, BaseDelay: time.Millisecond, ExponentialBase: 2.0},
			wantErr: true,
		},
		{
			name:    "negative base delay",
			policy:  RetryPolicy{MaxRetries: 1, BaseDelay: -time.Second, ExponentialBase: 2.0},
			wantErr: true,
		},
		{
			name:    "max delay below base delay",
			policy:  RetryPolicy{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: time.Millisecond, ExponentialBase: 2.0},
			wantErr: true,
		},
		{
			name:    "exponential base below 1",
			policy:  RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, ExponentialBase: 0.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRetryPolicy_DelayGrowsExponentially(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:      5,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          false,
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for attempt, expected := range want {
		if got := policy.Delay(attempt); got != expected {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestRetryPolicy_DelayCappedAtMax(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:      20,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
	}

	if got := policy.Delay(10); got != 5*time.Second {
		t.Errorf("Delay(10) = %v, want cap of 5s", got)
	}
	if got := policy.Delay(0); got != 100*time.Millisecond {
		t.Errorf("Delay(0) = %v, want 100ms", got)
	}
	if got := policy.Delay(-1); got != 0 {
		t.Errorf("Delay(-1) = %v, want 0", got)
	}
}

func TestExecutor_SuccessOnFirstAttempt(t *testing.T) {
	e, err := NewExecutor(fastPolicy(3))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	calls := 0
	result, err := e.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != 42 {
		t.Errorf("result = %v, want 42", result)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecutor_RetriesTransientUntilSuccess(t *testing.T) {
	e, err := NewExecutor(fastPolicy(3))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	calls := 0
	result, err := e.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, &HTTPStatusError{StatusCode: 503}
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != "recovered" {
		t.Errorf("result = %v, want recovered", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecutor_NonRetryablePropagatesImmediately(t *testing.T) {
	e, err := NewExecutor(fastPolicy(3))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	terminal := errors.New("validation failed")
	calls := 0
	_, err = e.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, terminal
	})
	if !errors.Is(err, terminal) {
		t.Errorf("expected terminal error, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("non-retryable failure must not be reported as exhaustion")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecutor_ExhaustionWrapsLastError(t *testing.T) {
	e, err := NewExecutor(fastPolicy(2))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	calls := 0
	_, err = e.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, &HTTPStatusError{StatusCode: 503}
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 initial + 2 retries)", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}

	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *RetryExhaustedError, got %T", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", exhausted.Attempts)
	}

	// The last underlying error stays reachable through the chain.
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatal("last error not reachable via errors.As")
	}
	if statusErr.StatusCode != 503 {
		t.Errorf("status code = %d, want 503", statusErr.StatusCode)
	}
}

func TestExecutor_ZeroRetriesSingleAttempt(t *testing.T) {
	e, err := NewExecutor(fastPolicy(0))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	calls := 0
	_, err = e.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, &HTTPStatusError{StatusCode: 503}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
}

func TestExecutor_JitterUsesRandSource(t *testing.T) {
	e, err := NewExecutor(RetryPolicy{
		MaxRetries:      1,
		BaseDelay:       time.Millisecond,
		ExponentialBase: 2.0,
		Jitter:          true,
	})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	randCalled := false
	e.rand = func() float64 {
		randCalled = true
		return 1.0
	}

	e.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, &HTTPStatusError{StatusCode: 503}
	})
	if !randCalled {
		t.Error("jitter source was not consulted")
	}
}

func TestExecutor_ContextCanceledDuringBackoff(t *testing.T) {
	e, err := NewExecutor(RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       time.Second,
		ExponentialBase: 2.0,
		Jitter:          false,
	})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	_, err = e.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, &HTTPStatusError{StatusCode: 503}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Execute blocked %v past cancellation", elapsed)
	}
}

func TestExecutor_CustomClassifier(t *testing.T) {
	sentinel := errors.New("flaky")
	policy := fastPolicy(2)
	policy.Classifier = ClassifierFunc(func(err error) bool {
		return errors.Is(err, sentinel)
	})

	e, err := NewExecutor(policy)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	calls := 0
	_, err = e.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, sentinel
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
