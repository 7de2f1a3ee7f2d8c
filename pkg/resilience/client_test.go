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
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, breakerCfg BreakerConfig, policy RetryPolicy) (*Client, *BreakerRegistry) {
	t.Helper()

	registry, err := NewBreakerRegistry(breakerCfg)
	if err != nil {
		t.Fatalf("NewBreakerRegistry failed: %v", err)
	}

	config := DefaultClientConfig()
	config.RetryPolicy = policy

	client, err := NewClient(registry, config)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, registry
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(nil, DefaultClientConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil registry: expected ErrInvalidConfig, got %v", err)
	}

	registry := newTestRegistry(t)
	bad := DefaultClientConfig()
	bad.RequestTimeout = 0
	if _, err := NewClient(registry, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero request timeout: expected ErrInvalidConfig, got %v", err)
	}
}

func TestClient_InvokeSuccess(t *testing.T) {
	client, registry := newTestClient(t, DefaultBreakerConfig(), fastPolicy(2))

	result, err := client.Invoke(context.Background(), "payment-service", func(ctx context.Context) (interface{}, error) {
		return "charged", nil
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result != "charged" {
		t.Errorf("result = %v, want charged", result)
	}

	// The breaker was created lazily and saw exactly one outcome.
	cb, err := registry.Get("payment-service")
	if err != nil {
		t.Fatalf("breaker was not created: %v", err)
	}
	if snap := cb.Snapshot(); snap.TotalCalls != 1 {
		t.Errorf("breaker outcomes = %d, want 1", snap.TotalCalls)
	}
}

func TestClient_BreakerCountsRetrySequenceAsOneOutcome(t *testing.T) {
	breakerCfg := BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		WindowSize:       4,
	}
	client, registry := newTestClient(t, breakerCfg, fastPolicy(2))

	var calls atomic.Int64
	flaky := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return nil, &HTTPStatusError{StatusCode: 503}
	}

	// First logical call: 3 attempts inside, but one breaker outcome.
	_, err := client.Invoke(context.Background(), "inventory-service", flaky)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}

	cb, _ := registry.Get("inventory-service")
	snap := cb.Snapshot()
	if snap.FailureCount != 1 {
		t.Errorf("breaker failures = %d, want 1 (one per retry sequence)", snap.FailureCount)
	}
	if snap.State != StateClosed {
		t.Errorf("state = %v, want closed after one logical failure", snap.State)
	}

	// Second logical call reaches the threshold and opens the breaker.
	client.Invoke(context.Background(), "inventory-service", flaky)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	// Third logical call is rejected before any attempt is made.
	before := calls.Load()
	_, err = client.Invoke(context.Background(), "inventory-service", flaky)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if calls.Load() != before {
		t.Error("attempts were made while breaker open")
	}
}

func TestClient_NonRetryableSingleAttempt(t *testing.T) {
	client, _ := newTestClient(t, DefaultBreakerConfig(), fastPolicy(3))

	terminal := errors.New("card declined")
	calls := 0
	_, err := client.Invoke(context.Background(), "payment-service", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, terminal
	})
	if !errors.Is(err, terminal) {
		t.Errorf("expected terminal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
}

func TestClient_AttemptBoundedByRequestTimeout(t *testing.T) {
	registry := newTestRegistry(t)
	config := ClientConfig{
		ConnectTimeout: time.Second,
		RequestTimeout: 20 * time.Millisecond,
		RetryPolicy:    fastPolicy(2),
	}
	client, err := NewClient(registry, config)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	calls := 0
	_, err = client.Invoke(context.Background(), "slow-service", func(ctx context.Context) (interface{}, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	})

	// Each timed-out attempt is classified retryable, so the whole budget
	// is spent before exhaustion is reported.
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline expiry in chain, got %v", err)
	}
}

func TestClient_ConcurrentInvokesShareBoundedWindow(t *testing.T) {
	const workflows = 50

	breakerCfg := BreakerConfig{
		FailureThreshold: 40,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		WindowSize:       40,
	}
	client, registry := newTestClient(t, breakerCfg, fastPolicy(0))

	var wg sync.WaitGroup
	for i := 0; i < workflows; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			// Every workflow hits the same dependency; a few fail.
			client.Invoke(context.Background(), "shared-service", func(ctx context.Context) (interface{}, error) {
				if idx%10 == 0 {
					return nil, &HTTPStatusError{StatusCode: 503}
				}
				return idx, nil
			})
		}(i)
	}
	wg.Wait()

	cb, err := registry.Get("shared-service")
	if err != nil {
		t.Fatalf("shared breaker missing: %v", err)
	}
	snap := cb.Snapshot()
	if window := snap.FailureCount + snap.SuccessCount; window > 40 {
		t.Errorf("window holds %d outcomes, want <= 40", window)
	}
	if snap.TotalCalls != workflows {
		t.Errorf("total calls = %d, want %d", snap.TotalCalls, workflows)
	}
	if snap.State != StateClosed {
		t.Errorf("state = %v, want closed with 5 scattered failures", snap.State)
	}
}

func TestClient_DoRequestRetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := newTestClient(t, DefaultBreakerConfig(), fastPolicy(3))

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	resp, err := client.DoRequest(context.Background(), "order-service", req)
	if err != nil {
		t.Fatalf("DoRequest failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}

func TestClient_DoRequestClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := newTestClient(t, DefaultBreakerConfig(), fastPolicy(3))

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	_, err = client.DoRequest(context.Background(), "order-service", req)
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", statusErr.StatusCode)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}
