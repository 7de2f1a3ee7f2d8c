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
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/orchestrix/sagaflow/pkg/logger"
	"go.uber.org/zap"
)

// ClientConfig configures a resilient client.
type ClientConfig struct {
	// ConnectTimeout bounds connection establishment for outbound HTTP calls.
	ConnectTimeout time.Duration

	// RequestTimeout bounds each individual invocation, including reading the
	// response. A timed-out invocation is classified retryable and subject to
	// the same backoff schedule.
	RequestTimeout time.Duration

	// RetryPolicy is the retry policy applied inside the breaker.
	RetryPolicy RetryPolicy
}

// DefaultClientConfig returns a default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 10 * time.Second,
		RetryPolicy:    DefaultRetryPolicy(),
	}
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect timeout must be > 0", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be > 0", ErrInvalidConfig)
	}
	return c.RetryPolicy.Validate()
}

// Client composes a circuit breaker, a retry executor, and invocation
// timeouts around outbound calls to named remote dependencies.
//
// The breaker wraps the entire retry sequence, so a flapping dependency
// records one breaker outcome per logical call instead of one per attempt.
type Client struct {
	registry   *BreakerRegistry
	executor   *Executor
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets a custom logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithHTTPClient replaces the default HTTP client used by DoRequest.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryExecutor replaces the executor built from the client config,
// for callers that need metrics or a custom classifier on the retry layer.
func WithRetryExecutor(e *Executor) ClientOption {
	return func(c *Client) {
		c.executor = e
	}
}

// NewClient creates a resilient client backed by the given breaker registry.
func NewClient(registry *BreakerRegistry, config ClientConfig, opts ...ClientOption) (*Client, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: breaker registry is required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	executor, err := NewExecutor(config.RetryPolicy)
	if err != nil {
		return nil, err
	}

	c := &Client{
		registry: registry,
		executor: executor,
		config:   config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: config.ConnectTimeout,
				}).DialContext,
			},
		},
		logger: logger.GetLogger().Named("client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Invoke runs the invocation against the named dependency through the
// dependency's circuit breaker, with the entire retry sequence counted by
// the breaker as a single outcome. Each individual attempt is bounded by the
// configured request timeout.
func (c *Client) Invoke(ctx context.Context, dependency string, fn Operation) (interface{}, error) {
	cb, err := c.registry.GetOrCreate(dependency)
	if err != nil {
		return nil, err
	}

	return cb.Call(ctx, func(ctx context.Context) (interface{}, error) {
		return c.executor.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
			defer cancel()
			return fn(attemptCtx)
		})
	})
}

// DoRequest performs an HTTP request against the named dependency through
// Invoke, converting server-side status codes into classified failures so
// the retry and breaker layers observe them.
func (c *Client) DoRequest(ctx context.Context, dependency string, req *http.Request) (*http.Response, error) {
	result, err := c.Invoke(ctx, dependency, func(ctx context.Context) (interface{}, error) {
		resp, err := c.httpClient.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("dependency", dependency),
			zap.String("url", req.URL.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return result.(*http.Response), nil
}
