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
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BreakerMetrics collects Prometheus metrics for circuit breakers.
type BreakerMetrics struct {
	callsTotal        *prometheus.CounterVec
	rejectionsTotal   *prometheus.CounterVec
	stateGauge        *prometheus.GaugeVec
	stateChangesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewBreakerMetrics creates a breaker metrics collector registered against
// the given Prometheus registry. A nil registry creates a private one.
func NewBreakerMetrics(namespace string, registry *prometheus.Registry) (*BreakerMetrics, error) {
	if namespace == "" {
		namespace = "sagaflow"
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &BreakerMetrics{registry: registry}

	m.callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "calls_total",
			Help:      "Total number of calls processed by circuit breakers",
		},
		[]string{"breaker", "outcome"},
	)

	m.rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "rejections_total",
			Help:      "Total number of calls rejected while the circuit was open",
		},
		[]string{"breaker"},
	)

	m.stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker"},
	)

	m.stateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"breaker", "state"},
	)

	collectors := []prometheus.Collector{
		m.callsTotal,
		m.rejectionsTotal,
		m.stateGauge,
		m.stateChangesTotal,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// RecordCall records one processed call outcome for the named breaker.
func (m *BreakerMetrics) RecordCall(breaker string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.callsTotal.WithLabelValues(breaker, outcome).Inc()
}

// RecordRejection records a fast-fail rejection while the circuit was open.
func (m *BreakerMetrics) RecordRejection(breaker string) {
	m.rejectionsTotal.WithLabelValues(breaker).Inc()
}

// RecordStateChange records a state transition for the named breaker.
func (m *BreakerMetrics) RecordStateChange(breaker string, to State) {
	m.stateGauge.WithLabelValues(breaker).Set(float64(to))
	m.stateChangesTotal.WithLabelValues(breaker, to.String()).Inc()
}

// Registry returns the Prometheus registry backing the collector.
func (m *BreakerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RetryMetrics collects Prometheus metrics for retry executors.
type RetryMetrics struct {
	attemptsTotal     *prometheus.CounterVec
	successTotal      *prometheus.CounterVec
	failureTotal      *prometheus.CounterVec
	durationHistogram *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewRetryMetrics creates a retry metrics collector registered against the
// given Prometheus registry. A nil registry creates a private one.
func NewRetryMetrics(namespace string, registry *prometheus.Registry) (*RetryMetrics, error) {
	if namespace == "" {
		namespace = "sagaflow"
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &RetryMetrics{registry: registry}

	m.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of retry attempts",
		},
		[]string{"attempt"},
	)

	m.successTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "success_total",
			Help:      "Total number of successful executions",
		},
		[]string{"attempts"},
	)

	m.failureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "failure_total",
			Help:      "Total number of failed executions",
		},
		[]string{"reason"},
	)

	m.durationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "duration_seconds",
			Help:      "Duration of retry execution in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"status"},
	)

	collectors := []prometheus.Collector{
		m.attemptsTotal,
		m.successTotal,
		m.failureTotal,
		m.durationHistogram,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// RecordAttempt records a retry attempt.
func (m *RetryMetrics) RecordAttempt(attempt int) {
	label := fmt.Sprintf("%d", attempt)
	if attempt > 5 {
		label = "5+"
	}
	m.attemptsTotal.WithLabelValues(label).Inc()
}

// RecordSuccess records a successful execution.
func (m *RetryMetrics) RecordSuccess(attempts int, duration time.Duration) {
	label := fmt.Sprintf("%d", attempts)
	if attempts > 5 {
		label = "5+"
	}
	m.successTotal.WithLabelValues(label).Inc()
	m.durationHistogram.WithLabelValues("success").Observe(duration.Seconds())
}

// RecordFailure records a failed execution.
func (m *RetryMetrics) RecordFailure(reason string, duration time.Duration) {
	m.failureTotal.WithLabelValues(reason).Inc()
	m.durationHistogram.WithLabelValues("failure").Observe(duration.Seconds())
}

// Registry returns the Prometheus registry backing the collector.
func (m *RetryMetrics) Registry() *prometheus.Registry {
	return m.registry
}
