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

package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/orchestrix/sagaflow/pkg/saga"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a Redis-backed recorder.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string

	// Password is the optional server password.
	Password string

	// DB is the database index.
	DB int

	// KeyPrefix namespaces all keys written by the store.
	KeyPrefix string

	// TTL is the retention applied to saga records. Zero disables expiry.
	TTL time.Duration

	// DialTimeout bounds the initial connectivity check.
	DialTimeout time.Duration
}

// DefaultRedisConfig returns a default Redis recorder configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		KeyPrefix:   "sagaflow",
		TTL:         24 * time.Hour,
		DialTimeout: 5 * time.Second,
	}
}

// stepRecord is the wire form of a step result. Errors are flattened to
// strings because error values do not round-trip through JSON.
type stepRecord struct {
	StepName   string      `json:"step_name"`
	Status     string      `json:"status"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	Duration   int64       `json:"duration_ms"`
	RetryCount int         `json:"retry_count"`
	Timestamp  time.Time   `json:"timestamp"`
}

// toStepRecord converts a step result to its wire form.
func toStepRecord(result saga.StepResult) stepRecord {
	rec := stepRecord{
		StepName:   result.StepName,
		Status:     result.Status.String(),
		Result:     result.Result,
		Duration:   result.Duration.Milliseconds(),
		RetryCount: result.RetryCount,
		Timestamp:  result.Timestamp,
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}
	return rec
}

// RedisStore is a Redis-backed recorder. Step outcomes are appended to a
// per-saga list and the latest status snapshot is kept alongside it, so an
// external collaborator can rebuild the execution record of any saga.
type RedisStore struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisStore creates a Redis recorder and verifies connectivity.
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis address must not be empty")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "sagaflow"
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client, config: config}, nil
}

// RecordStepResult implements saga.Recorder.
func (s *RedisStore) RecordStepResult(ctx context.Context, sagaID string, result saga.StepResult) error {
	payload, err := json.Marshal(toStepRecord(result))
	if err != nil {
		return fmt.Errorf("failed to marshal step result: %w", err)
	}

	key := s.stepsKey(sagaID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if s.config.TTL > 0 {
		pipe.Expire(ctx, key, s.config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append step result: %w", err)
	}
	return nil
}

// RecordSagaStatus implements saga.Recorder.
func (s *RedisStore) RecordSagaStatus(ctx context.Context, status saga.StatusSnapshot) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal saga status: %w", err)
	}

	if err := s.client.Set(ctx, s.statusKey(status.SagaID), payload, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store saga status: %w", err)
	}
	return nil
}

// StepResults returns the recorded step outcomes for a saga in append order.
func (s *RedisStore) StepResults(ctx context.Context, sagaID string) ([]saga.StepResult, error) {
	raw, err := s.client.LRange(ctx, s.stepsKey(sagaID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read step results: %w", err)
	}

	results := make([]saga.StepResult, 0, len(raw))
	for _, item := range raw {
		var rec stepRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step result: %w", err)
		}
		status := saga.StepCompleted
		if rec.Status == saga.StepFailed.String() {
			status = saga.StepFailed
		}
		results = append(results, saga.StepResult{
			StepName:   rec.StepName,
			Status:     status,
			Result:     rec.Result,
			Duration:   time.Duration(rec.Duration) * time.Millisecond,
			RetryCount: rec.RetryCount,
			Timestamp:  rec.Timestamp,
		})
	}
	return results, nil
}

// Status returns the last recorded status snapshot for a saga.
func (s *RedisStore) Status(ctx context.Context, sagaID string) (saga.StatusSnapshot, error) {
	var status saga.StatusSnapshot

	payload, err := s.client.Get(ctx, s.statusKey(sagaID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return status, fmt.Errorf("%w: %s", saga.ErrSagaNotFound, sagaID)
		}
		return status, fmt.Errorf("failed to read saga status: %w", err)
	}

	if err := json.Unmarshal(payload, &status); err != nil {
		return status, fmt.Errorf("failed to unmarshal saga status: %w", err)
	}
	return status, nil
}

// Cleanup removes all records for a saga.
func (s *RedisStore) Cleanup(ctx context.Context, sagaID string) error {
	return s.client.Del(ctx, s.stepsKey(sagaID), s.statusKey(sagaID)).Err()
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) stepsKey(sagaID string) string {
	return fmt.Sprintf("%s:saga:%s:steps", s.config.KeyPrefix, sagaID)
}

func (s *RedisStore) statusKey(sagaID string) string {
	return fmt.Sprintf("%s:saga:%s:status", s.config.KeyPrefix, sagaID)
}
