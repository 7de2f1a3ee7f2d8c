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

// Package state provides recorder implementations that snapshot step
// outcomes and saga statuses as they are appended. The saga engine itself
// persists nothing; these stores satisfy the engine's record-outcome
// callbacks for callers that want durability or auditing.
package state

import (
	"context"
	"sync"

	"github.com/orchestrix/sagaflow/pkg/saga"
)

// MemoryStore is an in-memory recorder suitable for development, testing,
// and non-critical workloads where durability across restarts is not
// required. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	steps    map[string][]saga.StepResult
	statuses map[string]saga.StatusSnapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		steps:    make(map[string][]saga.StepResult),
		statuses: make(map[string]saga.StatusSnapshot),
	}
}

// RecordStepResult implements saga.Recorder.
func (s *MemoryStore) RecordStepResult(_ context.Context, sagaID string, result saga.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[sagaID] = append(s.steps[sagaID], result)
	return nil
}

// RecordSagaStatus implements saga.Recorder.
func (s *MemoryStore) RecordSagaStatus(_ context.Context, status saga.StatusSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.SagaID] = status
	return nil
}

// StepResults returns the recorded outcomes for a saga in append order.
func (s *MemoryStore) StepResults(sagaID string) []saga.StepResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.steps[sagaID]
	out := make([]saga.StepResult, len(results))
	copy(out, results)
	return out
}

// Status returns the last recorded status for a saga.
func (s *MemoryStore) Status(sagaID string) (saga.StatusSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[sagaID]
	return status, ok
}

// Cleanup removes all records for a saga.
func (s *MemoryStore) Cleanup(sagaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.steps, sagaID)
	delete(s.statuses, sagaID)
}
