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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrix/sagaflow/pkg/saga"
)

func TestMemoryStore_RecordAndReadSteps(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.RecordStepResult(ctx, "saga-1", saga.StepResult{
		StepName: "reserve", Status: saga.StepCompleted, Result: "res-1", Timestamp: time.Now(),
	}))
	require.NoError(t, store.RecordStepResult(ctx, "saga-1", saga.StepResult{
		StepName: "charge", Status: saga.StepFailed, RetryCount: 2, Timestamp: time.Now(),
	}))
	require.NoError(t, store.RecordStepResult(ctx, "saga-2", saga.StepResult{
		StepName: "other", Status: saga.StepCompleted, Timestamp: time.Now(),
	}))

	results := store.StepResults("saga-1")
	require.Len(t, results, 2)
	assert.Equal(t, "reserve", results[0].StepName)
	assert.Equal(t, "charge", results[1].StepName)
	assert.Equal(t, 2, results[1].RetryCount)

	assert.Len(t, store.StepResults("saga-2"), 1)
	assert.Empty(t, store.StepResults("saga-unknown"))
}

func TestMemoryStore_StatusKeepsLatestSnapshot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok := store.Status("saga-1")
	assert.False(t, ok)

	require.NoError(t, store.RecordSagaStatus(ctx, saga.StatusSnapshot{
		SagaID: "saga-1", Status: saga.StateRunning,
	}))
	require.NoError(t, store.RecordSagaStatus(ctx, saga.StatusSnapshot{
		SagaID: "saga-1", Status: saga.StateCompleted, CompletedSteps: []string{"reserve"},
	}))

	status, ok := store.Status("saga-1")
	require.True(t, ok)
	assert.Equal(t, saga.StateCompleted, status.Status)
	assert.Equal(t, []string{"reserve"}, status.CompletedSteps)
}

func TestMemoryStore_Cleanup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.RecordStepResult(ctx, "saga-1", saga.StepResult{StepName: "reserve"})
	store.RecordSagaStatus(ctx, saga.StatusSnapshot{SagaID: "saga-1", Status: saga.StateCompleted})

	store.Cleanup("saga-1")

	assert.Empty(t, store.StepResults("saga-1"))
	_, ok := store.Status("saga-1")
	assert.False(t, ok)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.RecordStepResult(ctx, "saga-1", saga.StepResult{StepName: "reserve"})

	results := store.StepResults("saga-1")
	results[0].StepName = "tampered"

	assert.Equal(t, "reserve", store.StepResults("saga-1")[0].StepName)
}

func TestMemoryStore_ConcurrentWriters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.RecordStepResult(ctx, "saga-shared", saga.StepResult{StepName: "step"})
				store.RecordSagaStatus(ctx, saga.StatusSnapshot{SagaID: "saga-shared", Status: saga.StateRunning})
				store.StepResults("saga-shared")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, store.StepResults("saga-shared"), 500)
}
