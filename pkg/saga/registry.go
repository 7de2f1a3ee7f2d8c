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
	"fmt"
	"sync"
)

// Registry tracks in-flight and completed saga instances for status queries.
// It is ephemeral bookkeeping, not the system of record: entries are added
// on registration and removed on explicit cleanup, e.g. after persistence or
// a retention window.
//
// Registries are plain injected objects so tests can instantiate isolated
// registries per test case; production wiring creates one per process.
type Registry struct {
	mu    sync.RWMutex
	sagas map[string]*Orchestrator
}

// NewRegistry creates an empty saga registry.
func NewRegistry() *Registry {
	return &Registry{
		sagas: make(map[string]*Orchestrator),
	}
}

// Register adds an orchestrator to the registry, keyed by its saga ID.
func (r *Registry) Register(o *Orchestrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sagas[o.ID()] = o
}

// Get returns the orchestrator for the given saga ID, or ErrSagaNotFound.
func (r *Registry) Get(sagaID string) (*Orchestrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.sagas[sagaID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSagaNotFound, sagaID)
	}
	return o, nil
}

// GetAllStatuses returns a status snapshot of every registered saga, keyed
// by saga ID.
func (r *Registry) GetAllStatuses() map[string]StatusSnapshot {
	r.mu.RLock()
	sagas := make([]*Orchestrator, 0, len(r.sagas))
	for _, o := range r.sagas {
		sagas = append(sagas, o)
	}
	r.mu.RUnlock()

	statuses := make(map[string]StatusSnapshot, len(sagas))
	for _, o := range sagas {
		statuses[o.ID()] = o.GetStatus()
	}
	return statuses
}

// Remove deletes the entry for the given saga ID.
func (r *Registry) Remove(sagaID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sagas, sagaID)
}

// Len returns the number of registered sagas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sagas)
}
