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
	"sync"
)

// Context is the mutable state shared between an orchestrator and its
// caller-supplied step logic. It is owned exclusively by one in-flight
// orchestrator; no step or saga may touch another saga's context.
//
// The internal mutex exists so that status pollers can safely read while a
// step executes, not to support concurrent writers.
type Context struct {
	sagaID string

	mu          sync.RWMutex
	data        map[string]interface{}
	stepResults []StepResult
}

// NewContext creates a context for the given saga ID.
func NewContext(sagaID string) *Context {
	return &Context{
		sagaID: sagaID,
		data:   make(map[string]interface{}),
	}
}

// SagaID returns the owning saga's ID.
func (c *Context) SagaID() string {
	return c.sagaID
}

// Set stores a value under the given key.
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Get returns the value stored under the given key.
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Data returns a copy of the context data.
func (c *Context) Data() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// StepResults returns a copy of the chronological, append-only sequence of
// step outcomes.
func (c *Context) StepResults() []StepResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]StepResult, len(c.stepResults))
	copy(out, c.stepResults)
	return out
}

// merge copies the given values into the context data.
func (c *Context) merge(values map[string]interface{}) {
	if len(values) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.data[k] = v
	}
}

// appendResult appends one step outcome. Results are never mutated or
// removed afterwards.
func (c *Context) appendResult(result StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepResults = append(c.stepResults, result)
}
