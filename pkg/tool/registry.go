// Copyright 2025 The Reagent Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tool

import (
	"fmt"
	"log/slog"
	"sync"
)

// NotFoundError is the lookup failure for dispatch paths that want an
// error rather than an ok bool.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// Registry stores tool definitions keyed by name. Safe for concurrent
// reads with registrations; registrations are rare (startup only).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Definition),
	}
}

// Register stores the definition. Registration is idempotent by name: a
// later registration replaces the earlier one with a warning.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Kind == "" {
		return fmt.Errorf("tool '%s': kind is required", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		slog.Warn("Tool already registered, replacing", "tool", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Summaries returns a name+description view of every tool.
// No iteration order is guaranteed.
func (r *Registry) Summaries() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]Summary, 0, len(r.tools))
	for _, def := range r.tools {
		summaries = append(summaries, Summary{
			Name:        def.Name,
			Description: def.Detail.Description,
		})
	}
	return summaries
}

// Detail returns the full detail for the named tool.
func (r *Registry) Detail(name string) (Detail, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	if !ok {
		return Detail{}, false
	}
	return def.Detail, true
}

// Definition returns the stored definition for the named tool.
func (r *Registry) Definition(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	return def, ok
}

// Definitions returns every stored definition. No ordering is guaranteed.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	return defs
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
