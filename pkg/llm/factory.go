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

package llm

import (
	"fmt"

	"github.com/reagent-ai/reagent/pkg/registry"
)

// AdapterConfig selects and parameterizes a provider adapter.
type AdapterConfig struct {
	// Adapter names the provider family (openai, bigmodel, minimax, ...).
	Adapter string

	// Model is the provider-side model identifier.
	Model string

	// APIKey is the bearer credential.
	APIKey string

	// BaseURL overrides the adapter's default endpoint.
	BaseURL string

	// MaxTokens caps the completion length (0 = provider default).
	MaxTokens int
}

// Constructor builds an adapter from its config.
type Constructor func(cfg AdapterConfig) (LLM, error)

var constructors = registry.NewBaseRegistry[Constructor]()

// RegisterAdapter makes a constructor available to New under the given
// adapter name. Adapters register themselves in init.
func RegisterAdapter(name string, ctor Constructor) {
	constructors.Replace(name, ctor)
}

// New builds the adapter selected by cfg.Adapter.
func New(cfg AdapterConfig) (LLM, error) {
	if cfg.Adapter == "" {
		return nil, fmt.Errorf("llm adapter is required")
	}

	ctor, ok := constructors.Get(cfg.Adapter)
	if !ok {
		return nil, fmt.Errorf("unknown llm adapter '%s' (registered: %v)", cfg.Adapter, constructors.Names())
	}

	return ctor(cfg)
}

// Adapters returns the registered adapter names.
func Adapters() []string {
	return constructors.Names()
}
