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

package react

import (
	"encoding/json"
	"fmt"

	"github.com/reagent-ai/reagent/pkg/tool"
	"github.com/reagent-ai/reagent/pkg/tool/localtool"
)

// ToolDetailName is the built-in that returns a tool's full schema.
const ToolDetailName = "tool_detail"

// registerBuiltins installs the engine's fixed tool set. tool_detail is
// the escape hatch that keeps the tools payload small: specs sent to the
// model carry only basic schemas, and the model fetches examples on demand.
func registerBuiltins(reg *tool.Registry) error {
	detail := func(toolName string) (string, error) {
		d, ok := reg.Detail(toolName)
		if !ok {
			return "", fmt.Errorf("tool not found: %s", toolName)
		}
		data, err := json.Marshal(d)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	def, err := localtool.New(
		ToolDetailName,
		"Returns the full schema of a registered tool, including parameter and return examples",
		detail,
		localtool.Param{
			Name:        "tool_name",
			Description: "Name of the tool to describe",
			Required:    true,
		},
	)
	if err != nil {
		return err
	}
	return reg.Register(def)
}
