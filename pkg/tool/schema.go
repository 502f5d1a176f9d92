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
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/reagent-ai/reagent/pkg/llm"
)

// Spec renders a definition as the ToolSpec sent to the model.
//
// The schema is deliberately basic: parameter names, JSON types,
// descriptions and the required list, no examples and no nested object
// schemas. The full detail stays behind the tool_detail built-in so a
// large registry does not blow up the tools payload.
func Spec(def Definition) llm.ToolSpec {
	return spec(def, false)
}

// DetailedSpec additionally reflects struct parameters into full object
// schemas so the model can fill nested fields without a tool_detail round
// trip, trading tokens for fewer steps.
func DetailedSpec(def Definition) llm.ToolSpec {
	return spec(def, true)
}

func spec(def Definition, detailed bool) llm.ToolSpec {
	bindingTypes := make(map[string]reflect.Type, len(def.Bindings))
	for _, b := range def.Bindings {
		bindingTypes[b.Name] = b.Type
	}

	properties := make(map[string]any, len(def.Detail.Parameters))
	var required []string

	for _, p := range def.Detail.Parameters {
		var prop map[string]any
		if detailed {
			if t, ok := bindingTypes[p.Name]; ok && isSchemaWorthy(t) {
				prop = structSchema(t)
			}
		}
		if prop == nil {
			prop = map[string]any{
				"type": jsonTypeName(p.Type),
			}
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	parameters := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		parameters["required"] = required
	}

	return llm.ToolSpec{
		Type: "function",
		Function: llm.FunctionSpec{
			Name:        def.Name,
			Description: def.Detail.Description,
			Parameters:  parameters,
		},
	}
}

// isSchemaWorthy reports whether t deserves a reflected object schema
// rather than a bare type name.
func isSchemaWorthy(t reflect.Type) bool {
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != reflect.TypeOf(time.Time{})
}

// structSchema reflects t into a plain JSON schema object. Returns nil on
// any marshalling trouble so the caller can fall back to the basic form.
func structSchema(t reflect.Type) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: true,
	}
	schema := reflector.ReflectFromType(t)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	delete(m, "$schema")
	delete(m, "$id")
	delete(m, "version")
	return m
}

// JSONType maps a Go type to its JSON schema type name.
func JSONType(t reflect.Type) string {
	if t == nil {
		return "object"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}

// jsonTypeName normalizes a ParamSpec type string (a Go type name or an
// already-normalized JSON type) to a JSON schema type.
func jsonTypeName(name string) string {
	switch strings.ToLower(strings.TrimPrefix(name, "*")) {
	case "string", "":
		return "string"
	case "bool", "boolean":
		return "boolean"
	case "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "integer":
		return "integer"
	case "float32", "float64", "number", "double":
		return "number"
	case "array":
		return "array"
	case "object", "map":
		return "object"
	default:
		if strings.HasPrefix(name, "[]") {
			return "array"
		}
		if strings.HasPrefix(name, "map[") {
			return "object"
		}
		return "object"
	}
}
