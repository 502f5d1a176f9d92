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

// Package example produces structurally plausible example values and
// default descriptions for arbitrary Go types, used to build tool details.
//
// The generator is deterministic: the same type and field metadata always
// render the same example. String values are driven by field-name
// heuristics (a field whose lowercased name contains "email" renders as an
// address, "date" as an ISO date, and so on). An `example` struct tag
// overrides the heuristic; a `description` tag documents the field.
//
// Entity graphs may be cyclic, so recursion into nested complex fields is
// depth-limited to one level: a struct inside a struct renders as a
// placeholder string pointing the model at tool_detail for the enclosing
// tool.
package example

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// maxDepth bounds recursion into nested complex fields.
const maxDepth = 1

// Generator renders example values for one tool's types.
type Generator struct {
	// toolName appears in nested-field placeholders so the model knows
	// which tool_detail call reveals the full schema.
	toolName string
}

// New returns a Generator whose placeholders reference toolName.
func New(toolName string) *Generator {
	return &Generator{toolName: toolName}
}

// Value produces an example value for t.
func (g *Generator) Value(t reflect.Type) any {
	return g.value(t, "", 0)
}

// JSON renders the example value for t as compact JSON.
func (g *Generator) JSON(t reflect.Type) string {
	v := g.Value(t)
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// FieldValue produces an example for a named field of type t, honoring the
// name heuristics. Used for top-level parameters, which carry a name but
// no struct tag.
func (g *Generator) FieldValue(name string, t reflect.Type) any {
	return g.value(t, name, 0)
}

func (g *Generator) placeholder() string {
	if g.toolName == "" {
		return "<object; call tool_detail for the full schema>"
	}
	return fmt.Sprintf("<object; call tool_detail(\"%s\") for the full schema>", g.toolName)
}

func (g *Generator) value(t reflect.Type, fieldName string, depth int) any {
	if t == nil {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	// time.Time marshals as a string; treat it as a date.
	if t == reflect.TypeOf(time.Time{}) {
		return "2025-01-15T09:30:00Z"
	}

	switch t.Kind() {
	case reflect.Bool:
		return true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return intFor(fieldName)
	case reflect.Float32, reflect.Float64:
		return floatFor(fieldName)
	case reflect.String:
		return stringFor(fieldName)

	case reflect.Slice, reflect.Array:
		elem := t.Elem()
		if isComplex(elem) && depth >= maxDepth {
			return []any{g.placeholder()}
		}
		return []any{g.value(elem, fieldName, depth)}

	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return map[string]any{}
		}
		elem := t.Elem()
		if isComplex(elem) && depth >= maxDepth {
			return map[string]any{"key": g.placeholder()}
		}
		return map[string]any{"key": g.value(elem, fieldName, depth)}

	case reflect.Struct:
		if depth >= maxDepth {
			return g.placeholder()
		}
		out := make(map[string]any, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			key, skip := jsonName(f)
			if skip {
				continue
			}

			if tag, ok := f.Tag.Lookup("example"); ok {
				out[key] = coerceTag(tag, f.Type)
				continue
			}

			if isComplex(f.Type) && depth >= maxDepth {
				out[key] = g.placeholder()
				continue
			}
			out[key] = g.value(f.Type, f.Name, depth+1)
		}
		return out

	case reflect.Interface:
		return g.placeholder()

	default:
		return nil
	}
}

// isComplex reports whether t needs recursion to render (struct or a
// container of structs), as opposed to a primitive leaf.
func isComplex(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == reflect.TypeOf(time.Time{}) {
		return false
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Interface:
		return true
	case reflect.Slice, reflect.Array, reflect.Map:
		return isComplex(t.Elem())
	default:
		return false
	}
}

func jsonName(f reflect.StructField) (name string, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		return parts[0], false
	}
	return f.Name, false
}

// coerceTag converts an example tag value toward the field's type so
// numeric examples don't render as quoted strings.
func coerceTag(tag string, t reflect.Type) any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return tag == "true"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		var n json.Number = json.Number(tag)
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return tag
	default:
		return tag
	}
}

func stringFor(fieldName string) string {
	name := strings.ToLower(fieldName)
	switch {
	case strings.Contains(name, "email"):
		return "jane.doe@example.com"
	case strings.Contains(name, "phone"):
		return "+1-555-0100"
	case strings.Contains(name, "url") || strings.Contains(name, "link"):
		return "https://example.com/resource"
	case strings.Contains(name, "date") || strings.Contains(name, "time"):
		return "2025-01-15"
	case strings.Contains(name, "name"):
		return "Jane Doe"
	case strings.Contains(name, "city"):
		return "Berlin"
	case strings.Contains(name, "country"):
		return "Germany"
	case strings.Contains(name, "department"):
		return "Engineering"
	case strings.Contains(name, "description") || strings.Contains(name, "comment"):
		return "A short description"
	case strings.Contains(name, "id"):
		return "1001"
	default:
		return "example"
	}
}

func intFor(fieldName string) int64 {
	name := strings.ToLower(fieldName)
	switch {
	case strings.Contains(name, "age"):
		return 30
	case strings.Contains(name, "year"):
		return 2025
	case strings.Contains(name, "count") || strings.Contains(name, "size") || strings.Contains(name, "limit"):
		return 10
	case strings.Contains(name, "salary"):
		return 75000
	case strings.Contains(name, "id"):
		return 1001
	default:
		return 1
	}
}

func floatFor(fieldName string) float64 {
	name := strings.ToLower(fieldName)
	switch {
	case strings.Contains(name, "salary"):
		return 75000.0
	case strings.Contains(name, "price") || strings.Contains(name, "amount"):
		return 19.99
	case strings.Contains(name, "rate") || strings.Contains(name, "ratio"):
		return 0.5
	default:
		return 1.0
	}
}
