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
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecBasicSchema(t *testing.T) {
	d := Definition{
		Name: "add",
		Kind: KindLocal,
		Detail: Detail{
			Name:        "add",
			Description: "Adds two integers",
			Parameters: []ParamSpec{
				{Name: "a", Type: "integer", Required: true, Example: "1"},
				{Name: "b", Type: "integer", Required: true, Example: "2"},
				{Name: "note", Type: "string"},
			},
		},
	}

	spec := Spec(d)
	assert.Equal(t, "function", spec.Type)
	assert.Equal(t, "add", spec.Function.Name)

	params := spec.Function.Parameters
	assert.Equal(t, "object", params["type"])

	properties := params["properties"].(map[string]any)
	require.Len(t, properties, 3)
	a := properties["a"].(map[string]any)
	assert.Equal(t, "integer", a["type"])
	// Examples stay behind tool_detail.
	assert.NotContains(t, a, "example")

	assert.ElementsMatch(t, []string{"a", "b"}, params["required"])
}

func TestSpecOmitsRequiredWhenNone(t *testing.T) {
	spec := Spec(Definition{
		Name:   "ping",
		Kind:   KindLocal,
		Detail: Detail{Name: "ping"},
	})
	assert.NotContains(t, spec.Function.Parameters, "required")
}

type payload struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

func createDef() Definition {
	return Definition{
		Name: "create",
		Kind: KindLocal,
		Detail: Detail{
			Name: "create",
			Parameters: []ParamSpec{
				{Name: "request", Type: "object", Required: true, Description: "The payload"},
			},
		},
		Bindings: []ParamBinding{
			{Name: "request", Type: reflect.TypeOf(payload{}), Required: true},
		},
	}
}

// The basic spec keeps struct parameters opaque; their fields stay behind
// tool_detail.
func TestSpecKeepsComplexParamsBasic(t *testing.T) {
	spec := Spec(createDef())
	properties := spec.Function.Parameters["properties"].(map[string]any)
	request := properties["request"].(map[string]any)

	assert.Equal(t, "object", request["type"])
	assert.Equal(t, "The payload", request["description"])
	assert.NotContains(t, request, "properties")
}

func TestDetailedSpecReflectsComplexParams(t *testing.T) {
	spec := DetailedSpec(createDef())
	properties := spec.Function.Parameters["properties"].(map[string]any)
	request := properties["request"].(map[string]any)

	assert.Equal(t, "The payload", request["description"])
	nested, ok := request["properties"].(map[string]any)
	require.True(t, ok, "struct parameter should carry a reflected schema")
	assert.Contains(t, nested, "title")
	assert.Contains(t, nested, "count")
}

func TestJSONType(t *testing.T) {
	tests := []struct {
		typ  reflect.Type
		want string
	}{
		{reflect.TypeOf(""), "string"},
		{reflect.TypeOf(0), "integer"},
		{reflect.TypeOf(0.0), "number"},
		{reflect.TypeOf(true), "boolean"},
		{reflect.TypeOf([]string{}), "array"},
		{reflect.TypeOf(map[string]any{}), "object"},
		{reflect.TypeOf(payload{}), "object"},
		{reflect.TypeOf((*int)(nil)), "integer"},
		{nil, "object"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JSONType(tt.typ))
	}
}

func TestJSONTypeNameNormalization(t *testing.T) {
	tests := map[string]string{
		"int":            "integer",
		"float64":        "number",
		"bool":           "boolean",
		"string":         "string",
		"[]string":       "array",
		"map[string]int": "object",
		"EmployeeReq":    "object",
	}
	for in, want := range tests {
		assert.Equal(t, want, jsonTypeName(in), in)
	}
}
