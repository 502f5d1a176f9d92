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

// Package localtool registers and invokes in-process Go functions as tools.
//
// A local tool is an ordinary Go function. New reflects over the function
// signature to produce a tool.Definition with per-parameter bindings,
// example values and default descriptions; Invoke binds the model's JSON
// argument object onto the function's positional parameters, converts each
// argument with mapstructure's weakly-typed decoding, calls the function
// and stringifies the result.
package localtool

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/reagent-ai/reagent/pkg/example"
	"github.com/reagent-ai/reagent/pkg/tool"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// Param names and documents one positional parameter of the function.
// Go reflection cannot recover parameter names, so callers supply them in
// declaration order.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// New builds a LOCAL tool definition from fn.
//
// fn must be a func. An optional leading context.Context parameter is
// threaded from the invoking turn and does not consume a Param entry. The
// results may be (T), (T, error), (error) or nothing.
func New(name, description string, fn any, params ...Param) (tool.Definition, error) {
	if name == "" {
		return tool.Definition{}, fmt.Errorf("local tool requires a name")
	}
	fnVal := reflect.ValueOf(fn)
	if !fnVal.IsValid() || fnVal.Kind() != reflect.Func {
		return tool.Definition{}, fmt.Errorf("local tool '%s': target must be a func, got %T", name, fn)
	}
	fnType := fnVal.Type()

	numIn := fnType.NumIn()
	argStart := 0
	if numIn > 0 && fnType.In(0) == ctxType {
		argStart = 1
	}
	if fnType.IsVariadic() {
		return tool.Definition{}, fmt.Errorf("local tool '%s': variadic functions are not supported", name)
	}
	if got, want := numIn-argStart, len(params); got != want {
		return tool.Definition{}, fmt.Errorf(
			"local tool '%s': %d parameter names for %d function parameters", name, want, got)
	}
	if err := checkResults(fnType); err != nil {
		return tool.Definition{}, fmt.Errorf("local tool '%s': %w", name, err)
	}

	if description == "" {
		description = defaultToolDescription(name, params)
	}

	gen := example.New(name)

	bindings := make([]tool.ParamBinding, 0, len(params))
	specs := make([]tool.ParamSpec, 0, len(params))
	for i, p := range params {
		t := fnType.In(argStart + i)
		bindings = append(bindings, tool.ParamBinding{
			Name:     p.Name,
			Type:     t,
			Position: i,
			Required: p.Required,
			Source:   tool.SourceBody,
		})

		desc := p.Description
		if desc == "" {
			desc = fmt.Sprintf("The %s parameter", p.Name)
		}
		specs = append(specs, tool.ParamSpec{
			Name:        p.Name,
			Type:        tool.JSONType(t),
			Description: desc,
			Required:    p.Required,
			Example:     renderExample(gen.FieldValue(p.Name, t)),
		})
	}

	detail := tool.Detail{
		Name:        name,
		Description: description,
		Parameters:  specs,
	}
	if rt := resultType(fnType); rt != nil {
		detail.ReturnType = tool.JSONType(rt)
		detail.ReturnExample = gen.JSON(rt)
	}

	return tool.Definition{
		Name:     name,
		Kind:     tool.KindLocal,
		Detail:   detail,
		Bindings: bindings,
		Target:   fn,
	}, nil
}

// Invoke calls a LOCAL tool with the model's raw JSON argument string and
// returns the stringified result.
func Invoke(ctx context.Context, def tool.Definition, argsJSON string) (result string, err error) {
	if def.Kind != tool.KindLocal {
		return "", fmt.Errorf("tool '%s' is %s, not LOCAL", def.Name, def.Kind)
	}
	fnVal := reflect.ValueOf(def.Target)
	if !fnVal.IsValid() || fnVal.Kind() != reflect.Func {
		return "", &tool.ExecutionError{Tool: def.Name, Err: fmt.Errorf("target is not callable")}
	}
	fnType := fnVal.Type()

	args, err := parseArgs(argsJSON)
	if err != nil {
		return "", &tool.InvalidArgumentsError{Tool: def.Name, Reason: err.Error()}
	}
	args = unwrapEnvelope(def.Bindings, args)

	argStart := 0
	in := make([]reflect.Value, 0, fnType.NumIn())
	if fnType.NumIn() > 0 && fnType.In(0) == ctxType {
		in = append(in, reflect.ValueOf(ctx))
		argStart = 1
	}

	for _, b := range def.Bindings {
		t := fnType.In(argStart + b.Position)
		raw, present := args[b.Name]
		if !present {
			if b.Required {
				return "", &tool.InvalidArgumentsError{
					Tool:   def.Name,
					Reason: fmt.Sprintf("missing required argument '%s'", b.Name),
				}
			}
			in = append(in, reflect.Zero(t))
			continue
		}

		v, convErr := convert(raw, t)
		if convErr != nil {
			return "", &tool.InvalidArgumentsError{
				Tool:   def.Name,
				Reason: fmt.Sprintf("argument '%s': %v", b.Name, convErr),
			}
		}
		in = append(in, v)
	}

	defer func() {
		if r := recover(); r != nil {
			result = ""
			err = &tool.ExecutionError{Tool: def.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out := fnVal.Call(in)

	var resultVal reflect.Value
	for _, o := range out {
		if o.Type() == errType {
			if !o.IsNil() {
				return "", &tool.ExecutionError{Tool: def.Name, Err: o.Interface().(error)}
			}
			continue
		}
		resultVal = o
	}

	if !resultVal.IsValid() {
		return "null", nil
	}
	return stringify(resultVal.Interface()), nil
}

// unwrapEnvelope handles the single-complex-parameter convention: when a
// tool takes exactly one object-typed parameter and the model sent the
// object's fields at the top level instead of nesting them under the
// parameter name, the whole argument object becomes that parameter's value.
func unwrapEnvelope(bindings []tool.ParamBinding, args map[string]any) map[string]any {
	if len(bindings) != 1 {
		return args
	}
	b := bindings[0]
	if _, present := args[b.Name]; present {
		return args
	}
	if !isObjectLike(b.Type) {
		return args
	}
	return map[string]any{b.Name: args}
}

func isObjectLike(t reflect.Type) bool {
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct || t.Kind() == reflect.Map
}

func parseArgs(argsJSON string) (map[string]any, error) {
	trimmed := strings.TrimSpace(argsJSON)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// convert coerces a decoded JSON value to the target Go type. mapstructure
// with weak typing absorbs the usual JSON mismatches (float64 for ints,
// "42" for numbers) the same way a loosely-typed model output demands.
func convert(raw any, t reflect.Type) (reflect.Value, error) {
	target := reflect.New(t)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target.Interface(),
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return reflect.Value{}, err
	}
	return target.Elem(), nil
}

// stringify renders a tool result for the observation: strings pass
// through, everything else is compact JSON.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func checkResults(fnType reflect.Type) error {
	switch fnType.NumOut() {
	case 0:
		return nil
	case 1:
		return nil
	case 2:
		if fnType.Out(1) != errType {
			return fmt.Errorf("second result must be error")
		}
		return nil
	default:
		return fmt.Errorf("at most two results supported")
	}
}

// resultType returns the function's value result, skipping an error result.
func resultType(fnType reflect.Type) reflect.Type {
	for i := 0; i < fnType.NumOut(); i++ {
		if fnType.Out(i) != errType {
			return fnType.Out(i)
		}
	}
	return nil
}

func renderExample(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func defaultToolDescription(name string, params []Param) string {
	if len(params) == 0 {
		return fmt.Sprintf("Invokes the %s operation", name)
	}
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return fmt.Sprintf("Invokes the %s operation with %s", name, strings.Join(names, ", "))
}
