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

// Package httptool invokes REST endpoints registered as tools.
//
// The model's JSON argument object is split three ways: arguments matching
// a {name} placeholder travel in the path, the rest become query
// parameters on GET/DELETE or a JSON body on POST/PUT/PATCH. The caller's
// inbound headers and cookies are propagated so the tool call carries the
// caller's identity.
//
// A non-2xx response is not an invocation failure: it is rendered as a
// structured JSON observation so the model can read the status and pivot.
// Only transport-level failures surface as errors.
package httptool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/reagent-ai/reagent/pkg/httpclient"
	"github.com/reagent-ai/reagent/pkg/tool"
)

const (
	// DefaultBaseURL resolves relative path templates when the inbound
	// request context carries no base URL.
	DefaultBaseURL = "http://localhost:8080"

	// bodyPreviewLimit caps how much of a non-JSON error body makes it
	// into the friendly message.
	bodyPreviewLimit = 100
)

// headers the invoker owns and never propagates from the caller.
var ownedHeaders = map[string]struct{}{
	"Content-Type":   {},
	"Accept":         {},
	"Content-Length": {},
}

// Invoker performs outbound HTTP tool calls through a shared retrying
// client.
type Invoker struct {
	client *httpclient.Client
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithClient substitutes the outbound HTTP client.
func WithClient(c *httpclient.Client) Option {
	return func(i *Invoker) { i.client = c }
}

// NewInvoker returns an Invoker with the default retrying client.
func NewInvoker(opts ...Option) *Invoker {
	inv := &Invoker{
		client: httpclient.New(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke executes the HTTP tool and returns the observation text.
func (i *Invoker) Invoke(ctx context.Context, def tool.Definition, argsJSON string, reqCtx tool.RequestContext) (string, error) {
	if def.Kind != tool.KindHTTP {
		return "", fmt.Errorf("tool '%s' is %s, not HTTP", def.Name, def.Kind)
	}
	if def.Route == nil {
		return "", &tool.ExecutionError{Tool: def.Name, Err: fmt.Errorf("no route configured")}
	}

	args, err := parseArgs(argsJSON)
	if err != nil {
		return "", &tool.InvalidArgumentsError{Tool: def.Name, Reason: err.Error()}
	}

	target, err := resolveURL(def.Route.PathTemplate, reqCtx.BaseURL, args)
	if err != nil {
		return "", &tool.InvalidArgumentsError{Tool: def.Name, Reason: err.Error()}
	}

	method := strings.ToUpper(def.Route.Method)
	var body io.Reader
	contentType := ""

	switch method {
	case http.MethodGet, http.MethodDelete:
		target = appendQuery(target, args)
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		target = appendQuery(target, takeQueryArgs(def, args))
		payload, ok := buildBody(def, args)
		if ok {
			body = bytes.NewReader(payload)
			contentType = def.Route.Consumes
			if contentType == "" {
				contentType = "application/json"
			}
		}
	default:
		// Uncommon verbs send remaining args as a JSON body when present.
		target = appendQuery(target, takeQueryArgs(def, args))
		payload, ok := buildBody(def, args)
		if ok {
			body = bytes.NewReader(payload)
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return "", &tool.ExecutionError{Tool: def.Name, Err: err}
	}

	applyHeaders(req, def, reqCtx, contentType)

	// Do reports non-2xx statuses as errors alongside the response; only a
	// missing response is a transport failure here. Status handling below
	// turns the rest into observations.
	resp, err := i.client.Do(req)
	if resp == nil {
		return "", &tool.ExecutionError{Tool: def.Name, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &tool.ExecutionError{Tool: def.Name, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return string(respBody), nil
	}
	return errorObservation(def.Name, resp.StatusCode, respBody), nil
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

// resolveURL substitutes {name} placeholders from args (consuming them)
// and joins relative templates onto the base URL.
func resolveURL(template, baseURL string, args map[string]any) (string, error) {
	resolved := template
	for {
		start := strings.Index(resolved, "{")
		if start < 0 {
			break
		}
		end := strings.Index(resolved[start:], "}")
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in path '%s'", template)
		}
		name := resolved[start+1 : start+end]

		raw, ok := args[name]
		if !ok {
			return "", fmt.Errorf("no argument for path placeholder '{%s}'", name)
		}
		delete(args, name)
		resolved = resolved[:start] + url.PathEscape(canonicalText(raw)) + resolved[start+end+1:]
	}

	if strings.HasPrefix(resolved, "http://") || strings.HasPrefix(resolved, "https://") {
		return resolved, nil
	}

	base := baseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(resolved, "/"), nil
}

// canonicalText renders a path or query value: numbers without a trailing
// .0, booleans as true/false, everything else via JSON.
func canonicalText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}

func appendQuery(target string, args map[string]any) string {
	if len(args) == 0 {
		return target
	}
	values := url.Values{}
	for name, raw := range args {
		values.Set(name, canonicalText(raw))
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + values.Encode()
}

// buildBody assembles the request body from the arguments left after path
// substitution. A single BODY-bound parameter is unwrapped to its value;
// otherwise the remaining arguments serialize as one JSON object. An empty
// object means no body.
func buildBody(def tool.Definition, args map[string]any) ([]byte, bool) {
	var bodyBindings []tool.ParamBinding
	for _, b := range def.Bindings {
		if b.Source == tool.SourceBody {
			bodyBindings = append(bodyBindings, b)
		}
	}

	var value any
	if len(bodyBindings) == 1 {
		raw, present := args[bodyBindings[0].Name]
		if !present {
			// Envelope form: the model sent the body object's fields
			// at the top level.
			value = remainingArgs(def, args)
		} else {
			value = raw
		}
	} else {
		value = remainingArgs(def, args)
	}

	if m, ok := value.(map[string]any); ok && len(m) == 0 {
		return nil, false
	}
	if value == nil {
		return nil, false
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	return data, true
}

// takeQueryArgs removes the QUERY-bound arguments from args and returns
// them, so body-carrying methods still put them on the URL.
func takeQueryArgs(def tool.Definition, args map[string]any) map[string]any {
	out := make(map[string]any)
	for _, b := range def.Bindings {
		if b.Source != tool.SourceQuery {
			continue
		}
		if raw, ok := args[b.Name]; ok {
			out[b.Name] = raw
			delete(args, b.Name)
		}
	}
	return out
}

// remainingArgs filters out arguments bound to QUERY or PATH sources,
// leaving the body object.
func remainingArgs(def tool.Definition, args map[string]any) map[string]any {
	skip := make(map[string]struct{})
	for _, b := range def.Bindings {
		if b.Source == tool.SourceQuery || b.Source == tool.SourcePath {
			skip[b.Name] = struct{}{}
		}
	}
	out := make(map[string]any, len(args))
	for name, raw := range args {
		if _, drop := skip[name]; drop {
			continue
		}
		out[name] = raw
	}
	return out
}

func applyHeaders(req *http.Request, def tool.Definition, reqCtx tool.RequestContext, contentType string) {
	for name, value := range reqCtx.Headers {
		if _, owned := ownedHeaders[http.CanonicalHeaderKey(name)]; owned {
			continue
		}
		req.Header.Set(name, value)
	}

	if len(reqCtx.Cookies) > 0 {
		// Rebuild the Cookie header rather than forwarding it raw so
		// transports that split cookies out still propagate them.
		req.Header.Del("Cookie")
		for name, value := range reqCtx.Cookies {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}

	accept := def.Route.Produces
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
}

// errorObservation renders a non-2xx response as the structured JSON the
// model reads as its observation.
func errorObservation(toolName string, status int, body []byte) string {
	obs := map[string]any{
		"error":   true,
		"status":  status,
		"message": friendlyMessage(status, body),
		"tool":    toolName,
	}
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Sprintf(`{"error":true,"status":%d,"tool":"%s"}`, status, toolName)
	}
	return string(data)
}

func friendlyMessage(status int, body []byte) string {
	base := statusMessage(status)

	if detail := extractDetail(body); detail != "" {
		return base + ": " + detail
	}
	return base
}

// extractDetail pulls message/error/msg out of a JSON error body, or falls
// back to a short preview of the raw body.
func extractDetail(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		for _, key := range []string{"message", "error", "msg"} {
			if v, ok := parsed[key]; ok {
				if s, ok := v.(string); ok && s != "" {
					return s
				}
			}
		}
		return ""
	}

	if len(trimmed) > bodyPreviewLimit {
		return trimmed[:bodyPreviewLimit]
	}
	return trimmed
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "The request was invalid"
	case http.StatusUnauthorized:
		return "Authentication is required"
	case http.StatusForbidden:
		return "Access to this resource is forbidden"
	case http.StatusNotFound:
		return "The requested resource was not found"
	case http.StatusMethodNotAllowed:
		return "The HTTP method is not allowed for this resource"
	case http.StatusConflict:
		return "The request conflicts with the current state"
	case http.StatusTooManyRequests:
		return "The service is rate limiting requests"
	case http.StatusInternalServerError:
		return "The service encountered an internal error"
	case http.StatusBadGateway:
		return "The upstream service returned an invalid response"
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable"
	case http.StatusGatewayTimeout:
		return "The upstream service timed out"
	default:
		if status >= 500 {
			return "The service failed to process the request"
		}
		return "The request was rejected"
	}
}
