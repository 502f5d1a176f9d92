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

// Package tool defines the tool data model and the registry the ReAct
// engine dispatches against.
//
// A tool is a named callable the model may request. Three kinds exist:
//
//   - LOCAL:   an in-process Go function, invoked through localtool
//   - HTTP:    a REST endpoint on another service, invoked through httptool
//   - BROWSER: implemented by the connected client, invoked through browsertool
//
// Definitions are registered once at startup by a discovery collaborator
// and are immutable afterwards. The registry serves two views: summaries
// (name + description, cheap to put in a system prompt) and details (full
// parameter specs with examples, fetched on demand via the tool_detail
// built-in so the model does not pay the token cost up front).
package tool

import (
	"reflect"
)

// Kind discriminates the three invocation back-ends.
type Kind string

const (
	KindLocal   Kind = "LOCAL"
	KindHTTP    Kind = "HTTP"
	KindBrowser Kind = "BROWSER"
)

// ParamSource says where an HTTP parameter travels.
type ParamSource string

const (
	SourceBody  ParamSource = "BODY"
	SourcePath  ParamSource = "PATH"
	SourceQuery ParamSource = "QUERY"
	SourceOther ParamSource = "OTHER"
)

// ParamBinding maps one argument of the JSON argument object onto a
// parameter of the target callable or route.
type ParamBinding struct {
	// Name is the argument key in the incoming JSON object.
	Name string

	// Type is the declared Go type of the parameter. May be nil for
	// BROWSER tools, whose binding happens client-side.
	Type reflect.Type

	// Position is the parameter index in the target callable.
	Position int

	// Required rejects argument objects missing this key.
	Required bool

	// Source is where an HTTP parameter travels (BODY for local tools).
	Source ParamSource
}

// HTTPRoute describes the REST endpoint behind an HTTP tool.
type HTTPRoute struct {
	// Method is the HTTP verb (GET, POST, ...).
	Method string

	// PathTemplate may contain {name} placeholders and may be absolute
	// (scheme included) or relative to the caller's base URL.
	PathTemplate string

	// Consumes is the request content type (default application/json).
	Consumes string

	// Produces is the accepted response content type (default application/json).
	Produces string
}

// Definition is what the registry stores per tool.
type Definition struct {
	Name     string
	Kind     Kind
	Detail   Detail
	Bindings []ParamBinding

	// Target is the callable for LOCAL tools (a func value).
	Target any

	// Route is set for HTTP tools.
	Route *HTTPRoute
}

// Summary is the cheap registry view: one line per tool.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Detail is the full, example-bearing schema of a tool.
type Detail struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Parameters      []ParamSpec `json:"parameters,omitempty"`
	ReturnType      string      `json:"returnType,omitempty"`
	ReturnExample   string      `json:"returnExample,omitempty"`
	RequestExample  string      `json:"requestExample,omitempty"`
	ResponseExample string      `json:"responseExample,omitempty"`
}

// ParamSpec documents one parameter inside a Detail.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Example     string `json:"example,omitempty"`
}

// RequestContext carries ambient state of the inbound request so HTTP
// tools can impersonate the caller (cookies, headers, service base URL).
type RequestContext struct {
	// BaseURL resolves relative path templates. Default http://localhost:8080.
	BaseURL string

	// Headers are the caller's inbound headers, propagated outbound minus
	// the entity headers the invoker owns.
	Headers map[string]string

	// Cookies are reassembled into a Cookie header on outbound calls.
	Cookies map[string]string
}
