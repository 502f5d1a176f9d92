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

// Package llm defines the provider-neutral contract over OpenAI-compatible
// chat-completion APIs.
//
// The wire types (ChatMessage, ToolCall, ToolSpec) follow the OpenAI chat
// schema exactly so that history can be marshaled to any compatible
// provider without translation. Streaming providers additionally surface a
// reasoning channel (delta.reasoning_content) which adapters forward to the
// sink as REASONING fragments.
package llm

import (
	"context"
	"fmt"

	"github.com/reagent-ai/reagent/pkg/stream"
)

// Message roles, as on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one entry of the conversation history.
// Wire-compatible with the OpenAI chat schema.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`

	// ReasoningContent mirrors the provider extension of the same name.
	// Never sent back upstream; kept for transcript inspection.
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// ToolMessage builds a tool-role message answering the given call.
func ToolMessage(toolCallID, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, ToolCallID: toolCallID, Content: content}
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes a callable tool to the model.
type ToolSpec struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec is the function half of a ToolSpec.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is the input to one chat call.
type Request struct {
	Model       string
	Messages    []ChatMessage
	Tools       []ToolSpec
	ToolChoice  string
	Temperature *float64
	MaxTokens   int
	Stream      bool
}

// Response is the (possibly synthesized from a stream) chat result.
type Response struct {
	ID      string
	Created int64
	Model   string
	Choices []Choice
	Usage   *Usage
}

// Choice is one completion alternative.
type Choice struct {
	Index        int
	Message      ChatMessage
	FinishReason string
}

// First returns the first choice's message, or a zero message when the
// provider returned no choices.
func (r *Response) First() ChatMessage {
	if r == nil || len(r.Choices) == 0 {
		return ChatMessage{}
	}
	return r.Choices[0].Message
}

// Usage contains token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLM is implemented by every provider adapter.
//
// Chat performs one model call. When req.Stream is true the adapter decodes
// the SSE stream, forwards content fragments to sink (CONTENT for regular
// deltas, REASONING for reasoning_content deltas) and returns the
// accumulated Response. A nil sink is treated as stream.Discard.
type LLM interface {
	// Name returns the configured model identifier.
	Name() string

	// Chat performs one chat-completion call.
	Chat(ctx context.Context, req *Request, sink stream.Sink) (*Response, error)

	// Close releases any resources held by the adapter.
	Close() error
}

// UpstreamError is returned when the provider answers non-2xx or the
// stream is malformed.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream model error (status %d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("upstream model error: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
