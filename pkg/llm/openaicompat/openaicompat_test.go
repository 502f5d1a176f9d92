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

package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reagent-ai/reagent/pkg/llm"
	"github.com/reagent-ai/reagent/pkg/stream"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	return client
}

func sseBody(chunks ...string) string {
	out := ""
	for _, c := range chunks {
		out += "data: " + c + "\n\n"
	}
	return out + "data: [DONE]\n\n"
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Model: "m"})
	assert.Error(t, err)

	_, err = New(Config{APIKey: "k"})
	assert.Error(t, err)
}

func TestChatNonStreaming(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req apiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(apiResponse{
			ID: "resp-1",
			Choices: []apiChoice{{
				Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: "hello"},
				FinishReason: "stop",
			}},
		})
	})

	resp, err := client.Chat(context.Background(), &llm.Request{
		Messages: []llm.ChatMessage{llm.UserMessage("hi")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.First().Content)
}

func TestChatStreamingContentAndReasoning(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseBody(
			`{"id":"c1","choices":[{"delta":{"reasoning_content":"thinking "}}]}`,
			`{"id":"c1","choices":[{"delta":{"reasoning_content":"hard"}}]}`,
			`{"id":"c1","choices":[{"delta":{"content":"Hel"}}]}`,
			`{"id":"c1","choices":[{"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
		))
	})

	sink := stream.NewCollector()
	resp, err := client.Chat(context.Background(), &llm.Request{
		Messages: []llm.ChatMessage{llm.UserMessage("hi")},
		Stream:   true,
	}, sink)
	require.NoError(t, err)

	msg := resp.First()
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, "thinking hard", msg.ReasoningContent)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)

	reasoning := sink.ByType(stream.Reasoning)
	require.Len(t, reasoning, 1)
	assert.Equal(t, "thinking hard", reasoning[0].Text)

	content := sink.ByType(stream.Content)
	require.Len(t, content, 1)
	assert.Equal(t, "Hello", content[0].Text)
}

func TestStreamingStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"first"}}]}`+"\n\n")
		w.(http.Flusher).Flush()
		// Hold the stream open until the client walks away.
		<-r.Context().Done()
	})

	// Cancel as soon as the first chunk lands; no further CONTENT may be
	// emitted and Chat must return with the upstream failure.
	var contents []string
	sink := stream.SinkFunc(func(ct stream.ContentType, chunk string) {
		if ct == stream.Content {
			contents = append(contents, chunk)
			cancel()
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := client.Chat(ctx, &llm.Request{
			Messages: []llm.ChatMessage{llm.UserMessage("hi")},
			Stream:   true,
		}, sink)
		done <- err
	}()

	select {
	case err := <-done:
		var upstream *llm.UpstreamError
		require.ErrorAs(t, err, &upstream)
	case <-time.After(2 * time.Second):
		t.Fatal("Chat did not return after cancellation")
	}
	assert.Equal(t, []string{"first"}, contents)
}

func TestChatStreamingToolCallAccumulation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sseBody(
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call-1","type":"function","function":{"name":"add"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"a\":2,"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"b\":3}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		))
	})

	resp, err := client.Chat(context.Background(), &llm.Request{
		Messages: []llm.ChatMessage{llm.UserMessage("2+3?")},
		Stream:   true,
	}, nil)
	require.NoError(t, err)

	msg := resp.First()
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call-1", msg.ToolCalls[0].ID)
	assert.Equal(t, "add", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"a":2,"b":3}`, msg.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_calls", resp.Choices[0].FinishReason)
}

func TestChatStreamingMultipleToolCallsOrdered(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sseBody(
			`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call-b","function":{"name":"second","arguments":"{}"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call-a","function":{"name":"first","arguments":"{}"}}]}}]}`,
		))
	})

	resp, err := client.Chat(context.Background(), &llm.Request{Stream: true}, nil)
	require.NoError(t, err)

	msg := resp.First()
	require.Len(t, msg.ToolCalls, 2)
	assert.Equal(t, "first", msg.ToolCalls[0].Function.Name)
	assert.Equal(t, "second", msg.ToolCalls[1].Function.Name)
}

func TestToolChoiceDefaultsToAuto(t *testing.T) {
	var got apiRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(apiResponse{Choices: []apiChoice{{}}})
	})

	_, err := client.Chat(context.Background(), &llm.Request{
		Tools: []llm.ToolSpec{{Type: "function", Function: llm.FunctionSpec{Name: "add"}}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "auto", got.ToolChoice)
	require.Len(t, got.Tools, 1)
}

func TestDisableThinkingExtension(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(apiResponse{Choices: []apiChoice{{}}})
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "k", Model: "glm-4", BaseURL: server.URL}, WithoutThinking())
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), &llm.Request{}, nil)
	require.NoError(t, err)

	thinking, ok := got["thinking"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "disabled", thinking["type"])
}

func TestNon2xxBecomesUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key"}}`)
	})

	_, err := client.Chat(context.Background(), &llm.Request{}, nil)
	var upstream *llm.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnauthorized, upstream.Status)
	assert.Contains(t, upstream.Body, "bad key")
}

func TestMalformedStreamChunk(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {not json}\n\n")
	})

	_, err := client.Chat(context.Background(), &llm.Request{Stream: true}, nil)
	var upstream *llm.UpstreamError
	require.ErrorAs(t, err, &upstream)
}

func TestStreamErrorPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sseBody(`{"error":{"message":"overloaded"}}`))
	})

	_, err := client.Chat(context.Background(), &llm.Request{Stream: true}, nil)
	var upstream *llm.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, upstream.Body, "overloaded")
}

func TestAdapterRegistry(t *testing.T) {
	for _, adapter := range []string{"openai", "bigmodel", "minimax"} {
		model, err := llm.New(llm.AdapterConfig{
			Adapter: adapter,
			Model:   "m",
			APIKey:  "k",
		})
		require.NoError(t, err, adapter)
		assert.Equal(t, "m", model.Name())
	}

	_, err := llm.New(llm.AdapterConfig{Adapter: "unknown", Model: "m", APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
}

func TestRequestCarriesHistoryVerbatim(t *testing.T) {
	var got apiRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(apiResponse{Choices: []apiChoice{{}}})
	})

	history := []llm.ChatMessage{
		llm.SystemMessage("prompt"),
		llm.UserMessage("2+3?"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
			ID: "call-1", Type: "function",
			Function: llm.FunctionCall{Name: "add", Arguments: `{"a":2,"b":3}`},
		}}},
		llm.ToolMessage("call-1", "✅ Tool call succeeded: 5"),
	}
	_, err := client.Chat(context.Background(), &llm.Request{Messages: history}, nil)
	require.NoError(t, err)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, llm.RoleTool, got.Messages[3].Role)
	assert.Equal(t, "call-1", got.Messages[3].ToolCallID)
}

func ExampleClient_Chat() {
	client, err := New(Config{APIKey: "sk-...", Model: "gpt-4o"})
	if err != nil {
		fmt.Println(err)
		return
	}
	defer client.Close()

	_, _ = client.Chat(context.Background(), &llm.Request{
		Messages: []llm.ChatMessage{llm.UserMessage("hello")},
		Stream:   true,
	}, stream.SinkFunc(func(ct stream.ContentType, chunk string) {
		fmt.Print(chunk)
	}))
}
