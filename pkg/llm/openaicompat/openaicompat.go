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

// Package openaicompat implements llm.LLM over the OpenAI chat-completions
// wire format (JSON over HTTP, streaming via SSE "data:" lines terminated
// by "[DONE]").
//
// One client serves every OpenAI-compatible provider; per-provider quirks
// (default endpoint, the thinking:{type:"disabled"} extension, the
// reasoning_content delta channel) are carried on the Config. The openai,
// bigmodel and minimax adapters registered in init are all instances of
// this client.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/reagent-ai/reagent/pkg/httpclient"
	"github.com/reagent-ai/reagent/pkg/llm"
	"github.com/reagent-ai/reagent/pkg/stream"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultTotalTimeout   = 10 * time.Minute

	openAIBaseURL   = "https://api.openai.com/v1"
	bigModelBaseURL = "https://open.bigmodel.cn/api/paas/v4"
	miniMaxBaseURL  = "https://api.minimax.io/v1"
)

func init() {
	llm.RegisterAdapter("openai", func(cfg llm.AdapterConfig) (llm.LLM, error) {
		return New(Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   firstNonEmpty(cfg.BaseURL, openAIBaseURL),
			MaxTokens: cfg.MaxTokens,
		})
	})

	llm.RegisterAdapter("bigmodel", func(cfg llm.AdapterConfig) (llm.LLM, error) {
		return New(Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   firstNonEmpty(cfg.BaseURL, bigModelBaseURL),
			MaxTokens: cfg.MaxTokens,
			// GLM models think by default; the agent loop needs plain
			// tool-calling turns, so the extension switches it off.
			DisableThinking: true,
		})
	})

	llm.RegisterAdapter("minimax", func(cfg llm.AdapterConfig) (llm.LLM, error) {
		return New(Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   firstNonEmpty(cfg.BaseURL, miniMaxBaseURL),
			MaxTokens: cfg.MaxTokens,
		})
	})
}

// Config configures the client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	// MaxTokens caps the completion (0 = provider default).
	MaxTokens int

	// DisableThinking sends thinking:{type:"disabled"} for providers that
	// accept the extension.
	DisableThinking bool

	// ConnectTimeout bounds dialing; defaults to 30s.
	ConnectTimeout time.Duration

	// TotalTimeout bounds the whole call including streaming; defaults to
	// 10 minutes to accommodate long generations.
	TotalTimeout time.Duration

	MaxRetries int
}

// Option mutates the Config.
type Option func(*Config)

// WithBaseURL sets a custom base URL (proxies, local servers).
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(maxTokens int) Option {
	return func(c *Config) { c.MaxTokens = maxTokens }
}

// WithoutThinking enables the thinking:{type:"disabled"} extension.
func WithoutThinking() Option {
	return func(c *Config) { c.DisableThinking = true }
}

// Client is an OpenAI-compatible chat-completions adapter.
type Client struct {
	httpClient      *httpclient.Client
	apiKey          string
	baseURL         string
	modelName       string
	maxTokens       int
	disableThinking bool
}

// New creates a client from cfg, applying opts on top.
func New(cfg Config, opts ...Option) (*Client, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
	}
	totalTimeout := cfg.TotalTimeout
	if totalTimeout == 0 {
		totalTimeout = defaultTotalTimeout
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}

	hc := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: totalTimeout, Transport: transport}),
		httpclient.WithMaxRetries(maxRetries),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	)

	return &Client{
		httpClient:      hc,
		apiKey:          cfg.APIKey,
		baseURL:         baseURL,
		modelName:       cfg.Model,
		maxTokens:       cfg.MaxTokens,
		disableThinking: cfg.DisableThinking,
	}, nil
}

// Name returns the configured model identifier.
func (c *Client) Name() string {
	return c.modelName
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

// Chat performs one chat-completion call. See llm.LLM.
func (c *Client) Chat(ctx context.Context, req *llm.Request, sink stream.Sink) (*llm.Response, error) {
	if sink == nil {
		sink = stream.Discard
	}

	apiReq := c.buildRequest(req)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			bodyBytes, _ := io.ReadAll(resp.Body)
			return nil, &llm.UpstreamError{Status: resp.StatusCode, Body: string(bodyBytes), Err: err}
		}
		return nil, &llm.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &llm.UpstreamError{Status: resp.StatusCode, Body: string(bodyBytes)}
	}

	if apiReq.Stream {
		return c.consumeStream(resp.Body, sink)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &llm.UpstreamError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if apiResp.Error != nil {
		return nil, &llm.UpstreamError{Body: apiResp.Error.Message}
	}

	return apiResp.toResponse(), nil
}

func (c *Client) completionsURL() string {
	return c.baseURL + "/chat/completions"
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *Client) buildRequest(req *llm.Request) *apiRequest {
	model := req.Model
	if model == "" {
		model = c.modelName
	}

	apiReq := &apiRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   req.Stream,
	}

	if req.Temperature != nil {
		apiReq.Temperature = req.Temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		apiReq.MaxTokens = maxTokens
	}

	if len(req.Tools) > 0 {
		apiReq.Tools = req.Tools
		toolChoice := req.ToolChoice
		if toolChoice == "" {
			toolChoice = "auto"
		}
		apiReq.ToolChoice = toolChoice
	}

	if c.disableThinking {
		apiReq.Thinking = &thinkingConfig{Type: "disabled"}
	}

	return apiReq
}

// streamAccumulator assembles a complete Response out of SSE deltas.
type streamAccumulator struct {
	id           string
	created      int64
	model        string
	content      strings.Builder
	reasoning    strings.Builder
	finishReason string
	toolCalls    map[int]*llm.ToolCall
	usage        *llm.Usage
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{toolCalls: make(map[int]*llm.ToolCall)}
}

func (a *streamAccumulator) addToolCallDelta(delta toolCallDelta) {
	tc, ok := a.toolCalls[delta.Index]
	if !ok {
		tc = &llm.ToolCall{Type: "function"}
		a.toolCalls[delta.Index] = tc
	}
	if delta.ID != "" {
		tc.ID = delta.ID
	}
	if delta.Type != "" {
		tc.Type = delta.Type
	}
	if delta.Function.Name != "" {
		tc.Function.Name += delta.Function.Name
	}
	if delta.Function.Arguments != "" {
		tc.Function.Arguments += delta.Function.Arguments
	}
}

func (a *streamAccumulator) response() *llm.Response {
	msg := llm.ChatMessage{
		Role:             llm.RoleAssistant,
		Content:          a.content.String(),
		ReasoningContent: a.reasoning.String(),
	}

	if len(a.toolCalls) > 0 {
		indexes := make([]int, 0, len(a.toolCalls))
		for i := range a.toolCalls {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			msg.ToolCalls = append(msg.ToolCalls, *a.toolCalls[i])
		}
	}

	finishReason := a.finishReason
	if finishReason == "" {
		if len(msg.ToolCalls) > 0 {
			finishReason = "tool_calls"
		} else {
			finishReason = "stop"
		}
	}

	return &llm.Response{
		ID:      a.id,
		Created: a.created,
		Model:   a.model,
		Choices: []llm.Choice{{Message: msg, FinishReason: finishReason}},
		Usage:   a.usage,
	}
}

// consumeStream reads SSE lines until [DONE] or EOF and synthesizes a
// non-streaming Response from the accumulated deltas.
func (c *Client) consumeStream(body io.Reader, sink stream.Sink) (*llm.Response, error) {
	acc := newStreamAccumulator()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk apiStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, &llm.UpstreamError{Err: fmt.Errorf("malformed stream chunk: %w, data: %s", err, payload)}
		}
		if chunk.Error != nil {
			return nil, &llm.UpstreamError{Body: chunk.Error.Message}
		}

		if chunk.ID != "" {
			acc.id = chunk.ID
		}
		if chunk.Created != 0 {
			acc.created = chunk.Created
		}
		if chunk.Model != "" {
			acc.model = chunk.Model
		}
		if chunk.Usage != nil {
			acc.usage = chunk.Usage
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.ReasoningContent != "" {
			acc.reasoning.WriteString(choice.Delta.ReasoningContent)
			sink.Emit(stream.Reasoning, choice.Delta.ReasoningContent)
		}
		if choice.Delta.Content != "" {
			acc.content.WriteString(choice.Delta.Content)
			sink.Emit(stream.Content, choice.Delta.Content)
		}
		for _, tcd := range choice.Delta.ToolCalls {
			acc.addToolCallDelta(tcd)
		}
		if choice.FinishReason != "" {
			acc.finishReason = choice.FinishReason
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &llm.UpstreamError{Err: fmt.Errorf("stream read error: %w", err)}
	}

	return acc.response(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Wire types.

type apiRequest struct {
	Model       string            `json:"model"`
	Messages    []llm.ChatMessage `json:"messages"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Tools       []llm.ToolSpec    `json:"tools,omitempty"`
	ToolChoice  any               `json:"tool_choice,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
	Thinking    *thinkingConfig   `json:"thinking,omitempty"`
}

type thinkingConfig struct {
	Type string `json:"type"`
}

type apiResponse struct {
	ID      string      `json:"id"`
	Created int64       `json:"created"`
	Model   string      `json:"model"`
	Choices []apiChoice `json:"choices"`
	Usage   *llm.Usage  `json:"usage,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

func (r *apiResponse) toResponse() *llm.Response {
	resp := &llm.Response{
		ID:      r.ID,
		Created: r.Created,
		Model:   r.Model,
		Usage:   r.Usage,
	}
	for _, ch := range r.Choices {
		resp.Choices = append(resp.Choices, llm.Choice{
			Index:        ch.Index,
			Message:      ch.Message,
			FinishReason: ch.FinishReason,
		})
	}
	return resp
}

type apiChoice struct {
	Index        int             `json:"index"`
	Message      llm.ChatMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

type apiStreamChunk struct {
	ID      string            `json:"id"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []apiStreamChoice `json:"choices"`
	Usage   *llm.Usage        `json:"usage,omitempty"`
	Error   *apiError         `json:"error,omitempty"`
}

type apiStreamChoice struct {
	Index        int      `json:"index"`
	Delta        apiDelta `json:"delta"`
	FinishReason string   `json:"finish_reason"`
}

type apiDelta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        []toolCallDelta `json:"tool_calls,omitempty"`
}

type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

var _ llm.LLM = (*Client)(nil)
