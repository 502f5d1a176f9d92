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

// Package react runs the Reason-Act-Observe loop between an LLM and the
// tool invokers.
//
// One call to Run is one user turn: the engine claims the session's turn
// slot, rebuilds the system prompt, appends the new user message, then
// alternates model calls and tool executions until the model answers
// without tool calls, the step budget runs out, or the turn is cancelled.
// Tool failures never abort the turn; they become ❌ observations the model
// reads on its next step.
package react

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reagent-ai/reagent/pkg/llm"
	"github.com/reagent-ai/reagent/pkg/session"
	"github.com/reagent-ai/reagent/pkg/stream"
	"github.com/reagent-ai/reagent/pkg/task"
	"github.com/reagent-ai/reagent/pkg/tool"
	"github.com/reagent-ai/reagent/pkg/tool/browsertool"
	"github.com/reagent-ai/reagent/pkg/tool/httptool"
	"github.com/reagent-ai/reagent/pkg/tool/localtool"
)

const (
	// DefaultMaxSteps bounds LLM calls per turn.
	DefaultMaxSteps = 10

	// DefaultTemperature is used when the request carries none.
	DefaultTemperature = 0.7
)

// State is the terminal state of a turn.
type State string

const (
	StateDone           State = "DONE"
	StateCancelled      State = "CANCELLED"
	StateBudgetExceeded State = "BUDGET_EXCEEDED"
	StateUpstreamFailed State = "UPSTREAM_FAILED"
)

// Request is one user turn.
type Request struct {
	// SessionID selects the conversation history.
	SessionID string

	// Model overrides the adapter's configured model when set.
	Model string

	// Messages is the inbound message list; the final user message is
	// appended to the session history. Earlier entries are the caller's
	// copy of the conversation and are ignored in favor of the stored
	// history.
	Messages []llm.ChatMessage

	Temperature *float64
	MaxTokens   int

	// FrontendTools are per-request tool specs implemented by the
	// connected client. They are passed to the model verbatim and
	// dispatched through the browser tool manager.
	FrontendTools []llm.ToolSpec

	// EnvironmentContext is caller-supplied ambient detail injected into
	// the system prompt (current page, user locale, and the like).
	EnvironmentContext string

	// RequestContext carries the caller's headers, cookies and base URL
	// for outbound HTTP tool calls.
	RequestContext tool.RequestContext
}

// Result reports how the turn ended.
type Result struct {
	State State

	// Steps is the number of LLM calls performed.
	Steps int
}

// Engine orchestrates the loop. Construct with New; safe for concurrent
// use across sessions.
type Engine struct {
	model    llm.LLM
	registry *tool.Registry
	sessions *session.Store
	tasks    *task.Manager
	browser  *browsertool.Manager
	http     *httptool.Invoker

	maxSteps    int
	temperature float64
	detailed    bool
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSessionStore substitutes the session store.
func WithSessionStore(s *session.Store) Option {
	return func(e *Engine) { e.sessions = s }
}

// WithTaskManager substitutes the task manager.
func WithTaskManager(m *task.Manager) Option {
	return func(e *Engine) { e.tasks = m }
}

// WithBrowserManager substitutes the browser tool manager.
func WithBrowserManager(m *browsertool.Manager) Option {
	return func(e *Engine) { e.browser = m }
}

// WithHTTPInvoker substitutes the HTTP tool invoker.
func WithHTTPInvoker(i *httptool.Invoker) Option {
	return func(e *Engine) { e.http = i }
}

// WithMaxSteps overrides the per-turn step budget.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithTemperature overrides the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithDetailedPrompt inlines parameter examples into the system prompt's
// tool list.
func WithDetailedPrompt() Option {
	return func(e *Engine) { e.detailed = true }
}

// WithLogger substitutes the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an Engine around the model and tool registry, registering the
// built-in tools as a side effect.
func New(model llm.LLM, registry *tool.Registry, opts ...Option) (*Engine, error) {
	if model == nil {
		return nil, fmt.Errorf("react engine requires a model")
	}
	if registry == nil {
		registry = tool.NewRegistry()
	}

	e := &Engine{
		model:       model,
		registry:    registry,
		sessions:    session.NewStore(),
		tasks:       task.NewManager(),
		browser:     browsertool.NewManager(),
		http:        httptool.NewInvoker(),
		maxSteps:    DefaultMaxSteps,
		temperature: DefaultTemperature,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := registerBuiltins(registry); err != nil {
		return nil, fmt.Errorf("registering built-in tools: %w", err)
	}
	return e, nil
}

// Sessions exposes the engine's session store to the transport.
func (e *Engine) Sessions() *session.Store { return e.sessions }

// Tasks exposes the engine's task manager to the transport.
func (e *Engine) Tasks() *task.Manager { return e.tasks }

// Browser exposes the browser tool manager so the transport can route
// tool-result posts to it.
func (e *Engine) Browser() *browsertool.Manager { return e.browser }

// Run executes one turn. Every failure the caller should surface is also
// emitted on the sink as a single ERROR segment; the error return carries
// the cause for logging and status mapping.
func (e *Engine) Run(ctx context.Context, req *Request, sink stream.Sink) (*Result, error) {
	if sink == nil {
		sink = stream.Discard
	}
	if req.SessionID == "" {
		sink.Emit(stream.Error, "missing session id")
		return nil, fmt.Errorf("missing session id")
	}

	t, err := e.tasks.Begin(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, task.ErrSessionBusy) {
			sink.Emit(stream.Error, "session busy")
		} else {
			sink.Emit(stream.Error, err.Error())
		}
		return nil, err
	}
	defer t.Finish()

	history := e.prepareHistory(req)
	specs, frontendNames := e.assembleToolSpecs(req)

	log := e.logger.With("session", req.SessionID)
	log.Info("Turn started", "tools", len(specs), "history", len(history))

	result := &Result{}
	for step := 1; step <= e.maxSteps; step++ {
		if t.Context().Err() != nil {
			return e.finishCancelled(req, history, result, sink)
		}

		result.Steps = step
		resp, err := e.model.Chat(t.Context(), e.chatRequest(req, history, specs), sink)
		if err != nil {
			if t.Context().Err() != nil {
				return e.finishCancelled(req, history, result, sink)
			}
			log.Error("Model call failed", "step", step, "error", err)
			sink.Emit(stream.Error, err.Error())
			e.persist(req.SessionID, history)
			result.State = StateUpstreamFailed
			return result, err
		}

		assistant := resp.First()
		history = append(history, assistant)

		if len(assistant.ToolCalls) == 0 {
			sink.Emit(stream.Answer, assistant.Content)
			e.persist(req.SessionID, history)
			result.State = StateDone
			log.Info("Turn finished", "steps", step)
			return result, nil
		}

		for idx, call := range assistant.ToolCalls {
			if t.Context().Err() != nil {
				// Answer the not-yet-executed calls so the persisted
				// history keeps one tool message per call id.
				for _, skipped := range assistant.ToolCalls[idx:] {
					history = append(history, llm.ToolMessage(skipped.ID, "❌ Tool call failed: cancelled"))
				}
				return e.finishCancelled(req, history, result, sink)
			}
			obs := e.executeToolCall(t.Context(), req, call, frontendNames, sink)
			history = append(history, llm.ToolMessage(call.ID, obs))
		}
	}

	sink.Emit(stream.Error, "max_steps_exceeded")
	e.persist(req.SessionID, history)
	result.State = StateBudgetExceeded
	log.Warn("Turn exceeded step budget", "max_steps", e.maxSteps)
	return result, nil
}

// Cancel signals the session's running turn and fails its pending browser
// calls.
func (e *Engine) Cancel(sessionID string) bool {
	live := e.tasks.Cancel(sessionID)
	e.browser.CleanupSession(sessionID)
	return live
}

// prepareHistory loads the stored history, swaps in a fresh system prompt
// and appends the turn's new user message.
func (e *Engine) prepareHistory(req *Request) []llm.ChatMessage {
	history := e.sessions.Get(req.SessionID)

	prompt := e.systemPrompt(req)
	if len(history) > 0 && history[0].Role == llm.RoleSystem {
		history[0].Content = prompt
	} else {
		history = append([]llm.ChatMessage{llm.SystemMessage(prompt)}, history...)
	}

	if msg, ok := newUserMessage(req.Messages); ok {
		history = append(history, msg)
	}
	return history
}

// newUserMessage picks the turn's new input: the trailing user message of
// the inbound list.
func newUserMessage(msgs []llm.ChatMessage) (llm.ChatMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i], true
		}
	}
	return llm.ChatMessage{}, false
}

// assembleToolSpecs builds the per-turn tools payload: every registered
// tool with its basic schema (full object schemas only in detailed mode),
// then the request's frontend tools verbatim. Built-ins are in the
// registry already.
func (e *Engine) assembleToolSpecs(req *Request) ([]llm.ToolSpec, map[string]struct{}) {
	defs := e.registry.Definitions()
	specs := make([]llm.ToolSpec, 0, len(defs)+len(req.FrontendTools))
	for _, def := range defs {
		if e.detailed {
			specs = append(specs, tool.DetailedSpec(def))
		} else {
			specs = append(specs, tool.Spec(def))
		}
	}

	frontendNames := make(map[string]struct{}, len(req.FrontendTools))
	for _, fs := range req.FrontendTools {
		specs = append(specs, fs)
		frontendNames[fs.Function.Name] = struct{}{}
	}
	return specs, frontendNames
}

func (e *Engine) chatRequest(req *Request, history []llm.ChatMessage, specs []llm.ToolSpec) *llm.Request {
	temp := req.Temperature
	if temp == nil {
		t := e.temperature
		temp = &t
	}
	return &llm.Request{
		Model:       req.Model,
		Messages:    history,
		Tools:       specs,
		Temperature: temp,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}
}

// executeToolCall dispatches one tool call and returns the observation.
// Emission contract: a plain ACTION "<name>(<args>)" before dispatch and an
// OBSERVATION after; for browser tools the ACTION is the sentinel envelope
// emitted inside the manager.
func (e *Engine) executeToolCall(ctx context.Context, req *Request, call llm.ToolCall, frontendNames map[string]struct{}, sink stream.Sink) string {
	name := call.Function.Name
	args := call.Function.Arguments

	def, registered := e.registry.Definition(name)

	if _, isFrontend := frontendNames[name]; isFrontend || (registered && def.Kind == tool.KindBrowser) {
		obs := e.browser.Invoke(ctx, req.SessionID, call, sink)
		sink.Emit(stream.Observation, obs)
		return obs
	}

	sink.Emit(stream.Action, fmt.Sprintf("%s(%s)", name, args))

	var obs string
	switch {
	case !registered:
		obs = fmt.Sprintf("❌ Tool not found: %s", name)

	case def.Kind == tool.KindLocal:
		result, err := localtool.Invoke(ctx, def, args)
		if err != nil {
			obs = fmt.Sprintf("❌ Tool call failed: %v", err)
		} else {
			obs = fmt.Sprintf("✅ Tool call succeeded: %s", result)
		}

	case def.Kind == tool.KindHTTP:
		// Non-2xx statuses come back as a structured observation, not an
		// error; only transport failures land in err.
		body, err := e.http.Invoke(ctx, def, args, req.RequestContext)
		if err != nil {
			obs = fmt.Sprintf("❌ Tool call failed: %v", err)
		} else {
			obs = body
		}

	default:
		obs = fmt.Sprintf("❌ Tool call failed: unsupported tool kind %s", def.Kind)
	}

	sink.Emit(stream.Observation, obs)
	return obs
}

func (e *Engine) finishCancelled(req *Request, history []llm.ChatMessage, result *Result, sink stream.Sink) (*Result, error) {
	sink.Emit(stream.Error, "cancelled")
	e.browser.CleanupSession(req.SessionID)
	e.persist(req.SessionID, history)
	result.State = StateCancelled
	e.logger.Info("Turn cancelled", "session", req.SessionID, "steps", result.Steps)
	return result, nil
}

func (e *Engine) persist(sessionID string, history []llm.ChatMessage) {
	e.sessions.Set(sessionID, history)
}
