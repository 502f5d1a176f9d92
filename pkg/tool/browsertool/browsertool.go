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

// Package browsertool bridges tool calls to the connected client.
//
// A browser tool is implemented on the other end of the caller's duplex
// channel: the engine emits a sentinel ACTION line that the client detects,
// executes locally, and answers through a separate tool-result endpoint.
// The invoking worker blocks on a one-shot completion slot keyed by
// (sessionId, callId) until the result arrives, the wait budget expires,
// or the session is cancelled.
package browsertool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reagent-ai/reagent/pkg/llm"
	"github.com/reagent-ai/reagent/pkg/stream"
)

// Sentinel prefixes the ACTION line carrying a frontend tool call.
// Transports forward the line verbatim; clients match on this prefix.
const Sentinel = "[FRONTEND_TOOL_CALL] "

// DefaultTimeout bounds how long a worker waits for the client to answer.
const DefaultTimeout = 30 * time.Second

// envelope is the JSON payload after the sentinel prefix.
type envelope struct {
	Type     string       `json:"type"`
	CallID   string       `json:"callId"`
	ToolCall llm.ToolCall `json:"toolCall"`
}

type slotKey struct {
	sessionID string
	callID    string
}

type slot struct {
	ch chan string
}

// Manager owns the pending-call table and the wait discipline.
type Manager struct {
	mu      sync.Mutex
	pending map[slotKey]*slot
	timeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides the per-call wait budget.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager returns a Manager with the default wait budget.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		pending: make(map[slotKey]*slot),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register allocates a correlation id and a one-shot completion slot for
// the call. Exposed separately from Invoke for transports that manage the
// wait themselves.
func (m *Manager) Register(sessionID string) string {
	callID, _ := m.register(sessionID)
	return callID
}

func (m *Manager) register(sessionID string) (string, *slot) {
	callID := uuid.NewString()
	s := &slot{ch: make(chan string, 1)}

	m.mu.Lock()
	m.pending[slotKey{sessionID, callID}] = s
	m.mu.Unlock()

	return callID, s
}

// Invoke emits the frontend tool call on the sink and blocks until the
// client answers, the budget expires, or ctx is cancelled. The returned
// string is always a ready-to-append observation.
func (m *Manager) Invoke(ctx context.Context, sessionID string, call llm.ToolCall, sink stream.Sink) string {
	// The slot is held locally: a Complete or CleanupSession racing the
	// registration can only resolve it, never strand the wait behind a
	// deleted map entry.
	callID, s := m.register(sessionID)
	key := slotKey{sessionID, callID}

	payload, err := json.Marshal(envelope{
		Type:     "FRONTEND_TOOL_CALL",
		CallID:   callID,
		ToolCall: call,
	})
	if err != nil {
		m.remove(key)
		return fmt.Sprintf("❌ Tool call failed: %v", err)
	}
	sink.Emit(stream.Action, Sentinel+string(payload))

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case obs := <-s.ch:
		return obs

	case <-timer.C:
		m.remove(key)
		// The client may have answered in the same instant; prefer its
		// result over the timeout.
		select {
		case obs := <-s.ch:
			return obs
		default:
		}
		slog.Warn("Frontend tool call timed out",
			"session", sessionID, "call", callID, "tool", call.Function.Name)
		return "❌ Tool call failed: timeout"

	case <-ctx.Done():
		m.remove(key)
		select {
		case obs := <-s.ch:
			return obs
		default:
		}
		return "❌ Tool call failed: cancelled"
	}
}

// Complete fulfills the slot exactly once with the client's result.
// Returns false when the (sessionId, callId) pair is unknown, including
// slots already fulfilled, timed out, or cleaned up.
func (m *Manager) Complete(sessionID, callID string, result any, errMsg string, isError bool) bool {
	key := slotKey{sessionID, callID}

	m.mu.Lock()
	s, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	var obs string
	if isError {
		obs = fmt.Sprintf("❌ Tool call failed: %s", errMsg)
	} else {
		obs = fmt.Sprintf("✅ Tool call succeeded: %s", stringify(result))
	}
	s.ch <- obs
	return true
}

// CleanupSession resolves every pending slot for the session as cancelled.
func (m *Manager) CleanupSession(sessionID string) {
	m.mu.Lock()
	var slots []*slot
	for key, s := range m.pending {
		if key.sessionID == sessionID {
			slots = append(slots, s)
			delete(m.pending, key)
		}
	}
	m.mu.Unlock()

	for _, s := range slots {
		s.ch <- "❌ Tool call failed: cancelled"
	}
}

// PendingCount reports the number of unresolved calls for the session.
func (m *Manager) PendingCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key := range m.pending {
		if key.sessionID == sessionID {
			n++
		}
	}
	return n
}

func (m *Manager) remove(key slotKey) {
	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()
}

// stringify renders the client's result for the observation: strings pass
// through, everything else is JSON.
func stringify(result any) string {
	if result == nil {
		return "null"
	}
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}
