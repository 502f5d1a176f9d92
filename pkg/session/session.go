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

// Package session stores per-session conversation history.
//
// The store is an in-memory map from session id to message history. Turn
// serialization lives in the task manager; the store only guarantees that
// individual operations are atomic and that callers always receive copies,
// never aliases into the stored slice.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/reagent-ai/reagent/pkg/llm"
)

// DefaultIdleTimeout evicts sessions untouched for this long.
const DefaultIdleTimeout = 30 * time.Minute

type entry struct {
	history  []llm.ChatMessage
	lastUsed time.Time
}

// Store holds session histories keyed by session id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*entry),
	}
}

// Get returns a copy of the session's history. A session that was never
// written returns an empty history.
func (s *Store) Get(sessionID string) []llm.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]llm.ChatMessage, len(e.history))
	copy(out, e.history)
	return out
}

// Set replaces the session's history wholesale. Used by the engine to
// persist the turn's outcome in one atomic step.
func (s *Store) Set(sessionID string, history []llm.ChatMessage) {
	stored := make([]llm.ChatMessage, len(history))
	copy(stored, history)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &entry{history: stored, lastUsed: time.Now()}
}

// Append adds messages to the session's history, creating the session on
// first touch.
func (s *Store) Append(sessionID string, msgs ...llm.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{}
		s.sessions[sessionID] = e
	}
	e.history = append(e.history, msgs...)
	e.lastUsed = time.Now()
}

// ReplaceSystemPrompt swaps the leading system message, inserting one when
// the history has none. Later system messages are untouched.
func (s *Store) ReplaceSystemPrompt(sessionID, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{}
		s.sessions[sessionID] = e
	}
	e.lastUsed = time.Now()

	if len(e.history) > 0 && e.history[0].Role == llm.RoleSystem {
		e.history[0].Content = prompt
		return
	}
	e.history = append([]llm.ChatMessage{llm.SystemMessage(prompt)}, e.history...)
}

// Clear drops the session entirely.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle removes sessions untouched for longer than maxIdle and
// returns how many were dropped.
func (s *Store) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.sessions {
		if e.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Info("Evicted idle sessions", "count", evicted, "max_idle", maxIdle)
	}
	return evicted
}

// StartEvictor runs EvictIdle on the interval until stop is closed.
func (s *Store) StartEvictor(maxIdle, interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.EvictIdle(maxIdle)
			case <-stop:
				return
			}
		}
	}()
}
