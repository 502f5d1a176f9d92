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

// Package task enforces one live turn per session and carries the
// cancellation signal the engine checks between steps.
package task

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionBusy is returned when a turn is requested on a session that
// already has one running and the manager is configured to reject.
var ErrSessionBusy = errors.New("session already has a turn in progress")

// Task is one running turn. The engine derives its per-step contexts from
// Context and calls Finish when the turn ends, however it ends.
type Task struct {
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	finish    sync.Once
	manager   *Manager
}

// Context is cancelled when the session is cancelled or the parent
// context expires.
func (t *Task) Context() context.Context { return t.ctx }

// SessionID identifies the session this turn belongs to.
func (t *Task) SessionID() string { return t.sessionID }

// Finish releases the session slot. Safe to call more than once.
func (t *Task) Finish() {
	t.finish.Do(func() {
		t.cancel()
		t.manager.release(t)
		close(t.done)
	})
}

// Manager tracks at most one live task per session.
type Manager struct {
	mu         sync.Mutex
	tasks      map[string]*Task
	rejectBusy bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithSerialization makes concurrent turns on one session queue behind
// each other instead of being rejected.
func WithSerialization() Option {
	return func(m *Manager) { m.rejectBusy = false }
}

// NewManager returns a Manager that rejects concurrent turns per session.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		tasks:      make(map[string]*Task),
		rejectBusy: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin claims the session's turn slot and returns the task carrying its
// cancellation context. With rejection configured (the default), a busy
// session returns ErrSessionBusy; otherwise Begin waits for the running
// turn to finish or for ctx to expire.
func (m *Manager) Begin(ctx context.Context, sessionID string) (*Task, error) {
	for {
		m.mu.Lock()
		existing, busy := m.tasks[sessionID]
		if !busy {
			taskCtx, cancel := context.WithCancel(ctx)
			t := &Task{
				sessionID: sessionID,
				ctx:       taskCtx,
				cancel:    cancel,
				done:      make(chan struct{}),
				manager:   m,
			}
			m.tasks[sessionID] = t
			m.mu.Unlock()
			return t, nil
		}
		m.mu.Unlock()

		if m.rejectBusy {
			return nil, ErrSessionBusy
		}

		select {
		case <-existing.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Cancel signals the session's live task. Returns whether one was live.
func (m *Manager) Cancel(sessionID string) bool {
	m.mu.Lock()
	t, ok := m.tasks[sessionID]
	m.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Live reports whether the session currently has a running turn.
func (m *Manager) Live(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[sessionID]
	return ok
}

func (m *Manager) release(t *Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.tasks[t.sessionID]; ok && current == t {
		delete(m.tasks, t.sessionID)
	}
}
