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

package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginRejectsBusySession(t *testing.T) {
	m := NewManager()

	first, err := m.Begin(context.Background(), "s1")
	require.NoError(t, err)

	_, err = m.Begin(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrSessionBusy)

	first.Finish()
	second, err := m.Begin(context.Background(), "s1")
	require.NoError(t, err)
	second.Finish()
}

func TestDifferentSessionsDoNotContend(t *testing.T) {
	m := NewManager()

	a, err := m.Begin(context.Background(), "s1")
	require.NoError(t, err)
	defer a.Finish()

	b, err := m.Begin(context.Background(), "s2")
	require.NoError(t, err)
	defer b.Finish()
}

func TestCancelSignalsContext(t *testing.T) {
	m := NewManager()

	task, err := m.Begin(context.Background(), "s1")
	require.NoError(t, err)
	defer task.Finish()

	require.True(t, m.Cancel("s1"))

	select {
	case <-task.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}

func TestCancelWithoutLiveTask(t *testing.T) {
	m := NewManager()
	assert.False(t, m.Cancel("idle"))
}

func TestFinishIsIdempotent(t *testing.T) {
	m := NewManager()

	task, err := m.Begin(context.Background(), "s1")
	require.NoError(t, err)
	task.Finish()
	task.Finish()

	assert.False(t, m.Live("s1"))
}

func TestSerializationQueuesBehindRunningTurn(t *testing.T) {
	m := NewManager(WithSerialization())

	first, err := m.Begin(context.Background(), "s1")
	require.NoError(t, err)

	acquired := make(chan *Task, 1)
	go func() {
		second, beginErr := m.Begin(context.Background(), "s1")
		if beginErr == nil {
			acquired <- second
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second turn started while first was live")
	case <-time.After(50 * time.Millisecond):
	}

	first.Finish()

	select {
	case second := <-acquired:
		second.Finish()
	case <-time.After(time.Second):
		t.Fatal("second turn never started")
	}
}

func TestSerializationRespectsCallerContext(t *testing.T) {
	m := NewManager(WithSerialization())

	first, err := m.Begin(context.Background(), "s1")
	require.NoError(t, err)
	defer first.Finish()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = m.Begin(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
