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

package browsertool

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reagent-ai/reagent/pkg/llm"
	"github.com/reagent-ai/reagent/pkg/stream"
)

func cookieCall() llm.ToolCall {
	return llm.ToolCall{
		ID:       "call-1",
		Type:     "function",
		Function: llm.FunctionCall{Name: "getAllCookies", Arguments: "{}"},
	}
}

// captureSink records emissions and hands ACTION payloads to a channel so
// the test can answer while Invoke blocks.
type captureSink struct {
	mu      sync.Mutex
	actions chan string
	all     []stream.Segment
}

func newCaptureSink() *captureSink {
	return &captureSink{actions: make(chan string, 4)}
}

func (c *captureSink) Emit(ct stream.ContentType, chunk string) {
	c.mu.Lock()
	c.all = append(c.all, stream.Segment{Type: ct, Text: chunk})
	c.mu.Unlock()
	if ct == stream.Action {
		c.actions <- chunk
	}
}

func parseCallID(t *testing.T, action string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(action, Sentinel))

	var env struct {
		Type   string `json:"type"`
		CallID string `json:"callId"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(action, Sentinel)), &env))
	assert.Equal(t, "FRONTEND_TOOL_CALL", env.Type)
	require.NotEmpty(t, env.CallID)
	return env.CallID
}

func TestInvokeRoundTrip(t *testing.T) {
	m := NewManager(WithTimeout(2 * time.Second))
	sink := newCaptureSink()

	obsCh := make(chan string, 1)
	go func() {
		obsCh <- m.Invoke(context.Background(), "s1", cookieCall(), sink)
	}()

	callID := parseCallID(t, <-sink.actions)
	require.True(t, m.Complete("s1", callID, map[string]string{"cookie": "k=v"}, "", false))

	obs := <-obsCh
	assert.Contains(t, obs, "✅ Tool call succeeded")
	assert.Contains(t, obs, "k=v")
	assert.Equal(t, 0, m.PendingCount("s1"))
}

func TestCompleteWithError(t *testing.T) {
	m := NewManager(WithTimeout(2 * time.Second))
	sink := newCaptureSink()

	obsCh := make(chan string, 1)
	go func() {
		obsCh <- m.Invoke(context.Background(), "s1", cookieCall(), sink)
	}()

	callID := parseCallID(t, <-sink.actions)
	require.True(t, m.Complete("s1", callID, nil, "permission denied", true))

	assert.Equal(t, "❌ Tool call failed: permission denied", <-obsCh)
}

func TestCompleteExactlyOnce(t *testing.T) {
	m := NewManager(WithTimeout(2 * time.Second))
	sink := newCaptureSink()

	obsCh := make(chan string, 1)
	go func() {
		obsCh <- m.Invoke(context.Background(), "s1", cookieCall(), sink)
	}()

	callID := parseCallID(t, <-sink.actions)
	assert.True(t, m.Complete("s1", callID, "first", "", false))
	assert.False(t, m.Complete("s1", callID, "second", "", false))

	obs := <-obsCh
	assert.Contains(t, obs, "first")
}

func TestCompleteUnknownCall(t *testing.T) {
	m := NewManager()
	assert.False(t, m.Complete("nope", "missing", nil, "", false))
}

func TestInvokeTimeout(t *testing.T) {
	m := NewManager(WithTimeout(50 * time.Millisecond))
	sink := newCaptureSink()

	obs := m.Invoke(context.Background(), "s1", cookieCall(), sink)
	assert.Equal(t, "❌ Tool call failed: timeout", obs)

	// The slot is freed; a late answer is refused.
	assert.Equal(t, 0, m.PendingCount("s1"))
}

func TestInvokeCancelled(t *testing.T) {
	m := NewManager(WithTimeout(5 * time.Second))
	sink := newCaptureSink()

	ctx, cancel := context.WithCancel(context.Background())
	obsCh := make(chan string, 1)
	go func() {
		obsCh <- m.Invoke(ctx, "s1", cookieCall(), sink)
	}()

	<-sink.actions
	cancel()

	select {
	case obs := <-obsCh:
		assert.Equal(t, "❌ Tool call failed: cancelled", obs)
	case <-time.After(2 * time.Second):
		t.Fatal("Invoke did not return after cancellation")
	}
}

func TestCleanupSessionResolvesAllPending(t *testing.T) {
	m := NewManager(WithTimeout(5 * time.Second))
	sink := newCaptureSink()

	obsCh := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			obsCh <- m.Invoke(context.Background(), "s1", cookieCall(), sink)
		}()
	}
	<-sink.actions
	<-sink.actions

	m.CleanupSession("s1")

	for i := 0; i < 2; i++ {
		select {
		case obs := <-obsCh:
			assert.Equal(t, "❌ Tool call failed: cancelled", obs)
		case <-time.After(2 * time.Second):
			t.Fatal("pending call not resolved by cleanup")
		}
	}
	assert.Equal(t, 0, m.PendingCount("s1"))
}

func TestCleanupLeavesOtherSessionsAlone(t *testing.T) {
	m := NewManager(WithTimeout(5 * time.Second))
	sink := newCaptureSink()

	obsCh := make(chan string, 1)
	go func() {
		obsCh <- m.Invoke(context.Background(), "s2", cookieCall(), sink)
	}()
	callID := parseCallID(t, <-sink.actions)

	m.CleanupSession("s1")
	require.Equal(t, 1, m.PendingCount("s2"))

	require.True(t, m.Complete("s2", callID, "ok", "", false))
	assert.Contains(t, <-obsCh, "ok")
}

// A cleanup racing the registration must resolve the wait, never strand
// or crash it.
func TestInvokeSurvivesConcurrentCleanup(t *testing.T) {
	m := NewManager(WithTimeout(20 * time.Millisecond))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				m.CleanupSession("s1")
			}
		}
	}()

	for i := 0; i < 50; i++ {
		obs := m.Invoke(context.Background(), "s1", cookieCall(), stream.Discard)
		assert.Contains(t, obs, "❌ Tool call failed")
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 0, m.PendingCount("s1"))
}

func TestFreshCallIDsPerInvocation(t *testing.T) {
	m := NewManager(WithTimeout(time.Second))
	a := m.Register("s1")
	b := m.Register("s1")
	assert.NotEqual(t, a, b)
}
