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

package transport

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/reagent-ai/reagent/pkg/stream"
)

// sseWriter forwards engine segments as server-sent events, one event per
// segment with the segment type as the event name. The browser tool
// sentinel line travels in ACTION data untouched, as clients match on it.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

// Emit implements stream.Sink.
func (s *sseWriter) Emit(contentType stream.ContentType, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.w, "event: %s\n", contentType)
	// SSE data is line-framed; multi-line payloads become one data: line
	// per source line and reassemble client-side.
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(s.w, "data: %s\n", line)
	}
	fmt.Fprint(s.w, "\n")
	s.flusher.Flush()
}

// done terminates the event stream the way OpenAI-style clients expect.
func (s *sseWriter) done() {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}

var _ stream.Sink = (*sseWriter)(nil)
