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

// Package stream defines the typed segment sink through which the ReAct
// engine reports progress to its caller.
//
// A turn produces an ordered sequence of (ContentType, chunk) fragments.
// Consecutive fragments of the same type belong to the same segment; a
// change of type closes the previous segment. The sink is the only channel
// between the engine and the outer transport — components never write to
// the transport directly.
package stream

// ContentType classifies a fragment emitted during a turn.
type ContentType string

const (
	// Thinking is engine-side progress narration (not model output).
	Thinking ContentType = "THINKING"

	// Reasoning is the model's reasoning channel (e.g. reasoning_content
	// deltas from providers that expose one).
	Reasoning ContentType = "REASONING"

	// Action announces a tool invocation. For frontend tools the payload is
	// the FRONTEND_TOOL_CALL sentinel line and must be forwarded verbatim.
	Action ContentType = "ACTION"

	// Observation carries a tool result as appended to history.
	Observation ContentType = "OBSERVATION"

	// Answer is the model's final reply for the turn.
	Answer ContentType = "ANSWER"

	// Ask requests clarification from the user.
	Ask ContentType = "ASK"

	// Error reports a turn-terminating failure (cancelled, max_steps_exceeded,
	// upstream failure). Exactly one Error segment ends a failed turn.
	Error ContentType = "ERROR"

	// Content is raw incremental model output while a response streams.
	Content ContentType = "CONTENT"
)

// Sink receives typed fragments in emission order.
//
// Implementations must tolerate being called from a single goroutine per
// turn; they do not need to be safe for concurrent turns sharing one Sink.
type Sink interface {
	Emit(contentType ContentType, chunk string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(contentType ContentType, chunk string)

func (f SinkFunc) Emit(contentType ContentType, chunk string) {
	f(contentType, chunk)
}

// Discard is a Sink that drops everything. Useful when a caller does not
// care about intermediate segments.
var Discard Sink = SinkFunc(func(ContentType, string) {})

// Segment is a fully assembled segment, used by collectors and tests.
type Segment struct {
	Type ContentType
	Text string
}

// Collector is a Sink that records every fragment. It coalesces consecutive
// fragments of the same type into one Segment, mirroring how transports
// render the stream.
type Collector struct {
	segments []Segment
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Emit(contentType ContentType, chunk string) {
	n := len(c.segments)
	if n > 0 && c.segments[n-1].Type == contentType {
		c.segments[n-1].Text += chunk
		return
	}
	c.segments = append(c.segments, Segment{Type: contentType, Text: chunk})
}

// Segments returns the coalesced segments in emission order.
func (c *Collector) Segments() []Segment {
	return c.segments
}

// ByType returns the coalesced segments matching the given type.
func (c *Collector) ByType(contentType ContentType) []Segment {
	var out []Segment
	for _, s := range c.segments {
		if s.Type == contentType {
			out = append(out, s)
		}
	}
	return out
}
