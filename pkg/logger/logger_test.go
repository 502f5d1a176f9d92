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

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelWarn},
		{"", slog.LevelWarn},
	}
	for _, tt := range tests {
		level, err := ParseLevel(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, level, tt.input)
	}
}

func TestSimpleTextHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := &simpleTextHandler{
		handler: slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		writer:  &buf,
	}

	record := slog.NewRecord(time.Now(), slog.LevelInfo, "session started", 0)
	record.AddAttrs(slog.String("session", "s1"))
	require.NoError(t, h.Handle(context.Background(), record))

	assert.Equal(t, "INFO session started session=s1\n", buf.String())
}

func TestSimpleTextHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := &simpleTextHandler{
		handler: slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}),
		writer:  &buf,
	}

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestGetLoggerInitializesOnFirstUse(t *testing.T) {
	defaultLogger = nil
	assert.NotNil(t, GetLogger())
}
