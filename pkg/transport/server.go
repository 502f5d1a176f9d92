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

// Package transport exposes the engine over HTTP.
//
// The chat endpoint streams typed segments as server-sent events; the
// tool-result endpoint is the return path for browser tool calls. The
// envelope is OpenAI-compatible and unknown fields are ignored.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reagent-ai/reagent/pkg/llm"
	"github.com/reagent-ai/reagent/pkg/react"
	"github.com/reagent-ai/reagent/pkg/task"
	"github.com/reagent-ai/reagent/pkg/tool"
)

// Server routes HTTP traffic to the engine.
type Server struct {
	engine      *react.Engine
	router      chi.Router
	httpServer  *http.Server
	metrics     *metrics
	logger      *slog.Logger
	toolBaseURL string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger substitutes the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithToolBaseURL sets the base URL relative HTTP tool paths resolve
// against when the inbound request does not carry one.
func WithToolBaseURL(u string) Option {
	return func(s *Server) { s.toolBaseURL = u }
}

// WithRegisterer redirects metrics off the default Prometheus registry.
// Tests use this to avoid duplicate-registration panics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) { s.metrics = newMetrics(reg) }
}

// New builds the router around the engine.
func New(engine *react.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(prometheus.DefaultRegisterer)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/stream", s.handleChatStream)
		r.Post("/tool/result", s.handleToolResult)
		r.Post("/session/{id}/cancel", s.handleCancel)
		r.Delete("/session/{id}", s.handleClear)
	})

	s.router = r
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and blocks until Shutdown or failure.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP server listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// chatRequest is the inbound chat envelope. Unknown fields are ignored by
// construction of encoding/json.
type chatRequest struct {
	SessionID          string            `json:"sessionId"`
	Model              string            `json:"model"`
	Messages           []llm.ChatMessage `json:"messages"`
	Temperature        *float64          `json:"temperature"`
	MaxTokens          int               `json:"max_tokens"`
	FrontendTools      []llm.ToolSpec    `json:"frontendTools"`
	EnvironmentContext string            `json:"environmentContext"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages cannot be empty")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sink, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer sink.done()

	engineReq := &react.Request{
		SessionID:          req.SessionID,
		Model:              req.Model,
		Messages:           req.Messages,
		Temperature:        req.Temperature,
		MaxTokens:          req.MaxTokens,
		FrontendTools:      req.FrontendTools,
		EnvironmentContext: req.EnvironmentContext,
		RequestContext:     s.requestContext(r),
	}

	s.metrics.pending.Inc()
	defer s.metrics.pending.Dec()

	result, err := s.engine.Run(r.Context(), engineReq, sink)
	if err != nil {
		// The engine already emitted the ERROR segment; nothing more can
		// go down a stream that has started.
		if errors.Is(err, task.ErrSessionBusy) {
			s.metrics.turns.WithLabelValues("BUSY").Inc()
		} else {
			s.metrics.turns.WithLabelValues(string(react.StateUpstreamFailed)).Inc()
		}
		s.logger.Warn("Turn failed", "session", req.SessionID, "error", err)
		return
	}

	s.metrics.turns.WithLabelValues(string(result.State)).Inc()
	s.metrics.steps.Observe(float64(result.Steps))
}

// requestContext captures the caller's ambient state for HTTP tools.
func (s *Server) requestContext(r *http.Request) tool.RequestContext {
	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	return tool.RequestContext{
		BaseURL: s.toolBaseURL,
		Headers: headers,
		Cookies: cookies,
	}
}

// toolResultRequest is the browser tool return path.
type toolResultRequest struct {
	SessionID string `json:"sessionId"`
	ToolCall  struct {
		CallID  string `json:"callId"`
		Result  any    `json:"result"`
		Error   string `json:"error"`
		IsError bool   `json:"isError"`
	} `json:"toolCall"`
}

func (s *Server) handleToolResult(w http.ResponseWriter, r *http.Request) {
	var req toolResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.SessionID == "" || req.ToolCall.CallID == "" {
		writeError(w, http.StatusBadRequest, "sessionId and toolCall.callId are required")
		return
	}

	ok := s.engine.Browser().Complete(
		req.SessionID, req.ToolCall.CallID,
		req.ToolCall.Result, req.ToolCall.Error, req.ToolCall.IsError,
	)
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	live := s.engine.Cancel(sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": live})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	s.engine.Sessions().Clear(sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": true, "message": msg})
}
