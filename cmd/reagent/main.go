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

// Command reagent serves the ReAct engine over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/reagent-ai/reagent/pkg/config"
	"github.com/reagent-ai/reagent/pkg/llm"
	_ "github.com/reagent-ai/reagent/pkg/llm/openaicompat"
	"github.com/reagent-ai/reagent/pkg/logger"
	"github.com/reagent-ai/reagent/pkg/react"
	"github.com/reagent-ai/reagent/pkg/session"
	"github.com/reagent-ai/reagent/pkg/task"
	"github.com/reagent-ai/reagent/pkg/tool"
	"github.com/reagent-ai/reagent/pkg/tool/browsertool"
	"github.com/reagent-ai/reagent/pkg/tool/diagtool"
	"github.com/reagent-ai/reagent/pkg/transport"
)

var version = "dev"

type cli struct {
	Serve   serveCmd         `cmd:"" default:"1" help:"Start the engine HTTP server."`
	Version kong.VersionFlag `help:"Print version and exit."`
}

type serveCmd struct {
	Config    string `short:"c" default:"reagent.yaml" help:"Path to the configuration file."`
	Host      string `help:"Override the listen host."`
	Port      int    `help:"Override the listen port."`
	LogLevel  string `help:"Override the log level (debug, info, warn, error)."`
	LogFormat string `help:"Override the log format (text, json)."`
	Watch     bool   `help:"Reload the configuration on change."`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("reagent"),
		kong.Description("ReAct LLM orchestration engine."),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run())
}

func (cmd *serveCmd) Run() error {
	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return err
	}
	cmd.applyOverrides(cfg)

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Output, cfg.Logging.Format); err != nil {
		return err
	}
	slog.Info("Starting reagent", "version", version, "adapter", cfg.Model.Adapter, "model", cfg.Model.Model)

	model, err := llm.New(llm.AdapterConfig{
		Adapter:   cfg.Model.Adapter,
		Model:     cfg.Model.Model,
		APIKey:    cfg.Model.APIKey,
		BaseURL:   cfg.Model.BaseURL,
		MaxTokens: cfg.Model.MaxTokens,
	})
	if err != nil {
		return err
	}
	defer model.Close()

	registry := tool.NewRegistry()
	if err := diagtool.Register(registry); err != nil {
		return err
	}

	var taskOpts []task.Option
	if cfg.Session.RejectBusy != nil && !*cfg.Session.RejectBusy {
		taskOpts = append(taskOpts, task.WithSerialization())
	}

	sessions := session.NewStore()

	engineOpts := []react.Option{
		react.WithMaxSteps(cfg.React.MaxSteps),
		react.WithSessionStore(sessions),
		react.WithTaskManager(task.NewManager(taskOpts...)),
		react.WithBrowserManager(browsertool.NewManager(
			browsertool.WithTimeout(cfg.FrontendTimeout()),
		)),
	}
	if cfg.React.Temperature != nil {
		engineOpts = append(engineOpts, react.WithTemperature(*cfg.React.Temperature))
	}
	if cfg.React.DetailedSystemPrompt {
		engineOpts = append(engineOpts, react.WithDetailedPrompt())
	}

	engine, err := react.New(model, registry, engineOpts...)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	sessions.StartEvictor(cfg.IdleTimeout(), time.Minute, stop)

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cmd.Watch {
		go func() {
			err := config.Watch(runCtx, cmd.Config, func(next *config.Config) {
				// Logging is the only concern safe to swap mid-flight;
				// model and engine changes need a restart.
				if err := logger.Init(next.Logging.Level, next.Logging.Output, next.Logging.Format); err != nil {
					slog.Warn("Keeping previous logging settings", "error", err)
				}
			})
			if err != nil && runCtx.Err() == nil {
				slog.Warn("Config watch stopped", "error", err)
			}
		}()
	}

	server := transport.New(engine)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func (cmd *serveCmd) applyOverrides(cfg *config.Config) {
	if cmd.Host != "" {
		cfg.Server.Host = cmd.Host
	}
	if cmd.Port != 0 {
		cfg.Server.Port = cmd.Port
	}
	if cmd.LogLevel != "" {
		cfg.Logging.Level = cmd.LogLevel
	}
	if cmd.LogFormat != "" {
		cfg.Logging.Format = cmd.LogFormat
	}
}
