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

// Package config loads the YAML configuration with environment variable
// expansion.
//
// ${VAR} and ${VAR:-default} references in the file are substituted before
// parsing, so API keys never live in the file itself. A .env file next to
// the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	Model        ModelConfig        `yaml:"model"`
	React        ReactConfig        `yaml:"react"`
	FrontendTool FrontendToolConfig `yaml:"frontend_tool"`
	Session      SessionConfig      `yaml:"session"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	ToolScan     ToolScanConfig     `yaml:"tool_scan"`
}

// ModelConfig selects and authenticates the upstream model.
type ModelConfig struct {
	// Adapter is the provider wire dialect: openai, bigmodel, minimax.
	Adapter string `yaml:"adapter"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	MaxTokens int `yaml:"max_tokens"`
}

// ReactConfig tunes the engine loop.
type ReactConfig struct {
	MaxSteps             int      `yaml:"max_steps"`
	Temperature          *float64 `yaml:"temperature"`
	DetailedSystemPrompt bool     `yaml:"detailed_system_prompt"`
}

// FrontendToolConfig tunes the browser tool bridge.
type FrontendToolConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

// SessionConfig tunes session retention and turn concurrency.
type SessionConfig struct {
	IdleTimeoutMs int64 `yaml:"idle_timeout_ms"`

	// RejectBusy rejects a second concurrent turn on a session instead of
	// queuing it. Defaults to true.
	RejectBusy *bool `yaml:"reject_busy"`
}

// ServerConfig is the HTTP listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig selects log level and sink.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ToolScanConfig carries hints for the external tool discovery
// collaborator; the engine itself never reads it.
type ToolScanConfig struct {
	Packages []string `yaml:"packages"`
	Classes  []string `yaml:"classes"`
}

// Load reads, expands and validates the configuration file.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is the normal case in production.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no model
// credentials. Useful for tests and for running without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields with their documented defaults.
func (c *Config) SetDefaults() {
	if c.Model.Adapter == "" {
		c.Model.Adapter = "openai"
	}
	if c.React.MaxSteps == 0 {
		c.React.MaxSteps = 10
	}
	if c.React.Temperature == nil {
		t := 0.7
		c.React.Temperature = &t
	}
	if c.FrontendTool.TimeoutMs == 0 {
		c.FrontendTool.TimeoutMs = 30_000
	}
	if c.Session.IdleTimeoutMs == 0 {
		c.Session.IdleTimeoutMs = 30 * 60 * 1000
	}
	if c.Session.RejectBusy == nil {
		reject := true
		c.Session.RejectBusy = &reject
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Model.Model == "" {
		return fmt.Errorf("model.model is required")
	}
	if c.React.MaxSteps < 1 {
		return fmt.Errorf("react.max_steps must be at least 1, got %d", c.React.MaxSteps)
	}
	if c.FrontendTool.TimeoutMs < 0 {
		return fmt.Errorf("frontend_tool.timeout_ms cannot be negative")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// FrontendTimeout returns the browser tool wait budget as a duration.
func (c *Config) FrontendTimeout() time.Duration {
	return time.Duration(c.FrontendTool.TimeoutMs) * time.Millisecond
}

// IdleTimeout returns the session idle eviction threshold as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutMs) * time.Millisecond
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv substitutes ${VAR} and ${VAR:-default} references. An unset
// variable without a default expands to the empty string.
func ExpandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name, hasDefault, fallback := groups[1], groups[2] != "", groups[3]

		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		if hasDefault {
			return fallback
		}
		return ""
	})
}
