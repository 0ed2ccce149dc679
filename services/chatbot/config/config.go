// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the chatbot service configuration.
//
// Configuration comes from an optional config.yaml plus MINDCARE_*
// environment variable overrides; every key has a default, so the
// service runs with no file at all.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Generation GenerationConfig `mapstructure:"generation"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	// AllowOrigins lists the origins permitted by CORS. Defaults cover
	// the local frontend dev servers.
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// LLMConfig selects and configures the generation backend.
//
// Backend is "ollama" (default) or "openai". BaseURL and Model apply to
// both; APIKey is required for the openai backend only.
type LLMConfig struct {
	Backend string        `mapstructure:"backend"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig bounds per-client request rates.
//
// TrustProxy keys the limiter on X-Forwarded-For when true. Clients can
// spoof that header when no proxy overwrites it; the default preserves
// compatibility with proxied deployments.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	TrustProxy  bool          `mapstructure:"trust_proxy"`
}

// GenerationConfig holds pipeline policy knobs.
//
// FallbackToBlocking retries an empty or failed stream with one blocking
// request when reconstructing a full reply. It can double the upstream
// load per request under partial failure, hence a config knob rather
// than hard-coded behavior.
type GenerationConfig struct {
	FallbackToBlocking bool    `mapstructure:"fallback_to_blocking"`
	Temperature        float64 `mapstructure:"temperature"`
	NumCtx             int     `mapstructure:"num_ctx"`
	NumPredict         int     `mapstructure:"num_predict"`
	TopP               float64 `mapstructure:"top_p"`
}

// SessionsConfig controls the idle session sweeper.
type SessionsConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// File enables rotating file output when non-empty; stdout otherwise.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.allow_origins", []string{
		"http://localhost:8080",
		"http://127.0.0.1:8080",
		"http://localhost:3000",
	})

	v.SetDefault("llm.backend", "ollama")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "gemma3:4b")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("ratelimit.max_requests", 20)
	v.SetDefault("ratelimit.window", 60*time.Second)
	v.SetDefault("ratelimit.trust_proxy", true)

	v.SetDefault("generation.fallback_to_blocking", true)
	v.SetDefault("generation.temperature", 0.6)
	v.SetDefault("generation.num_ctx", 3000)
	v.SetDefault("generation.num_predict", 300)
	v.SetDefault("generation.top_p", 0.7)

	v.SetDefault("sessions.sweep_interval", 10*time.Minute)
	v.SetDefault("sessions.idle_timeout", time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// Load reads config.yaml from the given directories (the working
// directory when none are given), applies MINDCARE_* environment
// overrides, and validates the result. A missing file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("MINDCARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Backend {
	case "ollama":
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown llm.backend %q (want ollama or openai)", c.LLM.Backend)
	}

	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("ratelimit.max_requests must be positive, got %d", c.RateLimit.MaxRequests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive, got %s", c.RateLimit.Window)
	}
	if c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("sessions.sweep_interval must be positive, got %s", c.Sessions.SweepInterval)
	}
	if c.Sessions.IdleTimeout <= 0 {
		return fmt.Errorf("sessions.idle_timeout must be positive, got %s", c.Sessions.IdleTimeout)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
