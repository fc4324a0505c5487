// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the orchestrator configuration.
//
// Values are layered, later layers winning:
//
//  1. Default()
//  2. the YAML file named by PROTEO_CONFIG
//  3. a .env file (never overrides variables already set)
//  4. the process environment
//
// API keys are only ever read from the environment and are sealed into
// memguard enclaves as soon as they are parsed.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the variable holding the optional YAML file path.
const ConfigPathEnv = "PROTEO_CONFIG"

// DefaultDotEnv is the .env file read by Load.
const DefaultDotEnv = ".env"

// =============================================================================
// Types
// =============================================================================

// Config is the complete orchestrator configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after Load.
type Config struct {
	Server     ServerConfig   `yaml:"server"`
	Log        LogConfig      `yaml:"log"`
	LLM        LLMConfig      `yaml:"llm"`
	OpenData   OpenDataConfig `yaml:"opendata"`
	Memory     MemoryConfig   `yaml:"memory"`
	Tracing    TracingConfig  `yaml:"tracing"`
	Thresholds Thresholds     `yaml:"thresholds"`

	llmKey        *Secret
	copernicusKey *Secret
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"PROTEO_ADDR" validate:"required"`
	GinMode         string        `yaml:"gin_mode" env:"GIN_MODE" validate:"omitempty,oneof=debug release test"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"PROTEO_SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" env:"PROTEO_LOG_LEVEL" validate:"oneof=debug info warn error"`
	File  string `yaml:"file" env:"PROTEO_LOG_FILE"`
	JSON  bool   `yaml:"json" env:"PROTEO_LOG_JSON"`
}

// LLMConfig configures the optional enhancement client. The key itself is
// read from PROTEO_LLM_API_KEY.
type LLMConfig struct {
	BaseURL string        `yaml:"base_url" env:"PROTEO_LLM_BASE_URL" validate:"omitempty,url"`
	Model   string        `yaml:"model" env:"PROTEO_LLM_MODEL" validate:"required"`
	Timeout time.Duration `yaml:"timeout" env:"PROTEO_LLM_TIMEOUT" validate:"gt=0"`

	// SystemPrompt overrides the built-in enhancement prompt when set.
	SystemPrompt string `yaml:"system_prompt" env:"PROTEO_LLM_SYSTEM_PROMPT"`
}

// OpenDataConfig configures the gateway and its cache warmer. The
// Copernicus key is read from PROTEO_COPERNICUS_API_KEY.
type OpenDataConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" env:"PROTEO_OPENDATA_TIMEOUT" validate:"gt=0"`
	CacheTTL       time.Duration `yaml:"cache_ttl" env:"PROTEO_CACHE_TTL" validate:"gt=0"`
	CacheCapacity  int           `yaml:"cache_capacity" env:"PROTEO_CACHE_CAPACITY" validate:"min=1"`
	WarmerEnabled  bool          `yaml:"warmer_enabled" env:"PROTEO_WARMER_ENABLED"`
	WarmInterval   time.Duration `yaml:"warm_interval" env:"PROTEO_WARM_INTERVAL" validate:"gt=0"`
}

// MemoryConfig configures the conversation memory store.
type MemoryConfig struct {
	MaxTurns int `yaml:"max_turns" env:"PROTEO_MEMORY_MAX_TURNS" validate:"min=1"`
}

// TracingConfig selects the span exporter. An OTLP endpoint takes
// precedence over stdout.
type TracingConfig struct {
	ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME" validate:"required"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Stdout       bool   `yaml:"stdout" env:"PROTEO_TRACE_STDOUT"`
}

// Thresholds are the tunable cut-offs of the pipeline. All lie in [0, 1].
type Thresholds struct {
	// Relation is the exclusive minimum strength for one-hop expansion.
	Relation float64 `yaml:"relation" env:"PROTEO_THRESHOLD_RELATION" validate:"gte=0,lte=1"`
	// Technical is the average confidence above which a user is "technical".
	Technical float64 `yaml:"technical" env:"PROTEO_THRESHOLD_TECHNICAL" validate:"gte=0,lte=1"`
	// Expertise is the confidence above which a data turn advances expertise.
	Expertise float64 `yaml:"expertise" env:"PROTEO_THRESHOLD_EXPERTISE" validate:"gte=0,lte=1"`
	// Enhance is the confidence below which the LLM rewrites the answer.
	Enhance float64 `yaml:"enhance" env:"PROTEO_THRESHOLD_ENHANCE" validate:"gte=0,lte=1"`
	// RealData is the confidence above which an answer is labelled real.
	RealData float64 `yaml:"real_data" env:"PROTEO_THRESHOLD_REAL_DATA" validate:"gte=0,lte=1"`
	// Mock is the confidence above which mock mode keeps the composed answer.
	Mock float64 `yaml:"mock" env:"PROTEO_THRESHOLD_MOCK" validate:"gte=0,lte=1"`
	// Health is the share of subsystems that must be up.
	Health float64 `yaml:"health" env:"PROTEO_THRESHOLD_HEALTH" validate:"gt=0,lte=1"`
	// Relevance is the minimum memory search score.
	Relevance float64 `yaml:"relevance" env:"PROTEO_THRESHOLD_RELEVANCE" validate:"gte=0,lte=1"`
}

// secretEnv receives the API keys. It is parsed separately so the plain
// strings never live on Config.
type secretEnv struct {
	LLMKey        string `env:"PROTEO_LLM_API_KEY"`
	CopernicusKey string `env:"PROTEO_COPERNICUS_API_KEY"`
}

// =============================================================================
// Defaults
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":12210",
			GinMode:         "release",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		OpenData: OpenDataConfig{
			RequestTimeout: 10 * time.Second,
			CacheTTL:       5 * time.Minute,
			CacheCapacity:  100,
			WarmerEnabled:  true,
			WarmInterval:   15 * time.Minute,
		},
		Memory: MemoryConfig{
			MaxTurns: 50,
		},
		Tracing: TracingConfig{
			ServiceName: "proteo-orchestrator",
		},
		Thresholds: DefaultThresholds(),
	}
}

// DefaultThresholds returns the stock cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Relation:  0.5,
		Technical: 0.7,
		Expertise: 0.8,
		Enhance:   0.9,
		RealData:  0.7,
		Mock:      0.5,
		Health:    0.6,
		Relevance: 0.3,
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads the configuration from PROTEO_CONFIG, ./.env and the
// environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv(ConfigPathEnv), DefaultDotEnv)
}

// LoadFrom layers the YAML file at path and the .env file at dotenv over
// Default, then applies the environment and validates.
//
// # Inputs
//
//   - path: YAML file. Empty skips the file layer; a missing file is an error.
//   - dotenv: .env file. Empty or missing skips the layer.
//
// # Outputs
//
//   - *Config: The merged configuration with sealed secrets.
//   - error: Read, parse or validation failure. Validation failures are
//     aggregated into a *multierror.Error.
func LoadFrom(path, dotenv string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	var secrets secretEnv
	if err := env.Parse(&secrets); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	cfg.llmKey = SealSecret(secrets.LLMKey)
	cfg.copernicusKey = SealSecret(secrets.CopernicusKey)
	secrets = secretEnv{}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var configValidate = validator.New()

// Validate checks every field and returns all failures at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result = multierror.Append(result,
					fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	if c.Thresholds.Mock > c.Thresholds.Enhance {
		result = multierror.Append(result,
			fmt.Errorf("thresholds: mock (%.2f) must not exceed enhance (%.2f)", c.Thresholds.Mock, c.Thresholds.Enhance))
	}

	return result.ErrorOrNil()
}

// LLMKey returns the sealed LLM API key, or nil when none was configured.
func (c *Config) LLMKey() *Secret { return c.llmKey }

// CopernicusKey returns the sealed Copernicus key, or nil.
func (c *Config) CopernicusKey() *Secret { return c.copernicusKey }

// LogFields returns attributes describing c that are safe to log.
func (c *Config) LogFields() []any {
	return []any{
		"addr", c.Server.Addr,
		"llm_model", c.LLM.Model,
		"llm_key_present", c.llmKey.Present(),
		"copernicus_key_present", c.copernicusKey.Present(),
		"cache_ttl", c.OpenData.CacheTTL.String(),
		"warmer_enabled", c.OpenData.WarmerEnabled,
		"otlp_endpoint_present", c.Tracing.OTLPEndpoint != "",
	}
}
