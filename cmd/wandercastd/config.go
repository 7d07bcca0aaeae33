// Copyright 2026 Wandercast
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the name of the config file
const DefaultConfigFileName = "wandercastd"

// Config holds all configuration for the Wandercast server.
// Priority: CLI flags > config file > env vars > defaults
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Research ResearchConfig `mapstructure:"research"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Janitor  JanitorConfig  `mapstructure:"janitor"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// ShutdownTimeoutSeconds bounds graceful shutdown (default: 30)
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// DatabaseConfig holds job persistence configuration.
type DatabaseConfig struct {
	// Path is the SQLite database file. Empty keeps jobs in memory.
	Path string `mapstructure:"path"`
}

// CacheConfig holds provider response cache configuration.
type CacheConfig struct {
	// RedisAddr is the Redis host:port. Empty uses the in-process cache.
	RedisAddr string `mapstructure:"redis_addr"`
}

// ResearchConfig holds deep research configuration. Without an API key the
// researcher is unavailable and question queries degrade to fan-out.
type ResearchConfig struct {
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicModel  string `mapstructure:"anthropic_model"`
	MaxTokens       int64  `mapstructure:"max_tokens"`
}

// JobsConfig holds job execution configuration.
type JobsConfig struct {
	// TimeoutSeconds bounds one job end to end (default: 600)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// JanitorConfig holds background maintenance schedules (cron expressions).
type JanitorConfig struct {
	PruneSchedule string `mapstructure:"prune_schedule"`
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// AuthConfig holds the static API token table.
type AuthConfig struct {
	Tokens []TokenConfig `mapstructure:"tokens"`
}

// TokenConfig maps one bearer token to a user and tier.
type TokenConfig struct {
	Token  string `mapstructure:"token"`
	UserID string `mapstructure:"user_id"`
	Tier   string `mapstructure:"tier"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from multiple sources with proper priority:
// 1. Command line flags (highest priority)
// 2. Config file
// 3. Environment variables
// 4. Defaults (lowest priority)
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.wandercast")
		viper.AddConfigPath("/etc/wandercast")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	viper.SetEnvPrefix("WANDERCAST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdown_timeout_seconds", 30)

	viper.SetDefault("database.path", "")
	viper.SetDefault("cache.redis_addr", "")

	viper.SetDefault("research.anthropic_model", "claude-sonnet-4-5")
	viper.SetDefault("research.max_tokens", 4096)

	viper.SetDefault("jobs.timeout_seconds", 600)

	viper.SetDefault("janitor.prune_schedule", "@every 5m")
	viper.SetDefault("janitor.sweep_schedule", "@every 1h")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
