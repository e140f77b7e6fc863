// Package config loads the sugarbuddy service configuration from an optional
// YAML file plus environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Listen        string          `yaml:"listen"`
	LogLevel      string          `yaml:"log_level"`
	DataDir       string          `yaml:"data_dir"`
	HistoryDB     string          `yaml:"history_db"`
	MetricsDB     string          `yaml:"metrics_db"` // empty disables metrics
	DefaultUserID string          `yaml:"default_user_id"`
	BackendURL    string          `yaml:"backend_url"` // empty = this process
	Responder     ResponderConfig `yaml:"responder"`
	Chat          ChatConfig      `yaml:"chat"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	MCP           MCPConfig       `yaml:"mcp"`
}

// ResponderConfig selects the reply generator behind /api/chat/stream.
type ResponderConfig struct {
	Kind         string `yaml:"kind"` // demo | openai
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

// ChatConfig configures the dashboard chat renderer.
type ChatConfig struct {
	FallbackNotice string `yaml:"fallback_notice"`
}

// RateLimitConfig configures per-client limits on chat POSTs.
type RateLimitConfig struct {
	ChatPerMinute int `yaml:"chat_per_minute"` // 0 disables
}

// MCPConfig toggles the /mcp endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8000",
		LogLevel:      "info",
		DataDir:       "data",
		HistoryDB:     "data/state/chat_history.db",
		MetricsDB:     "data/state/metrics.db",
		DefaultUserID: "u_demo_young_male",
		Responder: ResponderConfig{
			Kind:         "demo",
			SystemPrompt: "你是 SugarBuddy，一位温和、专业的控糖伙伴。回答简洁，必要时使用列表。",
		},
		Chat: ChatConfig{
			FallbackNotice: "[演示模式] 后端未连接。",
		},
		RateLimit: RateLimitConfig{ChatPerMinute: 30},
	}
}

// LoadConfig reads a YAML file (when path is non-empty), applies environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from the environment. getenv is os.Getenv in
// production and a map lookup in tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Listen, "LISTEN")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.DataDir, "DATA_DIR")
	set(&c.HistoryDB, "HISTORY_DB")
	set(&c.MetricsDB, "METRICS_DB")
	set(&c.DefaultUserID, "DEFAULT_USER_ID")
	set(&c.BackendURL, "BACKEND_URL")
	set(&c.Responder.Kind, "RESPONDER")
	set(&c.Responder.BaseURL, "OPENAI_BASE_URL")
	set(&c.Responder.APIKey, "OPENAI_API_KEY")
	set(&c.Responder.Model, "OPENAI_MODEL")
	if v := getenv("CHAT_RATE_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.ChatPerMinute = n
		}
	}
	if v := getenv("MCP_ENABLED"); v != "" {
		c.MCP.Enabled, _ = strconv.ParseBool(v)
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.DefaultUserID == "" {
		return fmt.Errorf("default_user_id is required")
	}
	switch c.Responder.Kind {
	case "demo":
	case "openai":
		if c.Responder.BaseURL == "" || c.Responder.Model == "" {
			return fmt.Errorf("responder: openai requires base_url and model")
		}
	default:
		return fmt.Errorf("responder: unsupported kind %q (use demo or openai)", c.Responder.Kind)
	}
	if c.RateLimit.ChatPerMinute < 0 {
		return fmt.Errorf("rate_limit.chat_per_minute must be >= 0")
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
