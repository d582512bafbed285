// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${ENV} expansion
//  2. Environment variables (fallback)
//
// A .env file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration.
type Config struct {
	Storage      StorageConfig      `yaml:"storage"`
	Oracle       OracleConfig       `yaml:"oracle"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Verification VerificationConfig `yaml:"verification"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// StorageConfig holds database configuration.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// OracleConfig selects and configures the LLM backend.
type OracleConfig struct {
	Provider        string `yaml:"provider"` // "openai" or "gemini"
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// PipelineConfig holds processing settings.
type PipelineConfig struct {
	BatchSize    int `yaml:"batch_size"`
	LookbackDays int `yaml:"lookback_days"`
}

// VerificationConfig holds domain-verification settings.
type VerificationConfig struct {
	Enabled         bool `yaml:"enabled"`
	TimeoutSeconds  int  `yaml:"timeout_seconds"`
	CacheTTLSeconds int  `yaml:"cache_ttl_seconds"`
}

// ServerConfig holds API server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Load reads and parses the config file at path. Environment variable
// references like ${OPENAI_API_KEY} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv builds a configuration from environment variables only.
func LoadFromEnv() *Config {
	cfg := defaults()
	cfg.Storage.DatabasePath = getEnv("VENDORLEDGER_DB_PATH", cfg.Storage.DatabasePath)
	cfg.Oracle.Provider = getEnv("ORACLE_PROVIDER", cfg.Oracle.Provider)
	cfg.Oracle.APIKey = firstEnv("OPENAI_API_KEY", "GEMINI_API_KEY")
	cfg.Oracle.Model = getEnv("ORACLE_MODEL", "")
	cfg.Pipeline.BatchSize = getEnvInt("BATCH_SIZE", cfg.Pipeline.BatchSize)
	cfg.Pipeline.LookbackDays = getEnvInt("LOOKBACK_DAYS", cfg.Pipeline.LookbackDays)
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	return cfg
}

// LoadOrEnv loads .env, then tries the given config file, falling back to
// environment variables. An empty path means config.yaml.
func LoadOrEnv(path string) *Config {
	_ = godotenv.Load()

	if path == "" {
		path = "config.yaml"
	}
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// APIKey resolves the oracle API key: config value first, then the
// provider's conventional environment variable.
func (c *Config) APIKey() string {
	if c.Oracle.APIKey != "" {
		return c.Oracle.APIKey
	}
	if c.Oracle.Provider == "gemini" {
		return firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	return os.Getenv("OPENAI_API_KEY")
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{DatabasePath: "vendorledger.db"},
		Oracle:  OracleConfig{Provider: "openai", CacheTTLSeconds: 3600},
		Pipeline: PipelineConfig{
			BatchSize:    20,
			LookbackDays: 7,
		},
		Verification: VerificationConfig{
			Enabled:         true,
			TimeoutSeconds:  2,
			CacheTTLSeconds: 3600,
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}
