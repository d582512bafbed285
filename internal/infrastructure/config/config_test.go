package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: /data/ledger.db
oracle:
  provider: gemini
  model: gemini-2.5-flash
pipeline:
  batch_size: 10
server:
  port: 9090
  allowed_origins:
    - http://localhost:4000
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/ledger.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "gemini", cfg.Oracle.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Oracle.Model)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:4000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Unspecified sections keep their defaults.
	assert.Equal(t, 7, cfg.Pipeline.LookbackDays)
	assert.True(t, cfg.Verification.Enabled)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_ORACLE_KEY", "sk-secret")
	path := writeConfig(t, `
oracle:
  api_key: ${TEST_ORACLE_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.Oracle.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VENDORLEDGER_DB_PATH", "env.db")
	t.Setenv("ORACLE_PROVIDER", "gemini")
	t.Setenv("BATCH_SIZE", "5")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := LoadFromEnv()
	assert.Equal(t, "env.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "gemini", cfg.Oracle.Provider)
	assert.Equal(t, 5, cfg.Pipeline.BatchSize)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadOrEnv_FallsBack(t *testing.T) {
	t.Setenv("VENDORLEDGER_DB_PATH", "fallback.db")
	cfg := LoadOrEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, "fallback.db", cfg.Storage.DatabasePath)
}

func TestAPIKey(t *testing.T) {
	cfg := defaults()
	cfg.Oracle.APIKey = "from-config"
	assert.Equal(t, "from-config", cfg.APIKey())

	cfg.Oracle.APIKey = ""
	t.Setenv("OPENAI_API_KEY", "from-env")
	assert.Equal(t, "from-env", cfg.APIKey())

	cfg.Oracle.Provider = "gemini"
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	assert.Equal(t, "gemini-key", cfg.APIKey())
}
