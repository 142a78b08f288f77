package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TRAPSCAN_ENDPOINT", "https://api.example.com/analyze")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.RateLimit.MaxRequestsPerMinute)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.Retention)
	assert.Equal(t, 20000, cfg.Settings.MaxChars)
	assert.Equal(t, "https://api.example.com/analyze", cfg.Analysis.Endpoint)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9000
analysis:
  backend: heuristic
cache:
  ttl: 2h
history:
  driver: postgres
  database:
    host: db
    user: trap
    password: secret
    name: trapscan
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, "host=db port=5432 user=trap password=secret dbname=trapscan sslmode=disable", cfg.HistoryDSN())
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	path := writeFile(t, `
storage:
  driver: redis
analysis:
  backend: heuristic
cache:
  maxEntries: 0
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
	assert.Contains(t, err.Error(), "cache.maxEntries")
}

func TestValidateBackendRequirements(t *testing.T) {
	t.Setenv("TRAPSCAN_ENDPOINT", "")
	t.Setenv("OPENAI_API_KEY", "")
	cfg := DefaultConfig()
	assert.ErrorContains(t, cfg.Validate(), "analysis.endpoint")

	cfg.Analysis.Backend = "openai"
	assert.ErrorContains(t, cfg.Validate(), "OPENAI_API_KEY")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg.ApplyEnv()
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvAPIKey(t *testing.T) {
	t.Setenv("TRAPSCAN_API_KEY", "k1")
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "k1", cfg.Client.APIKey)
	assert.Equal(t, "k1", cfg.Server.APIKeys["env"])
}

func TestMySQLDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History.Driver = "mysql"
	cfg.History.Database.Host = "localhost"
	cfg.History.Database.User = "root"
	cfg.History.Database.Name = "trapscan"
	assert.Equal(t, "root:@tcp(localhost:3306)/trapscan?parseTime=true&charset=utf8mb4&loc=UTC", cfg.HistoryDSN())
}

func TestLoadClientSkipsDaemonValidation(t *testing.T) {
	t.Setenv("TRAPSCAN_ENDPOINT", "")
	t.Setenv("TRAPSCAN_SERVER", "http://10.0.0.5:8787")
	path := writeFile(t, `
client:
  pollInterval: 2s
`)
	cfg, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8787", cfg.Client.Server)
	assert.Equal(t, 2*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, 60, cfg.Client.MaxAttempts)

	_, err = Load(path)
	assert.ErrorContains(t, err, "analysis.endpoint")
}

func TestLoadClientRejectsBadPolling(t *testing.T) {
	path := writeFile(t, `
client:
  maxAttempts: -1
`)
	_, err := LoadClient(path)
	assert.ErrorContains(t, err, "client.maxAttempts")
}
