package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8088
  shutdown_timeout: 3s
logging:
  level: debug
  format: console
llm:
  provider: anthropic
  api_key: sk-ant-yaml
  timeout: 20s
memory:
  backend: chromem
  chromem_path: /var/lib/assistant/vectors
cache:
  backend: redis
  ttl: 15m
scheduler:
  interval: 1m
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-ant-yaml", cfg.LLM.APIKey.Value())
	assert.Equal(t, 20*time.Second, cfg.LLM.Timeout.Duration())
	assert.Equal(t, "chromem", cfg.Memory.Backend)
	assert.Equal(t, "/var/lib/assistant/vectors", cfg.Memory.ChromemPath)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL.Duration())
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8088\nllm:\n  api_key: from-file\n", 0600)

	t.Setenv("ASSISTANT_SERVER_PORT", "7070")
	t.Setenv("ASSISTANT_LLM_API_KEY", "from-env")
	t.Setenv("ASSISTANT_CACHE_REDIS_ADDR", "redis:6380")
	t.Setenv("ASSISTANT_NATS_ENABLED", "true")
	t.Setenv("ASSISTANT_SECRETS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.LLM.APIKey.Value())
	assert.Equal(t, "redis:6380", cfg.Cache.RedisAddr)
	assert.True(t, cfg.NATS.Enabled)
	assert.False(t, cfg.Secrets.Enabled)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	path := writeConfig(t, "server:\n  port: 8088\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_ReadOnlyFileAccepted(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	path := writeConfig(t, "server:\n  port: 8089\n", 0400)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8089, cfg.Server.Port)
}

func TestLoad_RejectsLargeFile(t *testing.T) {
	big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfig(t, big, 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, "memory:\n  backend: pinecone\n", 0600)

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"ASSISTANT_LLM_API_KEY":           "llm.api_key",
		"ASSISTANT_SERVER_PORT":           "server.port",
		"ASSISTANT_MEMORY_QDRANT_API_KEY": "memory.qdrant_api_key",
		"ASSISTANT_DEBUG":                 "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
