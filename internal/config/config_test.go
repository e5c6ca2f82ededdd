package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, int64(512), cfg.MaxMessageSize)
	assert.Equal(t, "messages.db", cfg.StorePath)

	grace, err := cfg.ShutdownGrace()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, grace)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
host: 127.0.0.1
port: 9001
allowed_origins:
  - "*"
history_limit: 50
shutdown_timeout: 3s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", cfg.Addr())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 50, cfg.HistoryLimit)

	grace, err := cfg.ShutdownGrace()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, grace)
}

func TestLoadJSONFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"host": "localhost", "port": 9002, "log_level": "debug"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9002", cfg.Addr())
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, int64(512), cfg.MaxMessageSize)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "config.yaml", "prot: 9000\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "port: 9001\n")
	t.Setenv("RELAY_PORT", "9500")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9500, cfg.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
}

func TestLoadValidation(t *testing.T) {
	for name, content := range map[string]string{
		"port out of range":    "port: 70000\n",
		"negative message cap": "max_message_size: -1\n",
		"negative history":     "history_limit: -5\n",
		"bad shutdown timeout": "shutdown_timeout: soon\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "config.yaml", content)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
