package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "kbassist", cfg.App.Name)
	assert.Equal(t, 60*time.Second, cfg.Client.PollInterval())
	assert.Equal(t, 120*time.Second, cfg.Client.UploadTimeout())
	assert.Equal(t, 6, cfg.RAG.HistoryTurns)
	assert.Equal(t, "local", cfg.Storage.Type)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[app]
port = 9090

[mysql]
user = "kb"
db = "kb_test"

[client]
base_url = "http://kb.local/api/"
poll_interval_seconds = 15
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MYSQL_PASSWORD", "secret")
	t.Setenv("KBASSIST_AUTH_SCHEME", "Token")
	t.Setenv("CHAT_HISTORY_TURNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTPAddr())
	assert.Equal(t, "kb:secret@tcp(127.0.0.1:3306)/kb_test?parseTime=true&loc=Local&charset=utf8mb4", cfg.MySQLDSN())
	assert.Equal(t, "http://kb.local/api/", cfg.Client.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Client.PollInterval())
	assert.Equal(t, "Token", cfg.Client.AuthScheme)
	assert.Equal(t, 6, cfg.RAG.HistoryTurns, "unparsable env value keeps the previous value")
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[app\nport = "), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode config file failed")
}
