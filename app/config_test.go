package chatroom

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, DevMode, config.Mode)
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, []string{"*"}, config.AllowedOrigins)
	assert.Len(t, config.Auth.Secret, 32)
	assert.Equal(t, 24*time.Hour, config.Auth.TokenTTL)
	assert.Equal(t, SQLiteHistory, config.History.Backend)
	assert.True(t, config.Chat.RequireMembership)
}

func TestLoadConfig_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	secret := base64.StdEncoding.EncodeToString([]byte("file-secret"))
	require.NoError(t, os.WriteFile(file, []byte(`
mode: prod
port: 9000
auth:
  secret: `+secret+`
  tokenTTL: 1h
history:
  backend: badger
  badgerDir: /tmp/history
chat:
  requireMembership: false
`), 0o600))

	config, err := LoadConfig(file)
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, ProdMode, config.Mode)
	assert.Equal(t, 9000, config.Port)
	assert.Equal(t, []byte("file-secret"), []byte(config.Auth.Secret))
	assert.Equal(t, time.Hour, config.Auth.TokenTTL)
	assert.Equal(t, BadgerHistory, config.History.Backend)
	assert.False(t, config.Chat.RequireMembership)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: 9000\n"), 0o600))
	t.Setenv("PORT", "9100")
	t.Setenv("SQLITE_FILE", "/tmp/env.db")

	config, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, 9100, config.Port)
	assert.Equal(t, "/tmp/env.db", config.SQLite.File)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	config := testConfig(t)
	config.Mode = "staging"
	config.History.Backend = BadgerHistory
	config.History.BadgerDir = ""

	err := config.Validate()
	require.Error(t, err)
	msg := FormatValidationErrors(err)
	assert.Contains(t, msg, "mode must be one of")
	assert.Contains(t, msg, "badgerdir is a required field")
}

func TestConfig_LogLevel(t *testing.T) {
	config := testConfig(t)
	config.Log.Level = "debug"
	assert.Equal(t, "DEBUG", config.LogLevel().String())
	config.Log.Level = "nonsense"
	assert.Equal(t, "INFO", config.LogLevel().String())
}
