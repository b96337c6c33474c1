package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("NOWPAYMENTS_API_KEY", "key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.Session.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "localhost:6379", cfg.Session.RedisAddr())
	assert.Equal(t, BackendMemory, cfg.Binding.Backend)
	assert.Equal(t, 15*time.Second, cfg.Payments.Timeout)
	assert.Equal(t, "https://api.nowpayments.io", cfg.Payments.BaseURL)
	assert.Equal(t, 4, cfg.Workers.Workers)
	assert.Equal(t, 16, cfg.Workers.InvoiceConcurrency)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Empty(t, cfg.PaymentCallbackURL())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("BINDING_BACKEND", "postgres")
	t.Setenv("PAYMENTS_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("PUBLIC_URL", "https://bot.example/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Session.Backend)
	assert.Equal(t, BackendPostgres, cfg.Binding.Backend)
	assert.Equal(t, 3*time.Second, cfg.Payments.Timeout)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "https://bot.example/nowpayments", cfg.PaymentCallbackURL())
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"missing token":   {"BOT_TOKEN": ""},
		"missing api key": {"NOWPAYMENTS_API_KEY": ""},
		"bad backend":     {"SESSION_BACKEND": "etcd"},
		"bad duration":    {"SESSION_TTL": "soon"},
		"bad public url":  {"PUBLIC_URL": "not a url"},
		"zero workers":    {"WORKERS": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.env")
	require.NoError(t, os.WriteFile(path, []byte("BOT_TOKEN=from-file\nNOWPAYMENTS_API_KEY=file-key\nPORT=9090\n"), 0o600))

	t.Setenv("BOT_TOKEN", "")
	os.Unsetenv("BOT_TOKEN")
	t.Setenv("NOWPAYMENTS_API_KEY", "env-key")
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")

	cfg, err := Load(filepath.Join(dir, "missing.env"), path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.BotToken)
	assert.Equal(t, "env-key", cfg.Payments.APIKey)
	assert.Equal(t, "9090", cfg.Port)
}
