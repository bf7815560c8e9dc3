package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskmanager/internal/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CONFIG", "ADDR", "PORT", "STORAGE", "DB_STR", "MIGRATE_PATH", "SQLITE_PATH",
		"JWT_SECRET", "TOKEN_TTL", "REDIS_ADDR", "LOGIN_RATE_LIMIT", "ADMIN_EMAIL", "ADMIN_PASSWORD",
		"DB_USER", "DB_PASSWORD", "DB_NAME", "DB_HOST", "DB_PORT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestReadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := ReadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestReadConfigLayering(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"addr": "127.0.0.1",
		"port": 9000,
		"storage": "sqlite",
		"sqlitePath": "/tmp/from-file.db",
		"tokenTTL": "2h"
	}`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("ADMIN_EMAIL", "admin@example.com")

	cfg, err := ReadConfig([]string{"-c", path, "-sqlite", "/tmp/from-flag.db"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Addr)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, "/tmp/from-flag.db", cfg.SQLitePath)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "admin@example.com", cfg.AdminEmail)
	assert.Equal(t, defaultCookieName, cfg.CookieName)
}

func TestReadConfigEnv(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "invalid port ignored",
			env:  map[string]string{"PORT": "abc"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, defaultPort, cfg.Port)
			},
		},
		{
			name: "out of range port ignored",
			env:  map[string]string{"PORT": "70000"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, defaultPort, cfg.Port)
			},
		},
		{
			name: "db parts assemble dsn",
			env:  map[string]string{"DB_USER": "u", "DB_PASSWORD": "p", "DB_NAME": "n", "DB_HOST": "h", "DB_PORT": "5433"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgresql://u:p@h:5433/n?sslmode=disable", cfg.DBStr)
			},
		},
		{
			name: "token ttl and redis",
			env:  map[string]string{"TOKEN_TTL": "30m", "REDIS_ADDR": "redis:6379", "LOGIN_RATE_LIMIT": "3"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
				assert.Equal(t, "redis:6379", cfg.RedisAddr)
				assert.Equal(t, 3, cfg.LoginRateLimit)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := ReadConfig(nil)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestReadConfigErrors(t *testing.T) {
	clearConfigEnv(t)

	_, err := ReadConfig([]string{"-storage", "mongo"})
	assert.ErrorIs(t, err, errors.ErrConfigInvalidFormat)

	_, err = ReadConfig([]string{"-no-such-flag"})
	assert.Error(t, err)

	cfg, err := ReadConfig([]string{"-c", "/nonexistent/config.json"})
	require.NoError(t, err)
	assert.Equal(t, defaultPort, cfg.Port)
}
