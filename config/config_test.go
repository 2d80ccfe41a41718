package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, uint(3), cfg.MirrorMaxTries)
	assert.Equal(t, 20*time.Millisecond, cfg.MirrorInitialInterval)
	assert.Equal(t, []string{"*"}, cfg.CORSOriginList())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE", "Postgres")
	t.Setenv("DB_URL", "postgres://u:p@localhost:5432/atelier")
	t.Setenv("MIRROR_MAX_TRIES", "5")
	t.Setenv("MIRROR_INITIAL_INTERVAL", "50ms")
	t.Setenv("MIRROR_MAX_INTERVAL", "1s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, uint(5), cfg.MirrorMaxTries)
	assert.Equal(t, 50*time.Millisecond, cfg.MirrorInitialInterval)
	assert.Equal(t, time.Second, cfg.MirrorMaxInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOriginList())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_port: \"9090\"\nrate_limit_per_minute: 10\n"), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 30, cfg.RateLimitPerMinute, "env wins over file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "postgres without url", mutate: func(c *Config) { c.Store = StorePostgres }, wantErr: "DB_URL"},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "mongo" }, wantErr: "STORE"},
		{name: "prod without jwt", mutate: func(c *Config) {
			c.Env, c.Store, c.DBUrl = "prod", StorePostgres, "postgres://x"
		}, wantErr: "JWT_PUBLIC_KEY_PATH"},
		{name: "zero tries", mutate: func(c *Config) { c.MirrorMaxTries = 0 }, wantErr: "MIRROR_MAX_TRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cfg := defaultConfig()
	assert.NoError(t, cfg.Validate())
}
