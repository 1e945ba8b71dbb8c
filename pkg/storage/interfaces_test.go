package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig tests the DefaultConfig function
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "data/webui.db", cfg.SQLitePath)
	assert.Equal(t, 20, cfg.PostgresMaxConns)
	assert.Equal(t, 2, cfg.PostgresMinConns)
	assert.Equal(t, 10*time.Second, cfg.PostgresTimeout)
	assert.Equal(t, 3, cfg.RedisMaxRetries)
	assert.Equal(t, 10, cfg.RedisPoolSize)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 1024, cfg.L1CacheSize)

	require.NotNil(t, cfg.CacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL["user"])
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"memory", func(c *Config) { c.Driver = DriverMemory }, false},
		{"sqlite without path", func(c *Config) { c.SQLitePath = "" }, true},
		{"postgres without url", func(c *Config) { c.Driver = DriverPostgres }, true},
		{"postgres with url", func(c *Config) {
			c.Driver = DriverPostgres
			c.PostgresURL = "postgres://localhost/webui"
		}, false},
		{"unknown driver", func(c *Config) { c.Driver = "filesystem" }, true},
		{"s3 without bucket", func(c *Config) { c.UploadDir = "s3://" }, true},
		{"s3 with bucket", func(c *Config) { c.UploadDir = "s3://avatars/profile" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_TTL(t *testing.T) {
	cfg := Config{CacheTTL: map[string]time.Duration{"user": time.Minute, "zero": 0}}

	assert.Equal(t, time.Minute, cfg.TTL("user"))
	assert.Equal(t, 5*time.Minute, cfg.TTL("zero"))
	assert.Equal(t, 5*time.Minute, cfg.TTL("missing"))
}
