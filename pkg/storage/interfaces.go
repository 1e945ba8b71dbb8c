package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
)

// Supported user store drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// UserStore is a credential store with lifecycle hooks
type UserStore interface {
	auth.Store

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Config for storage backends
type Config struct {
	Driver string // "memory", "sqlite", "postgres"

	// SQLite config
	SQLitePath string

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs []string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// File storage for profile images: a local directory or s3://bucket/prefix
	UploadDir string

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
	L1CacheSize  int // Entries
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:           DriverSQLite,
		SQLitePath:       "data/webui.db",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		UploadDir:        "data/uploads",
		S3Region:         "us-east-1",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			"user": 5 * time.Minute,
		},
		L1CacheSize: 1024,
	}
}

// Validate checks the driver specific settings
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for driver %q", c.Driver)
		}
	case DriverPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("postgres url is required for driver %q", c.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}

	if strings.HasPrefix(c.UploadDir, "s3://") && strings.TrimPrefix(c.UploadDir, "s3://") == "" {
		return fmt.Errorf("s3 upload location must name a bucket")
	}

	return nil
}

// TTL returns the cache TTL for kind, falling back to five minutes
func (c Config) TTL(kind string) time.Duration {
	if ttl, ok := c.CacheTTL[kind]; ok && ttl > 0 {
		return ttl
	}
	return 5 * time.Minute
}
