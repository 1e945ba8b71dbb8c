package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
	"github.com/Kxd395/AxxessWebUI/pkg/storage"
	"github.com/Kxd395/AxxessWebUI/pkg/storage/sqlstore"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Auth          AuthConfig
	SSO           SSOConfig
	Webhook       WebhookConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	SecretKey string

	// Initial runtime settings; SettingsFile overrides them when present
	EnableSignup    bool
	DefaultUserRole auth.Role
	JWTExpiresIn    string
	SettingsFile    string

	TrustedEmailHeader string
	BcryptCost         int
	// SigninRateLimit is attempts per minute per client IP; 0 disables limiting
	SigninRateLimit int
	SecureCookies   bool
}

// WebhookConfig holds the signup webhook settings
type WebhookConfig struct {
	URL            string
	Secret         string
	RequestTimeout time.Duration
	MaxAttempts    int
	RatePerMinute  int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
	// StatsInterval is a cron spec for refreshing gauges such as users_total
	StatsInterval string

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	logLevel, err := observability.ParseLogLevel(getEnv("WEBUI_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		SSO:           loadSSOConfig(),
		Webhook:       loadWebhookConfig(),
		Observability: loadObservabilityConfig(logLevel),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("WEBUI_HOST", "0.0.0.0"),
		Port:            getEnv("WEBUI_PORT", "8080"),
		ReadTimeout:     getEnvDuration("WEBUI_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WEBUI_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("WEBUI_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("WEBUI_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("WEBUI_MAX_BODY_BYTES", 5<<20),
		HealthPort:      getEnv("WEBUI_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.Driver = getEnv("WEBUI_STORAGE_DRIVER", cfg.Driver)
	cfg.SQLitePath = getEnv("WEBUI_SQLITE_PATH", cfg.SQLitePath)

	// PostgreSQL config
	cfg.PostgresURL = getEnv("WEBUI_POSTGRES_URL", cfg.PostgresURL)
	if replicaURLs := getEnv("WEBUI_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = sqlstore.ParseReplicaURLs(replicaURLs)
	}
	if maxConns := getEnvInt("WEBUI_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("WEBUI_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	cfg.PostgresTimeout = getEnvDuration("WEBUI_POSTGRES_TIMEOUT", cfg.PostgresTimeout)

	// Profile image storage
	cfg.UploadDir = getEnv("WEBUI_UPLOAD_DIR", cfg.UploadDir)
	cfg.S3Endpoint = getEnv("WEBUI_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("WEBUI_S3_REGION", cfg.S3Region)
	cfg.S3AccessKey = getEnv("WEBUI_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("WEBUI_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("WEBUI_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	// Redis config
	cfg.RedisURL = getEnv("WEBUI_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("WEBUI_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("WEBUI_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("WEBUI_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("WEBUI_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	cfg.CacheEnabled = getEnvBool("WEBUI_CACHE_ENABLED", cfg.CacheEnabled)
	if l1CacheSize := getEnvInt("WEBUI_L1_CACHE_SIZE", 0); l1CacheSize > 0 {
		cfg.L1CacheSize = l1CacheSize
	}
	if ttl := getEnvDuration("WEBUI_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL["user"] = ttl
	}

	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		SecretKey:          getEnv("WEBUI_SECRET_KEY", ""),
		EnableSignup:       getEnvBool("WEBUI_ENABLE_SIGNUP", true),
		DefaultUserRole:    auth.Role(strings.ToLower(getEnv("WEBUI_DEFAULT_USER_ROLE", string(auth.RolePending)))),
		JWTExpiresIn:       getEnv("WEBUI_JWT_EXPIRES_IN", auth.NoExpiry),
		SettingsFile:       getEnv("WEBUI_SETTINGS_FILE", ""),
		TrustedEmailHeader: getEnv("WEBUI_AUTH_TRUSTED_EMAIL_HEADER", ""),
		BcryptCost:         getEnvInt("WEBUI_BCRYPT_COST", 0),
		SigninRateLimit:    getEnvInt("WEBUI_SIGNIN_RATE_LIMIT", 10),
		SecureCookies:      getEnvBool("WEBUI_SECURE_COOKIES", false),
	}
}

func loadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		URL:            getEnv("WEBUI_WEBHOOK_URL", ""),
		Secret:         getEnv("WEBUI_WEBHOOK_SECRET", ""),
		RequestTimeout: getEnvDuration("WEBUI_WEBHOOK_TIMEOUT", 10*time.Second),
		MaxAttempts:    getEnvInt("WEBUI_WEBHOOK_MAX_ATTEMPTS", 3),
		RatePerMinute:  getEnvInt("WEBUI_WEBHOOK_RATE_PER_MINUTE", 0),
	}
}

func loadObservabilityConfig(level observability.LogLevel) ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           level,
		MetricsEnabled:     getEnvBool("WEBUI_METRICS_ENABLED", true),
		StatsInterval:      getEnv("WEBUI_STATS_INTERVAL", "@every 1m"),
		OTelEnabled:        getEnvBool("WEBUI_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("WEBUI_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("WEBUI_OTEL_SERVICE_NAME", observability.DefaultServiceName),
		OTelServiceVersion: getEnv("WEBUI_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("WEBUI_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("WEBUI_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if c.Auth.SecretKey == "" {
		return fmt.Errorf("WEBUI_SECRET_KEY is required")
	}
	if !c.Auth.DefaultUserRole.Valid() {
		return fmt.Errorf("invalid default user role %q (must be pending, user, or admin)", c.Auth.DefaultUserRole)
	}
	if !auth.ValidDuration(c.Auth.JWTExpiresIn) {
		return fmt.Errorf("invalid JWT expiry %q", c.Auth.JWTExpiresIn)
	}

	if c.SSO.Enabled() {
		if err := c.SSO.Validate(); err != nil {
			return fmt.Errorf("invalid SSO configuration: %w", err)
		}
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}

	return nil
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health/metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
