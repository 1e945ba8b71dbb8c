package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/storage"
)

// RedisClient handles the shared (L2) user cache
type RedisClient struct {
	client *redis.Client
	config storage.Config
}

// NewRedisClient creates a new Redis client and verifies connectivity
func NewRedisClient(config storage.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{
		client: client,
		config: config,
	}, nil
}

func userKey(id string) string {
	return fmt.Sprintf("webui:user:%s", id)
}

// GetUser retrieves a user from cache. A miss returns (nil, nil).
func (c *RedisClient) GetUser(ctx context.Context, id string) (*auth.User, error) {
	key := userKey(id)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		// If unmarshal fails, delete corrupt data
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return rec.user(), nil
}

// SetUser stores a user in cache
func (c *RedisClient) SetUser(ctx context.Context, u *auth.User) error {
	data, err := json.Marshal(newRecord(u))
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	return c.client.Set(ctx, userKey(u.ID), data, c.config.TTL("user")).Err()
}

// InvalidateUser removes a user from cache
func (c *RedisClient) InvalidateUser(ctx context.Context, id string) error {
	return c.client.Del(ctx, userKey(id)).Err()
}

// Ping checks Redis connectivity
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetClient returns the underlying Redis client for health checks and rate limiting
func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

// GetPoolStats returns connection pool statistics
func (c *RedisClient) GetPoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// record is the cached form of a user. It leaves out the password hash and
// API key, which are only read through auth.Store.GetCredentials.
type record struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Role            auth.Role  `json:"role"`
	ProfileImageURL string     `json:"profile_image_url"`
	ExtraSSO        *string    `json:"extra_sso,omitempty"`
	LastActiveAt    *time.Time `json:"last_active_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func newRecord(u *auth.User) record {
	return record{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Role:            u.Role,
		ProfileImageURL: u.ProfileImageURL,
		ExtraSSO:        u.ExtraSSO,
		LastActiveAt:    u.LastActiveAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func (r record) user() *auth.User {
	return &auth.User{
		ID:              r.ID,
		Email:           r.Email,
		Name:            r.Name,
		Role:            r.Role,
		ProfileImageURL: r.ProfileImageURL,
		ExtraSSO:        r.ExtraSSO,
		LastActiveAt:    r.LastActiveAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
