// Package cache provides a read-through user cache in front of a UserStore.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
	"github.com/Kxd395/AxxessWebUI/pkg/storage"
)

// Cache layer names reported to the recorder
const (
	LayerL1 = "l1"
	LayerL2 = "redis"
)

// Recorder counts cache hits and misses
type Recorder interface {
	RecordCacheHit(layer string)
	RecordCacheMiss(layer string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheHit(string)  {}
func (nopRecorder) RecordCacheMiss(string) {}

// Store caches users by id in an in-process LRU (L1) and optionally Redis (L2).
// Email, API key and credential lookups go to the backing store. Cached users
// carry no password hash or API key, so a key revoked by another instance is
// never served from a stale L1 entry. Every write invalidates both layers;
// last_active_at in cached copies may lag by up to the TTL.
type Store struct {
	storage.UserStore

	l1       *lru.LRU[string, *auth.User]
	l2       *RedisClient
	recorder Recorder
	logger   *observability.Logger
}

// Options configures a cached store
type Options struct {
	Size     int
	TTL      time.Duration
	Redis    *RedisClient // optional
	Recorder Recorder     // optional
	Logger   *observability.Logger
}

// New wraps backend with a cache
func New(backend storage.UserStore, opts Options) *Store {
	size := opts.Size
	if size < 16 {
		size = 16
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Store{
		UserStore: backend,
		l1:        lru.NewLRU[string, *auth.User](size, nil, ttl),
		l2:        opts.Redis,
		recorder:  recorder,
		logger:    logger.WithField("component", "user_cache"),
	}
}

// GetUserByID serves from L1, then L2, then the backing store. The returned
// user has its secrets cleared; use GetCredentials for those.
func (s *Store) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	if u, ok := s.l1.Get(id); ok {
		s.recorder.RecordCacheHit(LayerL1)
		return copyUser(u), nil
	}
	s.recorder.RecordCacheMiss(LayerL1)

	if s.l2 != nil {
		u, err := s.l2.GetUser(ctx, id)
		if err != nil {
			s.logger.WithError(err).Warn("redis user lookup failed")
		}
		if u != nil {
			s.recorder.RecordCacheHit(LayerL2)
			s.l1.Add(id, u)
			return copyUser(u), nil
		}
		s.recorder.RecordCacheMiss(LayerL2)
	}

	u, err := s.UserStore.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.fill(ctx, u)
	return copyUser(u), nil
}

// CreateUser implements auth.Store
func (s *Store) CreateUser(ctx context.Context, u *auth.User, opts auth.CreateOptions) error {
	if err := s.UserStore.CreateUser(ctx, u, opts); err != nil {
		return err
	}
	s.invalidate(ctx, u.ID)
	return nil
}

// UpdateUser implements auth.Store
func (s *Store) UpdateUser(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	s.invalidate(ctx, id)
	u, err := s.UserStore.UpdateUser(ctx, id, upd)
	s.invalidate(ctx, id)
	return u, err
}

// SetAPIKey implements auth.Store
func (s *Store) SetAPIKey(ctx context.Context, id string, key *string) error {
	s.invalidate(ctx, id)
	err := s.UserStore.SetAPIKey(ctx, id, key)
	s.invalidate(ctx, id)
	return err
}

func (s *Store) fill(ctx context.Context, u *auth.User) {
	s.l1.Add(u.ID, copyUser(u))
	if s.l2 != nil {
		if err := s.l2.SetUser(ctx, u); err != nil {
			s.logger.WithError(err).Warn("redis user store failed")
		}
	}
}

func (s *Store) invalidate(ctx context.Context, id string) {
	s.l1.Remove(id)
	if s.l2 != nil {
		if err := s.l2.InvalidateUser(ctx, id); err != nil {
			s.logger.WithError(err).WithField("user_id", id).Warn("redis invalidation failed")
		}
	}
}

func copyUser(u *auth.User) *auth.User {
	return newRecord(u).clone().user()
}

func (r record) clone() record {
	if r.ExtraSSO != nil {
		v := *r.ExtraSSO
		r.ExtraSSO = &v
	}
	if r.LastActiveAt != nil {
		v := *r.LastActiveAt
		r.LastActiveAt = &v
	}
	return r
}
