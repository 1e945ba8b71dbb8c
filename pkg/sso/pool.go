package sso

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent bounds simultaneous callback exchanges per provider
const DefaultMaxConcurrent = 16

// ClientPool hands out scoped access to a provider. Each callback holds one
// slot for the duration of its token exchange and releases it when done,
// whether the exchange succeeded or not.
type ClientPool struct {
	provider Provider
	sem      *semaphore.Weighted
	size     int64

	mu    sync.Mutex
	inUse int64
}

// NewClientPool creates a pool of maxConcurrent slots over provider
func NewClientPool(provider Provider, maxConcurrent int64) *ClientPool {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &ClientPool{
		provider: provider,
		sem:      semaphore.NewWeighted(maxConcurrent),
		size:     maxConcurrent,
	}
}

// Provider returns the pooled provider
func (p *ClientPool) Provider() Provider {
	return p.provider
}

// Size returns the number of slots
func (p *ClientPool) Size() int64 {
	return p.size
}

// InUse returns the number of held slots
func (p *ClientPool) InUse() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Acquire waits for a free slot. The handle must be released.
func (p *ClientPool) Acquire(ctx context.Context) (*ProviderHandle, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire sso client: %w", err)
	}

	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()

	return &ProviderHandle{pool: p}, nil
}

func (p *ClientPool) release() {
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
	p.sem.Release(1)
}

// ProviderHandle is a slot in a ClientPool
type ProviderHandle struct {
	pool *ClientPool
	once sync.Once
}

// Exchange completes the callback on the pooled provider
func (h *ProviderHandle) Exchange(ctx context.Context, r *http.Request) (*Identity, error) {
	return h.pool.provider.Exchange(ctx, r)
}

// Release returns the slot. Calling it more than once is a no-op.
func (h *ProviderHandle) Release() {
	h.once.Do(h.pool.release)
}
