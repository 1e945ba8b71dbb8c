package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownFunc releases a resource during shutdown
type ShutdownFunc func(context.Context) error

type shutdownHook struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager stops HTTP servers and then runs registered hooks
// in reverse registration order.
type ShutdownManager struct {
	logger  *Logger
	timeout time.Duration

	mu      sync.Mutex
	servers []*http.Server
	hooks   []shutdownHook
	done    bool
}

// NewShutdownManager creates a shutdown manager. A zero timeout means 30s.
func NewShutdownManager(logger *Logger, timeout time.Duration, servers ...*http.Server) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger.WithField("component", "shutdown"),
		timeout: timeout,
		servers: servers,
	}
}

// AddServer adds a server to stop before hooks run
func (sm *ShutdownManager) AddServer(server *http.Server) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.servers = append(sm.servers, server)
}

// Register adds a named hook. Hooks run last-registered first, so
// dependencies registered early are released after their users.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, shutdownHook{name: name, fn: fn})
}

// Wait blocks until SIGINT/SIGTERM or ctx is done, then shuts down
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	sm.logger.Info("shutdown requested")

	return sm.Shutdown(context.WithoutCancel(ctx))
}

// Shutdown stops servers concurrently, then runs hooks in LIFO order.
// It is safe to call more than once; later calls are no-ops.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	if sm.done {
		sm.mu.Unlock()
		return nil
	}
	sm.done = true
	servers := append([]*http.Server(nil), sm.servers...)
	hooks := append([]shutdownHook(nil), sm.hooks...)
	sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	var errs []error

	g, gctx := errgroup.WithContext(ctx)
	for _, server := range servers {
		g.Go(func() error {
			if err := server.Shutdown(gctx); err != nil {
				return fmt.Errorf("server %s shutdown: %w", server.Addr, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		sm.logger.WithError(err).Error("HTTP server shutdown error")
		errs = append(errs, err)
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		if err := runHook(ctx, hook); err != nil {
			sm.logger.WithError(err).WithField("hook", hook.name).Error("shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
			continue
		}
		sm.logger.WithField("hook", hook.name).Debug("shutdown hook complete")
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	sm.logger.Info("shutdown complete")
	return nil
}

func runHook(ctx context.Context, hook shutdownHook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError(r)
		}
	}()
	return hook.fn(ctx)
}
