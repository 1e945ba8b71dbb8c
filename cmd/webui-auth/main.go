package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Kxd395/AxxessWebUI/pkg/api"
	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/config"
	"github.com/Kxd395/AxxessWebUI/pkg/middleware"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
	"github.com/Kxd395/AxxessWebUI/pkg/sso"
	"github.com/Kxd395/AxxessWebUI/pkg/storage"
	"github.com/Kxd395/AxxessWebUI/pkg/storage/cache"
	"github.com/Kxd395/AxxessWebUI/pkg/storage/files"
	"github.com/Kxd395/AxxessWebUI/pkg/storage/memory"
	"github.com/Kxd395/AxxessWebUI/pkg/storage/sqlstore"
	"github.com/Kxd395/AxxessWebUI/pkg/webhooks"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "webui-auth: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) (err error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewServiceLogger(cfg.Observability.LogLevel, os.Stdout, cfg.Observability.OTelServiceName, version)
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	defer func() {
		// Release whatever was opened before a startup failure
		if err != nil {
			_ = shutdown.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	// Hooks run in reverse registration order, so telemetry is flushed last
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)
	if providers != nil && providers.MeterProvider != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			return fmt.Errorf("failed to create OpenTelemetry instruments: %w", err)
		}
		metrics.WithOTel(otelMetrics)
	}

	health := observability.NewHealthChecker(version)

	backend, conns, err := openUserStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	shutdown.Register("user store", func(context.Context) error {
		return backend.Close()
	})
	health.Register("database", true, backend.HealthCheck)

	var redisClient *cache.RedisClient
	if cfg.Storage.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(cfg.Storage)
		if err != nil {
			return err
		}
		shutdown.Register("redis", func(context.Context) error {
			return redisClient.Close()
		})
		health.Register("redis", false, observability.RedisCheck(redisClient.GetClient()))
	}

	userStore := storage.UserStore(backend)
	if cfg.Storage.CacheEnabled {
		userStore = cache.New(backend, cache.Options{
			Size:     cfg.Storage.L1CacheSize,
			TTL:      cfg.Storage.TTL("user"),
			Redis:    redisClient,
			Recorder: metrics,
			Logger:   logger,
		})
	}

	fileStore, err := files.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize file storage: %w", err)
	}
	health.Register("files", false, fileStore.HealthCheck)

	notifier := webhooks.NewNotifier(webhookConfig(cfg.Webhook), logger, metrics)
	shutdown.Register("webhooks", notifier.Wait)

	settings := auth.NewSettings(auth.SettingsSnapshot{
		EnableSignup:    cfg.Auth.EnableSignup,
		DefaultUserRole: cfg.Auth.DefaultUserRole,
		JWTExpiresIn:    cfg.Auth.JWTExpiresIn,
	})
	var runtimeStore *config.RuntimeStore
	if cfg.Auth.SettingsFile != "" {
		runtimeStore = config.NewRuntimeStore(cfg.Auth.SettingsFile, settings, logger)
		if err := runtimeStore.Load(); err != nil {
			return err
		}
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.SecretKey)
	if err != nil {
		return err
	}

	service, err := auth.NewService(auth.ServiceConfig{
		Store:              userStore,
		Issuer:             issuer,
		Settings:           settings,
		Hasher:             auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Notifier:           notifier,
		Recorder:           metrics,
		Logger:             logger,
		TrustedEmailHeader: cfg.Auth.TrustedEmailHeader,
	})
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	var ssoRoutes api.RouteRegistrar
	if cfg.SSO.Enabled() {
		handlers, err := newSSOHandlers(ctx, cfg, service, metrics, logger)
		if err != nil {
			return err
		}
		ssoRoutes = handlers
	}

	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	server, err := api.NewServer(api.ServerConfig{
		Service:        service,
		Logger:         logger,
		Metrics:        metrics,
		Files:          fileStore,
		SigninLimiter:  newSigninLimiter(serverCtx, cfg.Auth.SigninRateLimit, redisClient),
		SSO:            ssoRoutes,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		TracingEnabled: providers != nil,
		ServiceName:    cfg.Observability.OTelServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	stats, err := startStatsRefresher(cfg.Observability.StatsInterval, service, metrics, conns, redisClient, logger)
	if err != nil {
		return err
	}
	shutdown.Register("stats refresher", func(ctx context.Context) error {
		select {
		case <-stats.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if runtimeStore != nil {
		if err := runtimeStore.Watch(serverCtx); err != nil {
			return err
		}
	}

	var registryForOps *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		registryForOps = registry
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	opsServer := &http.Server{
		Addr:         cfg.Server.HealthAddr(),
		Handler:      api.NewOpsRouter(health, registryForOps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	shutdown.AddServer(apiServer)
	shutdown.AddServer(opsServer)

	g, gctx := errgroup.WithContext(serverCtx)
	g.Go(func() error {
		return listen(apiServer, "api", logger)
	})
	g.Go(func() error {
		return listen(opsServer, "ops", logger)
	})
	g.Go(func() error {
		defer cancel()
		return shutdown.Wait(gctx)
	})

	return g.Wait()
}

func listen(server *http.Server, name string, logger *observability.Logger) error {
	logger.WithFields(map[string]interface{}{
		"server": name,
		"addr":   server.Addr,
	}).Info("server listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server failed: %w", name, err)
	}
	return nil
}

// openUserStore opens the configured backend. conns is nil for the memory driver.
func openUserStore(ctx context.Context, cfg storage.Config, logger *observability.Logger) (storage.UserStore, *sqlstore.ConnectionManager, error) {
	if cfg.Driver == storage.DriverMemory {
		logger.Warn("using in-memory user store; accounts are lost on restart")
		return memory.New(), nil, nil
	}

	connCfg := sqlstore.ConnectionConfig{
		Driver:      cfg.Driver,
		PrimaryURL:  cfg.PostgresURL,
		ReplicaURLs: cfg.PostgresReplicaURLs,
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
	}
	if cfg.Driver == storage.DriverSQLite {
		connCfg.PrimaryURL = cfg.SQLitePath
		connCfg.ReplicaURLs = nil
		if dir := filepath.Dir(cfg.SQLitePath); !strings.HasPrefix(cfg.SQLitePath, ":memory:") && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
	}

	conns, err := sqlstore.NewConnectionManager(connCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	store := sqlstore.New(conns)
	if err := store.Migrate(ctx); err != nil {
		conns.Close()
		return nil, nil, err
	}
	return store, conns, nil
}

func webhookConfig(cfg config.WebhookConfig) webhooks.Config {
	retry := webhooks.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	return webhooks.Config{
		URL:            cfg.URL,
		Secret:         cfg.Secret,
		RequestTimeout: cfg.RequestTimeout,
		Retry:          retry,
		RatePerMinute:  cfg.RatePerMinute,
		Branding: webhooks.Branding{
			AppName:    "WebUI",
			AppVersion: version,
		},
	}
}

func newSSOHandlers(ctx context.Context, cfg *config.Config, service *auth.Service, metrics *observability.Metrics, logger *observability.Logger) (*sso.Handlers, error) {
	providerCfg, err := cfg.SSO.ProviderConfig()
	if err != nil {
		return nil, err
	}

	provider, err := sso.NewProvider(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sso provider: %w", err)
	}

	bridge := sso.NewBridge(sso.NewClientPool(provider, cfg.SSO.MaxConcurrent), service, sso.BridgeConfig{
		LogoutRedirectURL: cfg.SSO.LogoutRedirectURL,
		Logger:            logger,
		Recorder:          metrics,
	})

	logger.WithField("provider", string(cfg.SSO.Provider)).Info("sso enabled")
	return sso.NewHandlers(bridge, sso.HandlerOptions{SecureCookies: cfg.Auth.SecureCookies}), nil
}

// newSigninLimiter shares counters through Redis when available
func newSigninLimiter(ctx context.Context, perMinute int, redisClient *cache.RedisClient) middleware.Limiter {
	if perMinute <= 0 {
		return nil
	}

	limitCfg := middleware.SigninRateLimitConfig(perMinute)
	if redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient.GetClient(), limitCfg, "webui:ratelimit:signin")
	}

	limiter := middleware.NewRateLimiter(limitCfg)
	limiter.StartCleanup(ctx)
	return limiter
}

func startStatsRefresher(spec string, service *auth.Service, metrics *observability.Metrics, conns *sqlstore.ConnectionManager, redisClient *cache.RedisClient, logger *observability.Logger) (*cron.Cron, error) {
	refresh := func() {
		ctx := context.Background()

		count, err := service.UserCount(ctx)
		if err != nil {
			logger.WithError(err).Warn("failed to count users")
		} else {
			metrics.SetUsersTotal(count)
		}

		if conns != nil {
			metrics.UpdateDBStats(conns.Stats())
		}
		if redisClient != nil {
			if stats := redisClient.GetPoolStats(); stats != nil {
				metrics.UpdateRedisPoolStats(stats.TotalConns, stats.IdleConns)
			}
		}
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, refresh); err != nil {
		return nil, fmt.Errorf("invalid stats interval %q: %w", spec, err)
	}

	refresh()
	c.Start()
	return c, nil
}
