package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/httputil"
	"github.com/Kxd395/AxxessWebUI/pkg/middleware"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
	"github.com/Kxd395/AxxessWebUI/pkg/storage/files"
)

// AuthPrefix is where the auth routes are mounted
const AuthPrefix = "/api/v1/auths"

// ServerConfig wires the collaborators of a Server
type ServerConfig struct {
	Service *auth.Service
	Logger  *observability.Logger

	// Optional collaborators
	Metrics       *observability.Metrics
	Files         files.Storage
	SigninLimiter middleware.Limiter
	// SSO registers the federated sign-in routes under AuthPrefix
	SSO RouteRegistrar

	MaxBodyBytes   int64
	MaxImageBytes  int64
	TracingEnabled bool
	ServiceName    string
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	auth    *AuthHandlers
	images  *ImageHandlers
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = observability.DefaultServiceName
	}

	s := &Server{router: mux.NewRouter()}

	if cfg.Files != nil {
		s.images = NewImageHandlers(cfg.Files, cfg.MaxImageBytes)
	}

	var signinLimit *middleware.RateLimitMiddleware
	if cfg.SigninLimiter != nil {
		var recorder middleware.RateLimitRecorder
		if cfg.Metrics != nil {
			recorder = cfg.Metrics
		}
		signinLimit = middleware.NewRateLimitMiddleware("signin", cfg.SigninLimiter, recorder, cfg.Logger)
	}

	s.auth = NewAuthHandlers(
		cfg.Service,
		auth.NewAuditLogger(cfg.Logger),
		middleware.NewAuthMiddleware(cfg.Service, false, cfg.Logger),
		signinLimit,
		s.images,
	)

	s.setupRoutes(cfg)

	s.handler = s.router
	if cfg.TracingEnabled {
		s.handler = otelhttp.NewHandler(s.router, cfg.ServiceName)
	}
	return s, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(cfg ServerConfig) {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.RecoveryMiddleware(cfg.Logger))
	s.router.Use(httputil.LoggingMiddleware(cfg.Logger))
	if cfg.MaxBodyBytes > 0 {
		s.router.Use(httputil.MaxBytesMiddleware(max(cfg.MaxBodyBytes, s.uploadLimit())))
	}
	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}

	authRouter := s.router.PathPrefix(AuthPrefix).Subrouter()
	s.auth.RegisterRoutes(authRouter)
	if cfg.SSO != nil {
		cfg.SSO.RegisterRoutes(authRouter)
	}

	if s.images != nil {
		s.images.RegisterRoutes(s.router)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, auth.MsgUserNotFound)
	})
}

func (s *Server) uploadLimit() int64 {
	if s.images == nil {
		return 0
	}
	// Multipart framing needs headroom over the image itself
	return s.images.maxBytes + 1<<20
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional registrations
func (s *Server) Router() *mux.Router {
	return s.router
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// NewOpsRouter serves the health and metrics endpoints. It is meant for a
// separate listener that is not exposed publicly.
func NewOpsRouter(checker *observability.HealthChecker, registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	if checker != nil {
		observability.RegisterHealthRoutes(router, checker)
	}
	if registry != nil {
		observability.RegisterMetricsEndpoint(router, registry)
	}
	return router
}
