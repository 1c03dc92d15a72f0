package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/readzone/identity-core/internal/infra/config"
	"github.com/readzone/identity-core/internal/transport/http/handlers"
	"github.com/readzone/identity-core/internal/transport/http/middleware"
	"github.com/readzone/identity-core/internal/usecase"
)

// ServiceSet bundles the application services consumed by the handlers.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Sessions     *usecase.SessionService
	MFA          *usecase.MFAService
	Verification *usecase.VerificationService
	Admin        *usecase.AdminService
	Limiter      *usecase.Limiter
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Gatherer prometheus.Gatherer
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Logger(deps.Logger))

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	api.Use(middleware.OptionalAuth(deps.Services.Auth))
	if deps.Services.Limiter != nil {
		api.Use(middleware.RequestRateLimit(deps.Services.Limiter))
	}
	{
		handlers.NewAuthHandler(deps.Services.Auth).RegisterRoutes(api.Group("/auth"))
		handlers.NewSessionHandler(deps.Services.Auth, deps.Services.Sessions).RegisterRoutes(api.Group("/sessions"))
		handlers.NewMFAHandler(deps.Services.Auth, deps.Services.MFA).RegisterRoutes(api.Group("/mfa"))
		handlers.NewVerificationHandler(deps.Services.Auth, deps.Services.Verification).RegisterRoutes(api.Group("/verification"))
		handlers.NewAdminHandler(deps.Services.Auth, deps.Services.Admin).RegisterRoutes(api.Group("/admin"))
	}

	return r
}
