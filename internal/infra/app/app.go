package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/readzone/identity-core/internal/core/port"
	"github.com/readzone/identity-core/internal/infra/config"
	"github.com/readzone/identity-core/internal/infra/database"
	"github.com/readzone/identity-core/internal/infra/email"
	kafkainfra "github.com/readzone/identity-core/internal/infra/kafka"
	"github.com/readzone/identity-core/internal/infra/logger"
	redisinfra "github.com/readzone/identity-core/internal/infra/redis"
	"github.com/readzone/identity-core/internal/infra/security"
	"github.com/readzone/identity-core/internal/infra/telemetry"
	postgresrepo "github.com/readzone/identity-core/internal/repository/postgres"
	redisrepo "github.com/readzone/identity-core/internal/repository/redis"
	"github.com/readzone/identity-core/internal/transport/http/routes"
	"github.com/readzone/identity-core/internal/usecase"
)

// Application owns the process-level resources and the HTTP server.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

// New wires every layer together: infrastructure clients, repositories,
// services, and the HTTP engine. Kafka degrades to a logging stub when no
// brokers are configured so the core keeps working without the event bus.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	tokens, err := security.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	hasher := security.NewPasswordHasher(cfg.Bcrypt.Cost)
	validator := security.DefaultPasswordValidator()
	totp := security.NewTOTPManager(security.TOTPConfig{
		Issuer: cfg.MFA.Issuer,
		Digits: cfg.MFA.TOTPDigits,
		Period: cfg.MFA.TOTPPeriodSec,
		Skew:   cfg.MFA.TOTPSkew,
	})

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	repos := postgresrepo.NewRepositories(pool)
	rateLimitStore := redisrepo.NewRateLimitStore(redisClient.Client(), cfg.Redis.RateLimitPrefix)

	var events port.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			events = kafkainfra.NewStubPublisher(log)
		} else {
			events = kafkainfra.NewEventPublisher(producer, cfg.App, cfg.Kafka.TopicPrefix, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		events = kafkainfra.NewStubPublisher(log)
	}

	sender := email.NewLoggingSender(log)

	limiter := usecase.NewLimiter(rateLimitStore, cfg.RateLimit, metrics, log)
	audit := usecase.NewAuditRecorder(repos.Audit, metrics, log)
	sessionSvc := usecase.NewSessionService(repos.Sessions, events, cfg.Session, metrics, log)
	mfaSvc := usecase.NewMFAService(repos.Users, repos.MFA, hasher, totp, audit, cfg.MFA, metrics, log)
	authSvc := usecase.NewAuthService(cfg, repos.Users, sessionSvc, mfaSvc, limiter, hasher, tokens, validator, audit, events, metrics, log)
	verificationSvc := usecase.NewVerificationService(repos.Users, sessionSvc, limiter, hasher, tokens, validator, sender, audit, cfg.JWT, log)
	adminSvc := usecase.NewAdminService(repos.Users, sessionSvc, repos.MFA, repos.Audit, audit, events, log)

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Gatherer: registry,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Auth:         authSvc,
			Sessions:     sessionSvc,
			MFA:          mfaSvc,
			Verification: verificationSvc,
			Admin:        adminSvc,
			Limiter:      limiter,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
	defer func() {
		_ = a.redis.Close()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		a.logger.Info("server stopped")
		return nil
	case err := <-serverErrCh:
		return err
	}
}
