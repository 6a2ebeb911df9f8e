package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/medqr/emergency-api/config"
	"github.com/medqr/emergency-api/internal/email"
	"github.com/medqr/emergency-api/internal/handler"
	authHandler "github.com/medqr/emergency-api/internal/handler/auth"
	medicalHandler "github.com/medqr/emergency-api/internal/handler/medical"
	staffAccessHandler "github.com/medqr/emergency-api/internal/handler/staffaccess"
	"github.com/medqr/emergency-api/internal/middleware"
	"github.com/medqr/emergency-api/internal/repository/postgres"
	"github.com/medqr/emergency-api/internal/router"
	authService "github.com/medqr/emergency-api/internal/service/auth"
	medicalService "github.com/medqr/emergency-api/internal/service/medical"
	staffAccessService "github.com/medqr/emergency-api/internal/service/staffaccess"
	pkgauth "github.com/medqr/emergency-api/pkg/auth"
	"github.com/medqr/emergency-api/pkg/cache"
	"github.com/medqr/emergency-api/pkg/logger"
	"github.com/medqr/emergency-api/pkg/metrics"
	"github.com/medqr/emergency-api/pkg/security"
)

func main() {
	// Load configuration. Validation fails fast on missing secrets.
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := newLogger(cfg.Logging)

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	grantRepo := postgres.NewStaffAccessRepository(db)
	recordRepo := postgres.NewMedicalRecordRepository(db)

	// Initialize the grant cache. The cache is best-effort: a dead
	// Redis degrades to store reads, it never blocks startup.
	var grantCache cache.Cache
	if cfg.Redis.URL != "" {
		grantCache, err = cache.NewRedisCache(cache.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, appLogger.Zerolog())
		if err != nil {
			appLogger.Warn("redis unavailable, grant cache disabled", "error", err.Error())
			grantCache = nil
		} else {
			defer grantCache.Close()
		}
	}

	// Initialize email notifications
	var emailSvc email.Service
	if cfg.Email.Enabled {
		emailSvc = email.NewSMTPService(cfg.Email)
	} else {
		emailSvc = email.NewNoopService(appLogger)
	}

	m := metrics.NewMetrics("emergency_api")

	jwtSvc := pkgauth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	hasher := security.NewBcryptHasher(0)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc, userRepo)

	// Initialize services
	staffAccessSvc := staffAccessService.NewService(grantRepo, userRepo, grantCache, emailSvc, m, appLogger)
	authSvc := authService.NewService(userRepo, jwtSvc, hasher, emailSvc, authMiddleware, appLogger)
	medicalSvc := medicalService.NewService(recordRepo, userRepo, staffAccessSvc, m, appLogger)

	// Initialize handlers
	healthH := handler.NewHealthHandler(db)
	authH := authHandler.NewHandler(authSvc)
	medicalH := medicalHandler.NewHandler(medicalSvc, staffAccessSvc)
	staffAccessH := staffAccessHandler.NewHandler(staffAccessSvc)

	// Setup router
	r := router.NewRouter(authMiddleware, authH, medicalH, staffAccessH, healthH, m, router.Config{
		RateLimit:  rate.Limit(cfg.RateLimit.RPS),
		RateBurst:  cfg.RateLimit.Burst,
		CORSConfig: middleware.DefaultCORSConfig(),
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		appLogger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info("server exited properly")
}

func newLogger(cfg config.LoggingConfig) *logger.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Pretty,
	})
}
