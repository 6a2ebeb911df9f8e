package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/medqr/emergency-api/internal/handler"
	authHandler "github.com/medqr/emergency-api/internal/handler/auth"
	medicalHandler "github.com/medqr/emergency-api/internal/handler/medical"
	staffAccessHandler "github.com/medqr/emergency-api/internal/handler/staffaccess"
	"github.com/medqr/emergency-api/internal/middleware"
	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/pkg/metrics"
)

type Config struct {
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	authH   *authHandler.Handler
	medH    *medicalHandler.Handler
	staffH  *staffAccessHandler.Handler
	healthH *handler.HealthHandler
	metrics *metrics.Metrics
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	authH *authHandler.Handler,
	medH *medicalHandler.Handler,
	staffH *staffAccessHandler.Handler,
	healthH *handler.HealthHandler,
	m *metrics.Metrics,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	registerValidators()
	engine := gin.New()

	r := &Router{
		engine:  engine,
		auth:    auth,
		authH:   authH,
		medH:    medH,
		staffH:  staffH,
		healthH: healthH,
		metrics: m,
	}

	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
	)

	engine.Use(middleware.CORS(config.CORSConfig))

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Setup() {
	r.engine.GET("/healthz", r.healthH.Health)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")
	r.authH.RegisterRoutes(api)

	authed := r.engine.Group("/api/v1", r.auth.Authenticate())
	admin := r.engine.Group("/api/v1", r.auth.Authenticate(), r.auth.RequireRole(model.RoleAdmin))

	r.authH.RegisterProtectedRoutes(authed, admin)
	r.medH.RegisterRoutes(authed)
	r.staffH.RegisterRoutes(authed, admin)
}

// registerValidators adds the domain tags used by binding structs.
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("bloodtype", func(fl validator.FieldLevel) bool {
			return model.ValidBloodType(fl.Field().String())
		})
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		r.metrics.RequestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		r.metrics.RequestDuration.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
		if c.Writer.Status() >= 400 {
			r.metrics.ErrorTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		}
	}
}
