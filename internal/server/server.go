package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/admission"
	"github.com/aman-churiwal/quota-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/quota-gateway/internal/config"
	"github.com/aman-churiwal/quota-gateway/internal/handler"
	"github.com/aman-churiwal/quota-gateway/internal/healthcheck"
	"github.com/aman-churiwal/quota-gateway/internal/metrics"
	"github.com/aman-churiwal/quota-gateway/internal/middleware"
	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/notification"
	"github.com/aman-churiwal/quota-gateway/internal/proxy"
	"github.com/aman-churiwal/quota-gateway/internal/quota"
	"github.com/aman-churiwal/quota-gateway/internal/ratelimit"
	"github.com/aman-churiwal/quota-gateway/internal/repository"
	"github.com/aman-churiwal/quota-gateway/internal/scheduler"
	"github.com/aman-churiwal/quota-gateway/internal/service"
	"github.com/aman-churiwal/quota-gateway/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	router   *gin.Engine
	config   *config.Config
	redis    *storage.RedisClient
	postgres *storage.Postgres
	proxies  []*proxy.Proxy

	gate          *admission.Gate
	subscriptions *repository.SubscriptionRepository
	dispatcher    *notification.Dispatcher
	requestLogger *middleware.RequestLogger
	healthChecker *healthcheck.Checker
	scheduler     *scheduler.Scheduler

	authService   *service.AuthService
	apiKeyService *service.APIKeyService

	authHandler         *handler.AuthHandler
	apiKeyHandler       *handler.APIKeyHandler
	planHandler         *handler.PlanHandler
	subscriptionHandler *handler.SubscriptionHandler
	notificationHandler *handler.NotificationHandler
	analyticsHandler    *handler.AnalyticsHandler
	systemHandler       *handler.SystemHandler

	httpServer *http.Server
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:   gin.New(),
		config:   cfg,
		redis:    redis,
		postgres: postgres,
	}

	userRepo := repository.NewUserRepository(postgres)
	apiKeyRepo := repository.NewAPIKeyRepository(postgres)
	planRepo := repository.NewPlanRepository(postgres)
	notificationRepo := repository.NewNotificationRepository(postgres)
	requestLogRepo := repository.NewRequestLogRepository(postgres)
	s.subscriptions = repository.NewSubscriptionRepository(postgres)

	s.dispatcher = notification.NewDispatcher(notificationRepo, redis, cfg.Notification.Buffer)
	s.requestLogger = middleware.NewRequestLogger(requestLogRepo, cfg.Server.RequestLogBuffer)

	// Admission: rate limiter over Redis, daily quota over Postgres
	redisBreaker := newBreaker("redis", cfg.RateLimit.CircuitMaxFailures, cfg.RateLimit.CircuitTimeout)
	store := ratelimit.NewGuardedStore(ratelimit.NewRedisStore(redis), redisBreaker, cfg.RateLimit.StoreTimeout)
	limiter := ratelimit.NewLimiter(store, ratelimit.Config{
		Window:   cfg.RateLimit.Window,
		BlockTTL: cfg.RateLimit.BlockTTL,
		Tiers:    ratelimit.NewTiers(cfg.RateLimit.Base, cfg.RateLimit.Mid, cfg.RateLimit.Top),
	})
	tracker := quota.NewTracker(s.subscriptions, s.dispatcher, cfg.Quota.Location)
	coordinator := quota.NewCoordinator(s.subscriptions, s.dispatcher, cfg.Quota.ResetConcurrency)
	s.gate = admission.NewGate(limiter, tracker, s.subscriptions)

	s.authService = service.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiryHours, cfg.Auth.AdminEmails)
	s.apiKeyService = service.NewAPIKeyService(apiKeyRepo, redis)
	planService := service.NewPlanService(planRepo)
	subscriptionService := service.NewSubscriptionService(s.subscriptions, planRepo, s.dispatcher)
	notificationService := service.NewNotificationService(notificationRepo)
	analyticsService := service.NewAnalyticsService(requestLogRepo)

	if err := planService.EnsureDefaults(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to seed plans: %w", err)
	}

	probes := []healthcheck.Probe{
		{Name: "postgres", Critical: true, Check: postgres.Ping},
		{Name: "redis", Check: redis.Ping},
	}
	breakers := []*circuitbreaker.CircuitBreaker{redisBreaker}

	for _, svc := range cfg.Services {
		probes = append(probes, healthcheck.HTTPProbe(svc.Name, svc.Target, "/health", nil))
	}
	s.healthChecker = healthcheck.NewChecker(healthcheck.Config{}, probes...)

	for _, svc := range cfg.Services {
		p, err := proxy.New(svc, newBreaker(svc.Name, cfg.RateLimit.CircuitMaxFailures, cfg.RateLimit.CircuitTimeout), s.healthChecker)
		if err != nil {
			return nil, err
		}
		s.proxies = append(s.proxies, p)
		breakers = append(breakers, p.CircuitBreaker())
	}

	if cfg.Quota.ResetEnabled {
		sched, err := scheduler.New(scheduler.Config{Location: cfg.Quota.Location, At: cfg.Quota.ResetAt}, redis,
			scheduler.Job{Name: "subscription-expiry", Run: func(ctx context.Context) error {
				_, err := subscriptionService.ExpireDue(ctx)
				return err
			}},
			scheduler.Job{Name: "quota-reset", Run: func(ctx context.Context) error {
				_, err := coordinator.ResetAllActiveQuotas(ctx)
				return err
			}},
			scheduler.Job{Name: "request-log-retention", Run: func(ctx context.Context) error {
				_, err := analyticsService.CleanupOldLogs(ctx, cfg.Server.RequestLogRetentionDays)
				return err
			}},
		)
		if err != nil {
			return nil, err
		}
		s.scheduler = sched
	}

	s.authHandler = handler.NewAuthHandler(s.authService)
	s.apiKeyHandler = handler.NewAPIKeyHandler(s.apiKeyService)
	s.planHandler = handler.NewPlanHandler(planService)
	s.subscriptionHandler = handler.NewSubscriptionHandler(subscriptionService, tracker)
	s.notificationHandler = handler.NewNotificationHandler(notificationService)
	s.analyticsHandler = handler.NewAnalyticsHandler(analyticsService)
	s.systemHandler = handler.NewSystemHandler(breakers, limiter, coordinator, s.healthChecker)

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Exports breaker transitions as a gauge. Cancelled requests are the
// caller's doing and do not count against the dependency.
func newBreaker(name string, maxFailures int, timeout time.Duration) *circuitbreaker.CircuitBreaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(circuitbreaker.StateClosed))

	return circuitbreaker.New(circuitbreaker.Config{
		Name:        name,
		MaxFailures: maxFailures,
		Timeout:     timeout,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.Metrics())
	s.router.Use(middleware.CORS())
	s.router.Use(s.requestLogger.Middleware())
	s.router.Use(middleware.APIKeyValidator(s.apiKeyService))
	s.router.Use(middleware.OptionalAuth(s.authService))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.systemHandler.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	gated := s.router.Group("/", middleware.Admission(s.gate, false))
	{
		gated.POST("/auth/register", s.authHandler.Register)
		gated.POST("/auth/login", s.authHandler.Login)
		gated.GET("/plans", s.planHandler.List)
	}

	account := s.router.Group("/", middleware.RequireAuth(s.authService), middleware.Admission(s.gate, false))
	{
		account.GET("/auth/me", s.authHandler.Me)

		account.POST("/subscriptions", s.subscriptionHandler.Subscribe)
		account.GET("/subscriptions/me", s.subscriptionHandler.Current)
		account.GET("/subscriptions/me/usage", s.subscriptionHandler.Usage)
		account.POST("/subscriptions/me/cancel", s.subscriptionHandler.Cancel)
		account.GET("/subscriptions/history", s.subscriptionHandler.History)

		account.GET("/notifications", s.notificationHandler.List)
		account.POST("/notifications/:id/read", s.notificationHandler.MarkRead)
		account.POST("/notifications/read-all", s.notificationHandler.MarkAllRead)

		account.POST("/keys", s.apiKeyHandler.Create)
		account.GET("/keys", s.apiKeyHandler.List)
		account.DELETE("/keys/:id", s.apiKeyHandler.Revoke)
	}

	admin := s.router.Group("/admin", middleware.RequireAuth(s.authService), middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/plans", s.planHandler.Create)
		admin.PUT("/plans/:id/active", s.planHandler.SetActive)
		admin.GET("/users", s.authHandler.ListUsers)
		admin.PUT("/users/:id/role", s.authHandler.SetRole)

		admin.PUT("/subscriptions/:id/limit", s.subscriptionHandler.SetRequestLimit)
		admin.GET("/subscriptions/expiring", s.subscriptionHandler.Expiring)
		admin.POST("/subscriptions/expire", s.subscriptionHandler.ExpireDue)

		admin.GET("/analytics", s.analyticsHandler.GetSummary)
		admin.GET("/analytics/timeseries", s.analyticsHandler.GetTimeSeries)
		admin.GET("/analytics/users/:id/logs", s.analyticsHandler.GetUserLogs)

		admin.GET("/system/breakers", s.systemHandler.CircuitBreakerStatus)
		admin.POST("/system/breakers/:name/reset", s.systemHandler.ResetCircuitBreaker)
		admin.GET("/ratelimit/:key", s.systemHandler.RateLimitStatus)
		admin.DELETE("/ratelimit/:key", s.systemHandler.ResetRateLimit)
		admin.POST("/quotas/reset", s.systemHandler.ResetQuotas)
	}

	s.setupProxyRoutes()
}

// Product APIs: feature checked, metered, then forwarded
func (s *Server) setupProxyRoutes() {
	for _, p := range s.proxies {
		path := "/api/" + p.Name()

		s.router.Any(path+"/*path",
			middleware.RequireFeature(s.subscriptions, p.Feature()),
			middleware.Admission(s.gate, true),
			p.Handle,
		)

		log.WithFields(log.Fields{
			"path":   path,
			"target": p.Target(),
		}).Info("registered proxy route")
	}
}

// Starts the background workers
func (s *Server) Start() {
	s.dispatcher.Start()
	s.requestLogger.Start()
	s.healthChecker.Start()
	if s.scheduler != nil {
		s.scheduler.Start()
	}
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.WithFields(log.Fields{
		"addr":        addr,
		"environment": s.config.Server.Environment,
		"services":    len(s.proxies),
	}).Info("starting quota gateway")

	return s.httpServer.ListenAndServe()
}

// Stops accepting requests, then drains the background workers
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down server")

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.healthChecker.Stop()
	s.requestLogger.Stop()
	s.dispatcher.Stop()

	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
