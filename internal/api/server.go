package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/chorus-platform/process-monitor/internal/api/handlers"
	"github.com/chorus-platform/process-monitor/internal/api/middleware"
	"github.com/chorus-platform/process-monitor/internal/config"
	"github.com/chorus-platform/process-monitor/internal/monitoring"
	"github.com/chorus-platform/process-monitor/internal/services"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

type Server struct {
	config  *config.Config
	logger  logger.Logger
	cache   cache.ValkeyCluster
	db      *gorm.DB
	metrics *postgres.MetricsStore
	rules   *postgres.RulesStore
	monitor *services.MonitorServices

	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(
	cfg *config.Config,
	log logger.Logger,
	valkeyCache cache.ValkeyCluster,
	db *gorm.DB,
	metricsStore *postgres.MetricsStore,
	rulesStore *postgres.RulesStore,
	monitor *services.MonitorServices,
) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	server := &Server{
		config:  cfg,
		logger:  log,
		cache:   valkeyCache,
		db:      db,
		metrics: metricsStore,
		rules:   rulesStore,
		monitor: monitor,
		router:  router,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// CORS for dashboard communication
	s.router.Use(middleware.CORSMiddleware(s.config.CORS))

	// Request logging
	s.router.Use(middleware.RequestLogger(s.logger))

	// Prometheus request metrics
	s.router.Use(middleware.MetricsMiddleware())

	// Rate limiting backed by the cache
	s.router.Use(middleware.RateLimiter(s.cache))

	// OpenAPI specification endpoints
	s.router.StaticFile("/api/openapi.yaml", "api/openapi.yaml")
	s.router.GET("/api/openapi.json", handlers.GetOpenAPISpec)

	// Swagger UI via gin-swagger (serves Swagger UI using external openapi.yaml)
	// Visit /swagger/index.html
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/api/openapi.yaml")))

	// Prometheus metrics endpoint
	if s.config.Monitoring.PrometheusEnabled {
		monitoring.SetupPrometheusMetrics(s.router)
	}
}

func (s *Server) setupRoutes() {
	hostname := s.config.ResolveHostname()

	// Public health endpoints
	healthHandler := handlers.NewHealthHandler(s.db, s.cache, s.logger)
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)

	// Root redirect to Swagger UI for convenience
	s.router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/swagger/index.html")
	})

	// API v1 group
	v1 := s.router.Group("/api/v1")

	// Back-compat: expose health under /api/v1 as well
	v1.GET("/health", healthHandler.HealthCheck)
	v1.GET("/ready", healthHandler.ReadinessCheck)

	// System overview and service health
	systemHandler := handlers.NewSystemHandler(s.monitor.Overview, s.cache, hostname, s.logger)
	v1.GET("/system/overview", systemHandler.GetSystemOverview)
	v1.GET("/system/health", systemHandler.GetServicesHealth)

	// Telemetry queries and the manual collection trigger
	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.monitor.System, s.monitor.Processes, s.cache, s.logger)
	v1.POST("/metrics/collect", metricsHandler.TriggerCollection)
	v1.GET("/metrics/system", metricsHandler.GetSystemMetrics)
	v1.GET("/metrics/processes", metricsHandler.GetProcessMetrics)
	v1.GET("/metrics/latest/:hostname", metricsHandler.GetLatestMetrics)

	// Alert lifecycle and the manual rule sweep
	alertHandler := handlers.NewAlertHandler(s.monitor.Alerts, s.monitor.Engine, s.logger)
	v1.GET("/alerts", alertHandler.GetAlerts)
	v1.POST("/alerts", alertHandler.CreateAlert)
	v1.GET("/alerts/stats", alertHandler.GetAlertStats)
	v1.GET("/alerts/:id", alertHandler.GetAlert)
	v1.PATCH("/alerts/:id", alertHandler.UpdateAlert)
	v1.POST("/alerts/check", alertHandler.TriggerAlertCheck)

	// Alert rule CRUD
	ruleHandler := handlers.NewRuleHandler(s.rules, s.logger)
	v1.GET("/alert-rules", ruleHandler.GetRules)
	v1.POST("/alert-rules", ruleHandler.CreateRule)
	v1.GET("/alert-rules/:id", ruleHandler.GetRule)
	v1.PUT("/alert-rules/:id", ruleHandler.UpdateRule)
	v1.DELETE("/alert-rules/:id", ruleHandler.DeleteRule)

	// Dashboard aggregations
	dashboardHandler := handlers.NewDashboardHandler(s.monitor.Overview, s.monitor.Alerts, s.metrics, s.cache, hostname, s.logger)
	v1.GET("/dashboard/overview", dashboardHandler.GetDashboardOverview)
	v1.GET("/dashboard/metrics/summary", dashboardHandler.GetMetricsSummary)

	// Scheduler introspection
	statusHandler := handlers.NewStatusHandler(s.monitor.Scheduler, s.logger)
	v1.GET("/status", statusHandler.GetSchedulerStatus)

	// WebSocket streams (alerts, metrics)
	if s.config.WebSocket.Enabled {
		ws := handlers.NewWebSocketHandler(s.cache, hostname, s.config.WebSocket, s.logger)
		v1.GET("/ws/alerts", ws.HandleAlertsStream)
		v1.GET("/ws/metrics", ws.HandleMetricsStream)
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Process monitor REST API server starting", "port", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down REST API server gracefully")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the router so tests can drive the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.router
}
