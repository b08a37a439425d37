// Package api exposes the Orchestrator Facade as a JSON/HTTP service,
// grounded on the teacher's pkg/api/server.go route-grouping and
// middleware-stack shape.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"casare-orchestrator/internal/api/middleware"
	"casare-orchestrator/internal/auth"
	"casare-orchestrator/internal/logging"
	"casare-orchestrator/internal/orchestrator"
)

// Config holds the API server's dependencies and tunables.
type Config struct {
	Port                  string
	Facade                *orchestrator.Facade
	JWTService            *auth.JWTService
	APIKeyStore           auth.APIKeyStore
	AuthEnabled           bool
	HeartbeatTimeout      time.Duration
	AssignmentPollTimeout time.Duration
}

// Server wraps the gin router and its HTTP listener.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	facade     *orchestrator.Facade
	validator  *middleware.Validator
	cfg        Config
}

// NewServer builds the router, registers every route from spec §6, and
// wraps it in an *http.Server, mirroring the teacher's NewServer.
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.TracingMiddleware("casare-orchestrator"))
	router.Use(requestLogger())
	router.Use(middleware.RateLimitMiddleware())
	router.Use(middleware.BodySizeLimitMiddleware(1 << 20))

	if cfg.AssignmentPollTimeout <= 0 {
		cfg.AssignmentPollTimeout = 20 * time.Second
	}

	s := &Server{
		router:    router,
		facade:    cfg.Facade,
		validator: middleware.NewValidator(middleware.DefaultValidatorConfig()),
		cfg:       cfg,
	}

	if cfg.AuthEnabled {
		router.Use(middleware.AuthMiddleware(middleware.AuthConfig{
			JWTService:  cfg.JWTService,
			APIKeyStore: cfg.APIKeyStore,
			SkipPaths:   []string{"/health", "/metrics"},
		}))
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.AssignmentPollTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening; it returns http.ErrServerClosed on a clean Shutdown.
func (s *Server) Start() error {
	logging.Info("api: starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("api: shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// robotOnly is a no-op unless auth is enabled, since RequireRobot relies
	// on claims AuthMiddleware never populates when auth is off.
	robotOnly := func(idParam string) gin.HandlerFunc {
		if !s.cfg.AuthEnabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RequireRobot(idParam)
	}
	operatorOnly := func(role auth.Role) gin.HandlerFunc {
		if !s.cfg.AuthEnabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RequireRole(role)
	}

	v1 := s.router.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", operatorOnly(auth.RoleOperator), s.submitJob)
			jobs.GET("", s.listJobs)
			jobs.GET("/:id", s.getJob)
			jobs.POST("/:id/cancel", operatorOnly(auth.RoleOperator), s.cancelJob)
			jobs.POST("/:id/retry", operatorOnly(auth.RoleOperator), s.retryJob)
			jobs.PATCH("/:id/progress", robotOnly(""), s.updateJobProgress)
			jobs.POST("/:id/complete", robotOnly(""), s.completeJob)
			jobs.POST("/:id/fail", robotOnly(""), s.failJob)
			jobs.POST("/:id/checkpoint", robotOnly(""), s.putCheckpoint)
			jobs.POST("/:id/node-failure", robotOnly(""), s.reportNodeFailure)
		}

		robots := v1.Group("/robots")
		{
			robots.POST("", s.registerRobot)
			robots.GET("", s.listRobots)
			robots.POST("/:id/heartbeat", robotOnly("id"), s.heartbeat)
			robots.PATCH("/:id/status", robotOnly("id"), s.updateRobotStatus)
			robots.GET("/:id/assignment", robotOnly("id"), s.waitForAssignment)
			robots.POST("/:id/recover", operatorOnly(auth.RoleOperator), s.manuallyRecover)
		}

		schedules := v1.Group("/schedules")
		{
			schedules.POST("", operatorOnly(auth.RoleOperator), s.createSchedule)
			schedules.PATCH("/:id", operatorOnly(auth.RoleOperator), s.updateSchedule)
			schedules.POST("/:id/toggle", operatorOnly(auth.RoleOperator), s.toggleSchedule)
			schedules.DELETE("/:id", operatorOnly(auth.RoleAdmin), s.deleteSchedule)
			schedules.GET("/upcoming", s.upcomingSchedules)
		}

		stats := v1.Group("/stats")
		{
			stats.GET("/queue", s.queueStats)
			stats.GET("/dispatcher", s.dispatcherStats)
		}

		dlq := v1.Group("/dlq")
		{
			dlq.GET("", s.listDLQ)
			dlq.POST("/:id/replay", operatorOnly(auth.RoleOperator), s.replayDLQ)
		}
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logging.Info("api: request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", requestID(c)),
		)
	}
}

func requestID(c *gin.Context) string {
	if v, ok := c.Get(middleware.ContextRequestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (s *Server) healthCheck(c *gin.Context) {
	healthy := s.facade != nil
	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
