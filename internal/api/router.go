package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hudsor01/tenant-flow-sub014/internal/api/middleware"
	"github.com/hudsor01/tenant-flow-sub014/internal/config"
	"github.com/hudsor01/tenant-flow-sub014/internal/deadletter"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
	"github.com/hudsor01/tenant-flow-sub014/internal/intake"
)

type Router struct {
	engine      *gin.Engine
	server      *http.Server
	cfg         *config.Config
	intakeSvc   *intake.Service
	deadLetters deadletter.Repository
	events      ledger.Repository
	jobs        queue.Repository
	logger      *zap.Logger
}

func NewRouter(
	cfg *config.Config,
	intakeSvc *intake.Service,
	deadLetters deadletter.Repository,
	events ledger.Repository,
	jobs queue.Repository,
	logger *zap.Logger,
) *Router {
	// Disable GIN default logger
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.Logger(logger))

	api := &Router{
		engine:      r,
		cfg:         cfg,
		intakeSvc:   intakeSvc,
		deadLetters: deadLetters,
		events:      events,
		jobs:        jobs,
		logger:      logger,
	}

	api.RegisterRoutes()
	return api
}

func (r *Router) RegisterRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus metrics endpoint
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := r.engine.Group("/webhooks")
	{
		webhooks.POST("/payments", r.ReceivePaymentWebhook)
	}

	// Admin Routes (Protected by ADMIN_API_TOKEN)
	admin := r.engine.Group("/admin")
	admin.Use(r.adminAuth())
	{
		admin.GET("/dead-letters", r.ListDeadLetters)
		admin.GET("/dead-letters/:event_id", r.GetDeadLetter)
		admin.POST("/dead-letters/:event_id/requeue", r.RequeueDeadLetter)
		admin.GET("/events/:event_id", r.GetEventStatus)
	}
}

func (r *Router) Run() error {
	r.server = &http.Server{
		Addr:         ":" + r.cfg.Port,
		Handler:      r.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return r.server.ListenAndServe()
}

func (r *Router) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(r.cfg.AdminAPIToken)
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_token_not_configured"})
			return
		}

		provided := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if provided == "" {
			authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				provided = strings.TrimSpace(authHeader[7:])
			}
		}

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Shutdown gracefully shuts down the HTTP server
func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
