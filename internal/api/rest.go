// Package api provides the REST API handlers and server for Tickr.
// It includes endpoints for managing timers, reading their event history,
// and real-time updates via WebSocket.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mescon/tickr/internal/config"
	"github.com/mescon/tickr/internal/db"
	"github.com/mescon/tickr/internal/eventbus"
	"github.com/mescon/tickr/internal/logger"
	"github.com/mescon/tickr/internal/metrics"
	"github.com/mescon/tickr/internal/services"
)

type RESTServer struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        *config.Config
	repo       *db.Repository
	eventBus   eventbus.Publisher
	registry   *services.TimerRegistry
	scheduler  *services.SchedulerService
	metrics    *metrics.MetricsService
	hub        *WebSocketHub
	limiter    *RateLimiter
	apiKey     string
	startTime  time.Time
}

// ServerDeps contains all dependencies required for the REST server
type ServerDeps struct {
	Config    *config.Config
	Repo      *db.Repository
	EventBus  eventbus.Publisher
	Registry  *services.TimerRegistry
	Scheduler *services.SchedulerService // optional, adds next_run to timers
	Metrics   *metrics.MetricsService    // optional, serves /metrics
	APIKey    string
}

func NewRESTServer(deps ServerDeps) *RESTServer {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Get()
	}

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Request ID middleware for correlation/tracing
	r.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	})

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		reqID := c.GetString("request_id")
		logger.Errorf("[PANIC RECOVERY] request_id=%s path=%s method=%s error=%v",
			reqID, c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      ErrMsgInternalError,
			"request_id": reqID,
		})
	}))

	r.Use(corsMiddleware(cfg.CORSOrigin))

	s := &RESTServer{
		router:    r,
		cfg:       cfg,
		repo:      deps.Repo,
		eventBus:  deps.EventBus,
		registry:  deps.Registry,
		scheduler: deps.Scheduler,
		metrics:   deps.Metrics,
		hub:       NewWebSocketHub(deps.EventBus, cfg.CORSOrigin),
		limiter:   NewRateLimiter(cfg.APIRateLimitRPS, cfg.APIRateLimitBurst),
		apiKey:    deps.APIKey,
		startTime: time.Now(),
	}

	s.setupRoutes()

	return s
}

// corsMiddleware allows "*" or a comma separated list of origins. With an
// empty list no CORS headers are set and browsers enforce same-origin.
func corsMiddleware(origins string) gin.HandlerFunc {
	allowed := parseOrigins(origins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if origins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, X-API-Key, X-Request-ID, accept, origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func parseOrigins(origins string) map[string]bool {
	allowed := make(map[string]bool)
	if origins == "" || origins == "*" {
		return allowed
	}
	for _, origin := range strings.Split(origins, ",") {
		if o := strings.TrimSpace(origin); o != "" {
			allowed[o] = true
		}
	}
	return allowed
}

func (s *RESTServer) setupRoutes() {
	// Prometheus metrics endpoint at root level (standard convention)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api")
	{
		// Health check endpoint (no authentication required)
		api.GET("/health", s.handleHealth)

		protected := api.Group("")
		protected.Use(s.limiter.Middleware(), s.authMiddleware())
		{
			protected.GET("/timers", s.listTimers)
			protected.POST("/timers", s.createTimer)
			protected.GET("/timers/:id", s.getTimer)
			protected.DELETE("/timers/:id", s.deleteTimer)
			protected.POST("/timers/:id/start", s.controlTimer(s.registry.Start))
			protected.POST("/timers/:id/pause", s.controlTimer(s.registry.Pause))
			protected.POST("/timers/:id/resume", s.controlTimer(s.registry.Resume))
			protected.POST("/timers/:id/stop", s.controlTimer(s.registry.Stop))
			protected.POST("/timers/:id/reset", s.controlTimer(s.registry.Reset))
			protected.GET("/timers/:id/events", s.getTimerEvents)

			protected.GET("/ws", s.hub.HandleConnection)

			// Logs
			protected.GET("/logs/recent", s.handleRecentLogs)
			protected.GET("/logs/download", s.handleDownloadLogs)
		}
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
	})
}

// Handler exposes the router, mainly for tests.
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

func (s *RESTServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and the websocket hub
func (s *RESTServer) Shutdown(ctx context.Context) error {
	s.hub.Close()
	s.limiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *RESTServer) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-API-Key")
		if token == "" {
			token = c.GetHeader("Authorization")
			token = strings.TrimPrefix(token, "Bearer ")
		}

		// Query parameter for WebSockets, which cannot set headers from browsers
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authentication token provided"})
			return
		}

		if s.apiKey == "" {
			respondAuthError(c, nil)
			c.Abort()
			return
		}

		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			return
		}

		c.Next()
	}
}
