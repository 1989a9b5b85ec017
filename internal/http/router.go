package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/ideaforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ideaforge-backend/internal/http/middleware"
	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics
	TracingEnabled bool

	AuthMiddleware *httpMW.AuthMiddleware

	GenerationHandler *httpH.GenerationHandler
	StreamHandler     *httpH.StreamHandler
	RealtimeHandler   *httpH.RealtimeHandler
	SlotHandler       *httpH.SlotHandler
	ProfileHandler    *httpH.ProfileHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		name := cfg.ServiceName
		if name == "" {
			name = "ideaforge"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "route not found", "code": "not_found"}})
	})

	protected := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Generation
		if cfg.GenerationHandler != nil {
			protected.POST("/generate", cfg.GenerationHandler.Generate)
			protected.GET("/generation/status", cfg.GenerationHandler.Status)
			protected.GET("/generation/sessions", cfg.GenerationHandler.ListSessions)
			protected.GET("/generation/sessions/:id", cfg.GenerationHandler.GetSession)
			protected.GET("/generation/sessions/:id/logs", cfg.GenerationHandler.Logs)
		}

		// Streaming
		if cfg.StreamHandler != nil {
			protected.GET("/generation/sessions/:id/stream", cfg.StreamHandler.SSE)
			protected.GET("/generation/sessions/:id/ws", cfg.StreamHandler.WebSocket)
		}
		if cfg.RealtimeHandler != nil {
			protected.GET("/generation/events", cfg.RealtimeHandler.Events)
		}

		// Slots
		if cfg.SlotHandler != nil {
			protected.GET("/slots", cfg.SlotHandler.List)
			protected.GET("/slots/:number", cfg.SlotHandler.Get)
			protected.PUT("/slots/:number", cfg.SlotHandler.Update)
		}

		// Profiles
		if cfg.ProfileHandler != nil {
			protected.GET("/profiles", cfg.ProfileHandler.List)
		}
	}

	return r
}
