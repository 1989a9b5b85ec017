package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/http"
	httpH "github.com/yungbote/ideaforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ideaforge-backend/internal/http/middleware"
	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health     *httpH.HealthHandler
	Generation *httpH.GenerationHandler
	Stream     *httpH.StreamHandler
	Realtime   *httpH.RealtimeHandler
	Slot       *httpH.SlotHandler
	Profile    *httpH.ProfileHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, cfg Config, services Services, hub *realtime.SSEHub, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(db),
		Generation: httpH.NewGenerationHandler(log, services.Generation),
		Stream:     httpH.NewStreamHandler(log, services.Streamer, metrics, cfg.CORSOrigins),
		Realtime:   httpH.NewRealtimeHandler(log, hub, metrics),
		Slot:       httpH.NewSlotHandler(log, services.Slots, services.Notifier),
		Profile:    httpH.NewProfileHandler(services.Profiles),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Tokens, cfg.AuthDisabled),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:               log,
		ServiceName:       cfg.ServiceName,
		AllowedOrigins:    cfg.CORSOrigins,
		Metrics:           metrics,
		TracingEnabled:    cfg.Otel.Enabled,
		AuthMiddleware:    middleware.Auth,
		GenerationHandler: handlers.Generation,
		StreamHandler:     handlers.Stream,
		RealtimeHandler:   handlers.Realtime,
		SlotHandler:       handlers.Slot,
		ProfileHandler:    handlers.Profile,
		HealthHandler:     handlers.Health,
	})
}
