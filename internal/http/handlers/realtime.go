package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
)

type RealtimeHandler struct {
	log     *logger.Logger
	hub     *realtime.SSEHub
	metrics *observability.Metrics
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, metrics *observability.Metrics) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub, metrics: metrics}
}

// Events streams session lifecycle and slot events to one subscriber.
// GET /api/generation/events
func (h *RealtimeHandler) Events(c *gin.Context) {
	subject := ctxutil.Subject(c.Request.Context())
	client := h.hub.NewSSEClient(subject)
	h.hub.AddChannel(client, realtime.ChannelGeneration)
	h.log.Info("Event stream open", "client_id", client.ID.String(), "subject", subject)

	h.metrics.StreamOpened("events")
	defer h.metrics.StreamClosed("events")

	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
}
