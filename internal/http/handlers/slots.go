package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ideaforge-backend/internal/http/response"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

// SlotEventSender publishes slot changes to realtime subscribers.
type SlotEventSender interface {
	Send(ctx context.Context, msg realtime.SSEMessage)
}

type SlotHandler struct {
	log    *logger.Logger
	svc    services.SlotService
	events SlotEventSender
}

func NewSlotHandler(log *logger.Logger, svc services.SlotService, events SlotEventSender) *SlotHandler {
	return &SlotHandler{log: log.With("handler", "SlotHandler"), svc: svc, events: events}
}

// GET /api/slots
func (h *SlotHandler) List(c *gin.Context) {
	slots, err := h.svc.List(dbctx.New(c.Request.Context()))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"slots": slots})
}

// GET /api/slots/:number
func (h *SlotHandler) Get(c *gin.Context) {
	n, err := slotParam(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	slot, err := h.svc.Get(dbctx.New(c.Request.Context()), n)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"slot": slot})
}

// PUT /api/slots/:number
func (h *SlotHandler) Update(c *gin.Context) {
	n, err := slotParam(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var in services.SlotUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondAPIError(c, apierr.InvalidArgument("invalid_request", fmt.Errorf("invalid request body: %w", err)))
		return
	}
	slot, err := h.svc.Update(dbctx.New(c.Request.Context()), n, in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if h.events != nil {
		h.events.Send(c.Request.Context(), realtime.SSEMessage{
			Channel: realtime.ChannelGeneration,
			Event:   realtime.SSEEventSlotUpdated,
			Data:    slot,
		})
	}
	response.RespondOK(c, gin.H{"slot": slot})
}

func slotParam(c *gin.Context) (int, error) {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		return 0, apierr.InvalidArgument("invalid_slot_number", fmt.Errorf("slot number must be an integer"))
	}
	return n, nil
}
