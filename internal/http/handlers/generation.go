package handlers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/generation/orchestrator"
	"github.com/yungbote/ideaforge-backend/internal/http/response"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

type GenerationHandler struct {
	log *logger.Logger
	svc services.GenerationService
}

func NewGenerationHandler(log *logger.Logger, svc services.GenerationService) *GenerationHandler {
	return &GenerationHandler{log: log.With("handler", "GenerationHandler"), svc: svc}
}

// POST /api/generate
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req orchestrator.Request
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondAPIError(c, apierr.InvalidArgument("invalid_request", fmt.Errorf("invalid request body: %w", err)))
			return
		}
	}
	req.Trigger = types.TriggerManual

	res, err := h.svc.Generate(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, res)
}

// GET /api/generation/status
func (h *GenerationHandler) Status(c *gin.Context) {
	response.RespondOK(c, h.svc.Status())
}

// GET /api/generation/sessions
func (h *GenerationHandler) ListSessions(c *gin.Context) {
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	rows, err := h.svc.ListSessions(dbctx.New(c.Request.Context()), c.Query("status"), limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": rows})
}

// GET /api/generation/sessions/:id
func (h *GenerationHandler) GetSession(c *gin.Context) {
	session, err := h.svc.GetSession(dbctx.New(c.Request.Context()), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

// GET /api/generation/sessions/:id/logs?after=&limit=
func (h *GenerationHandler) Logs(c *gin.Context) {
	after, err := int64Query(c, "after", 0)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	logs, err := h.svc.LogsAfter(dbctx.New(c.Request.Context()), c.Param("id"), after, limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if logs == nil {
		logs = []*types.LogEntry{}
	}
	response.RespondOK(c, gin.H{"logs": logs})
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apierr.InvalidArgument("invalid_"+key, fmt.Errorf("%s must be a non-negative integer", key))
	}
	return v, nil
}

func int64Query(c *gin.Context, key string, def int64) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apierr.InvalidArgument("invalid_"+key, fmt.Errorf("%s must be a non-negative integer", key))
	}
	return v, nil
}
