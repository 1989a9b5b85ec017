package services

import (
	"context"
	"fmt"
	"strings"

	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/generation/orchestrator"
	"github.com/yungbote/ideaforge-backend/internal/generation/tracker"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type GenerationStatus struct {
	ActiveCount    int      `json:"activeCount"`
	ActiveSessions []string `json:"activeSessions"`
}

type GenerationService interface {
	Generate(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	Status() GenerationStatus
	GetSession(dbc dbctx.Context, sessionID string) (*types.Session, error)
	ListSessions(dbc dbctx.Context, status string, limit int) ([]*types.Session, error)
	LogsAfter(dbc dbctx.Context, sessionID string, afterID int64, limit int) ([]*types.LogEntry, error)
}

type generationService struct {
	log     *logger.Logger
	orch    *orchestrator.Orchestrator
	tracker *tracker.Tracker
}

func NewGenerationService(baseLog *logger.Logger, orch *orchestrator.Orchestrator) GenerationService {
	return &generationService{
		log:     baseLog.With("service", "GenerationService"),
		orch:    orch,
		tracker: orch.Tracker(),
	}
}

func (s *generationService) Generate(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
	if req.Trigger == "" {
		req.Trigger = types.TriggerManual
	}
	return s.orch.Run(ctx, req)
}

func (s *generationService) Status() GenerationStatus {
	ids := s.tracker.Active().IDs()
	return GenerationStatus{ActiveCount: len(ids), ActiveSessions: ids}
}

func (s *generationService) GetSession(dbc dbctx.Context, sessionID string) (*types.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apierr.InvalidArgument("session_id_required", fmt.Errorf("session id is required"))
	}
	session, err := s.tracker.Snapshot(dbc.Ctx, sessionID)
	if err != nil {
		return nil, apierr.Internal("session_lookup_failed", err)
	}
	if session == nil {
		return nil, apierr.NotFound("session_not_found", fmt.Errorf("session %s not found", sessionID)).WithDetail("session_id", sessionID)
	}
	return session, nil
}

func (s *generationService) ListSessions(dbc dbctx.Context, status string, limit int) ([]*types.Session, error) {
	st := types.Status(strings.TrimSpace(status))
	switch st {
	case "", types.StatusInProgress, types.StatusCompleted, types.StatusFailed:
	default:
		return nil, apierr.InvalidArgument("invalid_status", fmt.Errorf("unknown status %q", status))
	}
	return s.tracker.List(dbc.Ctx, st, limit)
}

func (s *generationService) LogsAfter(dbc dbctx.Context, sessionID string, afterID int64, limit int) ([]*types.LogEntry, error) {
	if _, err := s.GetSession(dbc, sessionID); err != nil {
		return nil, err
	}
	return s.tracker.LogsAfter(dbc.Ctx, sessionID, afterID, limit)
}
