package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	gensessions "github.com/yungbote/ideaforge-backend/internal/data/repos/generation"
	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// Event is a session lifecycle notification.
type Event struct {
	Type       string     `json:"type"`
	SessionID  string     `json:"session_id"`
	SlotNumber *int       `json:"slot_number,omitempty"`
	Trigger    string     `json:"trigger,omitempty"`
	Stage      string     `json:"stage"`
	Status     string     `json:"status"`
	IdeaID     *uuid.UUID `json:"idea_id,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  string     `json:"error_kind,omitempty"`
	At         time.Time  `json:"at"`
}

const (
	EventStarted   = "session.started"
	EventCompleted = "session.completed"
	EventFailed    = "session.failed"
)

type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type Metrics interface {
	SessionStarted(trigger string)
	StageEntered(stage string)
	SessionFinished(status, errorKind string, d time.Duration)
}

type StartParams struct {
	SessionID  string
	SlotNumber *int
	Trigger    types.Trigger
	ProfileID  string
	// ExclusiveSlot refuses the start while another session holds the slot.
	ExclusiveSlot bool
}

type Tracker struct {
	db       *gorm.DB
	sessions repos.GenerationSessionRepo
	logs     repos.GenerationLogRepo
	active   *ActiveSet
	notifier Notifier
	metrics  Metrics
	log      *logger.Logger
}

type Option func(*Tracker)

func WithNotifier(n Notifier) Option { return func(t *Tracker) { t.notifier = n } }
func WithMetrics(m Metrics) Option   { return func(t *Tracker) { t.metrics = m } }

func New(log *logger.Logger, db *gorm.DB, sessions repos.GenerationSessionRepo, logs repos.GenerationLogRepo, active *ActiveSet, opts ...Option) *Tracker {
	if active == nil {
		active = NewActiveSet()
	}
	t := &Tracker{
		db:       db,
		sessions: sessions,
		logs:     logs,
		active:   active,
		log:      log.With("service", "GenerationTracker"),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tracker) Active() *ActiveSet { return t.active }

// Start creates the session row with its first log entry and registers it
// in the active set before returning.
func (t *Tracker) Start(ctx context.Context, p StartParams) (*types.Session, error) {
	if p.SessionID == "" {
		return nil, apierr.InvalidArgument("session_id_required", errors.New("session id is required"))
	}
	if !t.active.Add(p.SessionID, p.SlotNumber, p.ExclusiveSlot) {
		if t.active.Has(p.SessionID) {
			return nil, sessionExists(p.SessionID)
		}
		return nil, apierr.Conflict("slot_busy", fmt.Errorf("slot %d already has a generation in progress", *p.SlotNumber)).
			WithDetail("slot_number", *p.SlotNumber)
	}
	if p.Trigger == "" {
		p.Trigger = types.TriggerManual
	}

	now := time.Now().UTC()
	session := &types.Session{
		SessionID:  p.SessionID,
		SlotNumber: p.SlotNumber,
		Status:     types.StatusInProgress,
		Stage:      types.StageInitialization,
		Trigger:    p.Trigger,
		ProfileID:  p.ProfileID,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	meta := map[string]any{"trigger": string(p.Trigger)}
	if p.SlotNumber != nil {
		meta["slot_number"] = *p.SlotNumber
	}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		if err := t.sessions.Create(dbc, session); err != nil {
			return err
		}
		entry := &types.LogEntry{
			SessionID: p.SessionID,
			Stage:     types.StageInitialization,
			Level:     types.LevelInfo,
			Message:   "Generation session started",
			Metadata:  toJSON(meta),
			CreatedAt: now,
		}
		if err := t.logs.Append(dbc, entry); err != nil {
			return err
		}
		session.LastLogID = entry.ID
		session.LogCount = 1
		return tx.Model(&types.Session{}).
			Where("session_id = ?", p.SessionID).
			Updates(map[string]interface{}{"last_log_id": entry.ID, "log_count": 1}).Error
	})
	if err != nil {
		t.active.Remove(p.SessionID)
		if errors.Is(err, gensessions.ErrSessionExists) {
			return nil, sessionExists(p.SessionID)
		}
		return nil, apierr.Internal("session_start_failed", fmt.Errorf("start session: %w", err))
	}

	if t.metrics != nil {
		t.metrics.SessionStarted(string(p.Trigger))
		t.metrics.StageEntered(string(types.StageInitialization))
	}
	t.notify(ctx, session, EventStarted, nil)
	return session, nil
}

func sessionExists(sessionID string) error {
	return apierr.Conflict("session_exists", fmt.Errorf("session %s already exists", sessionID)).
		WithDetail("session_id", sessionID)
}

// Advance moves the session to stage and appends message in one transaction.
func (t *Tracker) Advance(ctx context.Context, sessionID string, stage types.Stage, message string, meta map[string]any) error {
	return t.AdvanceWith(ctx, sessionID, stage, message, meta, nil)
}

// AdvanceWith is Advance plus extra session columns written in the same
// transaction.
func (t *Tracker) AdvanceWith(ctx context.Context, sessionID string, stage types.Stage, message string, meta map[string]any, fields map[string]interface{}) error {
	if stage.Terminal() {
		return apierr.Internal("illegal_transition", fmt.Errorf("use Complete or Fail to reach %s", stage))
	}
	_, err := t.write(ctx, sessionID, &stage, types.LevelInfo, message, meta, fields, nil)
	if err == nil && t.metrics != nil {
		t.metrics.StageEntered(string(stage))
	}
	return err
}

// Log appends an entry at the session's current stage.
func (t *Tracker) Log(ctx context.Context, sessionID string, level types.Level, message string, meta map[string]any) error {
	_, err := t.write(ctx, sessionID, nil, level, message, meta, nil, nil)
	return err
}

// Complete marks the session completed with its idea reference.
func (t *Tracker) Complete(ctx context.Context, sessionID string, ideaID uuid.UUID, message string, meta map[string]any) error {
	return t.CompleteWith(ctx, sessionID, ideaID, message, meta, nil)
}

// CompleteWith runs persist and the completed transition in one
// transaction: either both commit or neither does.
func (t *Tracker) CompleteWith(ctx context.Context, sessionID string, ideaID uuid.UUID, message string, meta map[string]any, persist func(dbc dbctx.Context) error) error {
	stage := types.StageComplete
	now := time.Now().UTC()
	session, err := t.write(ctx, sessionID, &stage, types.LevelSuccess, message, meta, map[string]interface{}{
		"status":       types.StatusCompleted,
		"idea_id":      ideaID,
		"completed_at": now,
	}, persist)
	if err != nil {
		return err
	}
	t.finish(ctx, session, EventCompleted, nil)
	return nil
}

// Fail writes an error-level entry and the failed status together. Failing
// an already terminal session is a no-op. The session leaves the active set
// even when the write fails, so a store outage cannot pin its slot busy.
func (t *Tracker) Fail(ctx context.Context, sessionID string, cause error) error {
	defer t.active.Remove(sessionID)
	if cause == nil {
		cause = errors.New("generation failed")
	}
	kind := apierr.KindOf(cause)
	msg := cause.Error()
	meta := map[string]any{"error_kind": string(kind)}
	updates := map[string]interface{}{
		"status":        types.StatusFailed,
		"error_message": msg,
		"error_kind":    string(kind),
		"completed_at":  time.Now().UTC(),
	}
	if ae, ok := apierr.As(cause); ok {
		if ae.Code != "" {
			meta["code"] = ae.Code
		}
		if dup, ok := ae.Details["duplicate_of"].(uuid.UUID); ok {
			updates["duplicate_of_id"] = dup
			meta["duplicate_of"] = dup.String()
		}
	}
	stage := types.StageFailed
	session, err := t.write(ctx, sessionID, &stage, types.LevelError, msg, meta, updates, nil)
	if err != nil {
		if apierr.Is(err, apierr.KindConflict) {
			return nil
		}
		return err
	}
	t.finish(ctx, session, EventFailed, cause)
	return nil
}

// write appends one log entry and updates the session row in a single
// transaction. A nil stage keeps the current stage. within, when set, runs
// in the same transaction after the session is checked to be in progress.
func (t *Tracker) write(ctx context.Context, sessionID string, stage *types.Stage, level types.Level, message string, meta map[string]any, extra map[string]interface{}, within func(dbc dbctx.Context) error) (*types.Session, error) {
	var out *types.Session
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		current, err := t.sessions.GetByID(dbc, sessionID)
		if err != nil {
			return err
		}
		if current == nil {
			return apierr.NotFound("session_not_found", fmt.Errorf("session %s not found", sessionID))
		}
		if current.Status.Terminal() {
			return apierr.Conflict("session_terminal", fmt.Errorf("session %s is already %s", sessionID, current.Status))
		}
		target := current.Stage
		if stage != nil {
			if *stage != current.Stage && !types.CanTransition(current.Stage, *stage) {
				return apierr.Internal("illegal_transition", fmt.Errorf("session %s cannot move from %s to %s", sessionID, current.Stage, *stage))
			}
			target = *stage
		}
		if within != nil {
			if err := within(dbc); err != nil {
				return err
			}
		}

		entry := &types.LogEntry{
			SessionID: sessionID,
			Stage:     target,
			Level:     level,
			Message:   message,
			Metadata:  toJSON(meta),
		}
		if err := t.logs.Append(dbc, entry); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"stage":       target,
			"last_log_id": entry.ID,
			"log_count":   gorm.Expr("log_count + 1"),
		}
		for k, v := range extra {
			updates[k] = v
		}
		ok, err := t.sessions.UpdateFieldsIfInProgress(dbc, sessionID, updates)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.Conflict("session_terminal", fmt.Errorf("session %s is no longer in progress", sessionID))
		}
		out, err = t.sessions.GetByID(dbc, sessionID)
		return err
	})
	if err != nil {
		return nil, apierr.Ensure("session_write_failed", err)
	}
	return out, nil
}

func (t *Tracker) finish(ctx context.Context, session *types.Session, evType string, cause error) {
	t.active.Remove(session.SessionID)
	if t.metrics != nil {
		kind := ""
		if cause != nil {
			kind = string(apierr.KindOf(cause))
		}
		t.metrics.StageEntered(string(session.Stage))
		t.metrics.SessionFinished(string(session.Status), kind, time.Since(session.StartedAt))
	}
	t.notify(ctx, session, evType, cause)
}

func (t *Tracker) notify(ctx context.Context, s *types.Session, evType string, cause error) {
	if t.notifier == nil || s == nil {
		return
	}
	ev := Event{
		Type:       evType,
		SessionID:  s.SessionID,
		SlotNumber: s.SlotNumber,
		Trigger:    string(s.Trigger),
		Stage:      string(s.Stage),
		Status:     string(s.Status),
		IdeaID:     s.IdeaID,
		At:         time.Now().UTC(),
	}
	if cause != nil {
		ev.Error = cause.Error()
		ev.ErrorKind = string(apierr.KindOf(cause))
	}
	t.notifier.Notify(ctx, ev)
}

func (t *Tracker) Snapshot(ctx context.Context, sessionID string) (*types.Session, error) {
	return t.sessions.GetByID(dbctx.New(ctx), sessionID)
}

func (t *Tracker) Logs(ctx context.Context, sessionID string) ([]*types.LogEntry, error) {
	return t.logs.ListBySession(dbctx.New(ctx), sessionID)
}

func (t *Tracker) LogsAfter(ctx context.Context, sessionID string, afterID int64, limit int) ([]*types.LogEntry, error) {
	return t.logs.ListAfter(dbctx.New(ctx), sessionID, afterID, limit)
}

func (t *Tracker) List(ctx context.Context, status types.Status, limit int) ([]*types.Session, error) {
	return t.sessions.List(dbctx.New(ctx), status, limit)
}

// RecoverOrphans fails sessions left in progress by a previous process.
func (t *Tracker) RecoverOrphans(ctx context.Context) (int, error) {
	rows, err := t.sessions.ListInProgress(dbctx.New(ctx))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range rows {
		if t.active.Has(s.SessionID) {
			continue
		}
		cause := apierr.Internal("session_interrupted", fmt.Errorf("generation interrupted at stage %s: the server restarted before it finished", s.Stage))
		if err := t.Fail(ctx, s.SessionID, cause); err != nil {
			t.log.Warn("Failed to close orphaned session", "session_id", s.SessionID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		t.log.Info("Closed orphaned generation sessions", "count", n)
	}
	return n, nil
}

func toJSON(v map[string]any) datatypes.JSON {
	if len(v) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
