package generation

import (
	"errors"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type LogRepo interface {
	// Append assigns the next per-session seq and inserts the entry.
	Append(dbc dbctx.Context, entry *types.LogEntry) error
	ListBySession(dbc dbctx.Context, sessionID string) ([]*types.LogEntry, error)
	ListAfter(dbc dbctx.Context, sessionID string, afterID int64, limit int) ([]*types.LogEntry, error)
	CountByLevel(dbc dbctx.Context, sessionID string, level types.Level) (int64, error)
}

type logRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLogRepo(db *gorm.DB, baseLog *logger.Logger) LogRepo {
	return &logRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationLogRepo"),
	}
}

func (r *logRepo) Append(dbc dbctx.Context, entry *types.LogEntry) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if entry == nil || entry.SessionID == "" {
		return errors.New("log entry requires a session id")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Level == "" {
		entry.Level = types.LevelInfo
	}
	var maxSeq int
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.LogEntry{}).
		Where("session_id = ?", entry.SessionID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error; err != nil {
		return err
	}
	entry.Seq = maxSeq + 1
	entry.ID = 0
	return transaction.WithContext(dbc.Ctx).Create(entry).Error
}

func (r *logRepo) ListBySession(dbc dbctx.Context, sessionID string) ([]*types.LogEntry, error) {
	return r.ListAfter(dbc, sessionID, 0, 0)
}

func (r *logRepo) ListAfter(dbc dbctx.Context, sessionID string, afterID int64, limit int) ([]*types.LogEntry, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.LogEntry
	if sessionID == "" {
		return out, nil
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("session_id = ? AND id > ?", sessionID, afterID).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *logRepo) CountByLevel(dbc dbctx.Context, sessionID string, level types.Level) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.LogEntry{}).
		Where("session_id = ? AND level = ?", sessionID, level).
		Count(&n).Error
	return n, err
}
