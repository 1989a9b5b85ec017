package generation

import (
	"errors"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

var ErrSessionExists = errors.New("generation session already exists")

type SessionRepo interface {
	Create(dbc dbctx.Context, session *types.Session) error
	GetByID(dbc dbctx.Context, sessionID string) (*types.Session, error)
	List(dbc dbctx.Context, status types.Status, limit int) ([]*types.Session, error)
	ListInProgress(dbc dbctx.Context) ([]*types.Session, error)
	// UpdateFieldsIfInProgress applies updates only while the session is
	// still in progress and reports whether a row changed.
	UpdateFieldsIfInProgress(dbc dbctx.Context, sessionID string, updates map[string]interface{}) (bool, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationSessionRepo"),
	}
}

func (r *sessionRepo) Create(dbc dbctx.Context, session *types.Session) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if session == nil || session.SessionID == "" {
		return errors.New("session id required")
	}
	now := time.Now().UTC()
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}
	var existing int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Session{}).
		Where("session_id = ?", session.SessionID).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return ErrSessionExists
	}
	if err := transaction.WithContext(dbc.Ctx).Create(session).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSessionExists
		}
		return err
	}
	return nil
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, sessionID string) (*types.Session, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if sessionID == "" {
		return nil, nil
	}
	var session types.Session
	err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Limit(1).
		Find(&session).Error
	if err != nil {
		return nil, err
	}
	if session.SessionID == "" {
		return nil, nil
	}
	return &session, nil
}

func (r *sessionRepo) List(dbc dbctx.Context, status types.Status, limit int) ([]*types.Session, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []*types.Session
	q := transaction.WithContext(dbc.Ctx).Model(&types.Session{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("started_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) ListInProgress(dbc dbctx.Context) ([]*types.Session, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Session
	if err := transaction.WithContext(dbc.Ctx).
		Where("status = ?", types.StatusInProgress).
		Order("started_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) UpdateFieldsIfInProgress(dbc dbctx.Context, sessionID string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if sessionID == "" {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Session{}).
		Where("session_id = ? AND status = ?", sessionID, types.StatusInProgress).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
