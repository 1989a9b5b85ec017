package generation

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type SlotRepo interface {
	// EnsureSlots creates missing slots 1..max without touching existing rows.
	EnsureSlots(dbc dbctx.Context, max int) error
	List(dbc dbctx.Context) ([]*types.Slot, error)
	GetByNumber(dbc dbctx.Context, number int) (*types.Slot, error)
	ListDue(dbc dbctx.Context, now time.Time) ([]*types.Slot, error)
	UpdateFields(dbc dbctx.Context, number int, updates map[string]interface{}) error
}

type slotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSlotRepo(db *gorm.DB, baseLog *logger.Logger) SlotRepo {
	return &slotRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationSlotRepo"),
	}
}

func (r *slotRepo) EnsureSlots(dbc dbctx.Context, max int) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if max > types.MaxSlotNumber {
		max = types.MaxSlotNumber
	}
	if max < types.MinSlotNumber {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]*types.Slot, 0, max)
	for n := types.MinSlotNumber; n <= max; n++ {
		rows = append(rows, &types.Slot{
			SlotNumber:      n,
			Label:           fmt.Sprintf("Slot %d", n),
			Enabled:         true,
			IntervalMinutes: types.DefaultIntervalMinutes,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "slot_number"}}, DoNothing: true}).
		Create(&rows).Error
}

func (r *slotRepo) List(dbc dbctx.Context) ([]*types.Slot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Slot
	if err := transaction.WithContext(dbc.Ctx).
		Order("slot_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *slotRepo) GetByNumber(dbc dbctx.Context, number int) (*types.Slot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var slot types.Slot
	err := transaction.WithContext(dbc.Ctx).
		Where("slot_number = ?", number).
		Limit(1).
		Find(&slot).Error
	if err != nil {
		return nil, err
	}
	if slot.SlotNumber == 0 {
		return nil, nil
	}
	return &slot, nil
}

func (r *slotRepo) ListDue(dbc dbctx.Context, now time.Time) ([]*types.Slot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Slot
	if err := transaction.WithContext(dbc.Ctx).
		Where("enabled = ? AND auto_generate = ? AND next_scheduled_at IS NOT NULL AND next_scheduled_at <= ?", true, true, now.UTC()).
		Order("slot_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *slotRepo) UpdateFields(dbc dbctx.Context, number int, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Slot{}).
		Where("slot_number = ?", number).
		Updates(updates).Error
}
