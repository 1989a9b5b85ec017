package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/generation/profile"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// SlotUpdate is a partial slot change; nil fields are left alone. An empty
// ProfileID clears the assignment.
type SlotUpdate struct {
	Label           *string `json:"label,omitempty"`
	ProfileID       *string `json:"profileId,omitempty"`
	Enabled         *bool   `json:"enabled,omitempty"`
	AutoGenerate    *bool   `json:"autoGenerate,omitempty"`
	IntervalMinutes *int    `json:"intervalMinutes,omitempty"`
}

type SlotService interface {
	List(dbc dbctx.Context) ([]*types.Slot, error)
	Get(dbc dbctx.Context, number int) (*types.Slot, error)
	Update(dbc dbctx.Context, number int, in SlotUpdate) (*types.Slot, error)
	EnsureSlots(dbc dbctx.Context, max int) error
}

type SlotBusyChecker interface {
	SlotBusy(slot int) bool
}

type ProfileLookup interface {
	Get(id string) (*profile.Profile, bool)
}

type slotService struct {
	log      *logger.Logger
	repo     repos.GenerationSlotRepo
	busy     SlotBusyChecker
	profiles ProfileLookup
	now      func() time.Time
}

func NewSlotService(baseLog *logger.Logger, repo repos.GenerationSlotRepo, busy SlotBusyChecker, profiles ProfileLookup) SlotService {
	return &slotService{
		log:      baseLog.With("service", "SlotService"),
		repo:     repo,
		busy:     busy,
		profiles: profiles,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *slotService) List(dbc dbctx.Context) ([]*types.Slot, error) {
	return s.repo.List(dbc)
}

func (s *slotService) Get(dbc dbctx.Context, number int) (*types.Slot, error) {
	if !types.ValidSlotNumber(number) {
		return nil, invalidSlot(number)
	}
	slot, err := s.repo.GetByNumber(dbc, number)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, apierr.NotFound("slot_not_found", fmt.Errorf("slot %d does not exist", number)).WithDetail("slot_number", number)
	}
	return slot, nil
}

func (s *slotService) EnsureSlots(dbc dbctx.Context, max int) error {
	if err := s.repo.EnsureSlots(dbc, max); err != nil {
		return fmt.Errorf("ensure slots: %w", err)
	}
	return nil
}

// Update applies in. Turning auto-generate on schedules the first run one
// interval from now and is refused while the slot has a run in flight.
// Turning it off, or disabling the slot, clears the schedule.
func (s *slotService) Update(dbc dbctx.Context, number int, in SlotUpdate) (*types.Slot, error) {
	slot, err := s.Get(dbc, number)
	if err != nil {
		return nil, err
	}
	now := s.now()
	updates := map[string]interface{}{}

	if in.Label != nil {
		updates["label"] = strings.TrimSpace(*in.Label)
	}
	if in.ProfileID != nil {
		id := strings.TrimSpace(*in.ProfileID)
		if id == "" {
			updates["profile_id"] = nil
		} else {
			if s.profiles != nil {
				if _, ok := s.profiles.Get(id); !ok {
					return nil, apierr.NotFound("profile_not_found", fmt.Errorf("profile %q not found", id)).WithDetail("profile_id", id)
				}
			}
			updates["profile_id"] = id
		}
	}

	interval := slot.IntervalMinutes
	if in.IntervalMinutes != nil {
		interval = types.ClampInterval(*in.IntervalMinutes)
		updates["interval_minutes"] = interval
	}
	enabled := slot.Enabled
	if in.Enabled != nil {
		enabled = *in.Enabled
		updates["enabled"] = enabled
	}
	auto := slot.AutoGenerate
	if in.AutoGenerate != nil {
		auto = *in.AutoGenerate
		updates["auto_generate"] = auto
	}

	turningOn := auto && enabled && !(slot.AutoGenerate && slot.Enabled)
	if turningOn && s.busy != nil && s.busy.SlotBusy(number) {
		return nil, apierr.Conflict("slot_busy", fmt.Errorf("slot %d has a generation in progress; wait for it to finish before enabling auto-generate", number)).
			WithDetail("slot_number", number)
	}
	switch {
	case !auto || !enabled:
		updates["next_scheduled_at"] = nil
	case turningOn || in.IntervalMinutes != nil:
		updates["next_scheduled_at"] = now.Add(time.Duration(types.ClampInterval(interval)) * time.Minute)
	}

	if len(updates) == 0 {
		return slot, nil
	}
	if err := s.repo.UpdateFields(dbc, number, updates); err != nil {
		return nil, fmt.Errorf("update slot %d: %w", number, err)
	}
	s.log.Info("Slot updated", "slot", number, "enabled", enabled, "auto_generate", auto, "interval_minutes", interval)
	return s.Get(dbc, number)
}

func invalidSlot(number int) error {
	return apierr.InvalidArgument("invalid_slot_number",
		fmt.Errorf("slot number %d must be between %d and %d", number, types.MinSlotNumber, types.MaxSlotNumber))
}
