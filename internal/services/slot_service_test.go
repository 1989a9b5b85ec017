package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	"github.com/yungbote/ideaforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/ideaforge-backend/internal/generation/profile"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
)

type busySlots map[int]bool

func (b busySlots) SlotBusy(n int) bool { return b[n] }

func boolPtr(v bool) *bool { return &v }

func newSlotService(t *testing.T, busy busySlots) (SlotService, dbctx.Context, time.Time) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	store, err := profile.NewStaticStore(log, "default",
		&profile.Profile{ID: "default", Prompts: profile.Prompts{Template: "x"}, Criteria: []profile.Criterion{{Name: "a", Weight: 1}}},
		&profile.Profile{ID: "retail", Prompts: profile.Prompts{Template: "x"}, Criteria: []profile.Criterion{{Name: "a", Weight: 1}}},
	)
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := NewSlotService(log, repos.NewGenerationSlotRepo(db, log), busy, store)
	svc.(*slotService).now = func() time.Time { return now }

	dbc := dbctx.New(context.Background())
	require.NoError(t, svc.EnsureSlots(dbc, 3))
	return svc, dbc, now
}

func TestSlotService_EnsureAndList(t *testing.T) {
	svc, dbc, _ := newSlotService(t, nil)
	require.NoError(t, svc.EnsureSlots(dbc, 3))

	slots, err := svc.List(dbc)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, "Slot 1", slots[0].Label)
	assert.True(t, slots[0].Enabled)
	assert.False(t, slots[0].AutoGenerate)

	_, err = svc.Get(dbc, 9)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
	_, err = svc.Get(dbc, 0)
	assert.Equal(t, apierr.KindInvalidArgument, apierr.KindOf(err))
}

func TestSlotService_EnableAutoSchedules(t *testing.T) {
	svc, dbc, now := newSlotService(t, nil)
	interval := 5000
	profileID := "retail"

	slot, err := svc.Update(dbc, 1, SlotUpdate{AutoGenerate: boolPtr(true), IntervalMinutes: &interval, ProfileID: &profileID})
	require.NoError(t, err)
	assert.True(t, slot.AutoGenerate)
	assert.Equal(t, 1440, slot.IntervalMinutes)
	require.NotNil(t, slot.ProfileID)
	assert.Equal(t, "retail", *slot.ProfileID)
	require.NotNil(t, slot.NextScheduledAt)
	assert.True(t, slot.NextScheduledAt.Equal(now.Add(1440*time.Minute)))

	slot, err = svc.Update(dbc, 1, SlotUpdate{AutoGenerate: boolPtr(false)})
	require.NoError(t, err)
	assert.Nil(t, slot.NextScheduledAt)

	empty := ""
	slot, err = svc.Update(dbc, 1, SlotUpdate{ProfileID: &empty})
	require.NoError(t, err)
	assert.Nil(t, slot.ProfileID)
}

func TestSlotService_IntervalClampedLow(t *testing.T) {
	svc, dbc, _ := newSlotService(t, nil)
	zero := 0
	slot, err := svc.Update(dbc, 2, SlotUpdate{IntervalMinutes: &zero})
	require.NoError(t, err)
	assert.Equal(t, 1, slot.IntervalMinutes)
}

func TestSlotService_Rejections(t *testing.T) {
	svc, dbc, _ := newSlotService(t, busySlots{2: true})

	_, err := svc.Update(dbc, 2, SlotUpdate{AutoGenerate: boolPtr(true)})
	assert.Equal(t, apierr.KindConflict, apierr.KindOf(err))

	missing := "nope"
	_, err = svc.Update(dbc, 1, SlotUpdate{ProfileID: &missing})
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))

	// Busy only matters when auto is being switched on.
	label := "Night shift"
	slot, err := svc.Update(dbc, 2, SlotUpdate{Label: &label})
	require.NoError(t, err)
	assert.Equal(t, "Night shift", slot.Label)
}
