package tracker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	"github.com/yungbote/ideaforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTracker(t *testing.T, opts ...Option) *Tracker {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return New(log, db, repos.NewGenerationSessionRepo(db, log), repos.NewGenerationLogRepo(db, log), nil, opts...)
}

func TestTracker_HappyPath(t *testing.T) {
	n := &recordingNotifier{}
	tr := newTracker(t, WithNotifier(n))
	ctx := context.Background()
	sid := uuid.NewString()

	s, err := tr.Start(ctx, StartParams{SessionID: sid, SlotNumber: testutil.PtrInt(2), ProfileID: "default"})
	require.NoError(t, err)
	assert.Equal(t, types.StageInitialization, s.Stage)
	assert.Equal(t, types.TriggerManual, s.Trigger)
	assert.True(t, tr.Active().Has(sid))
	assert.True(t, tr.Active().SlotBusy(2))

	for _, st := range []types.Stage{types.StageConfigLoad, types.StagePromptBuild, types.StageAPICall} {
		require.NoError(t, tr.Advance(ctx, sid, st, "entering "+string(st), nil))
	}
	require.NoError(t, tr.Log(ctx, sid, types.LevelDebug, "tokens", map[string]any{"in": 10}))

	snap, err := tr.Snapshot(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, types.StageAPICall, snap.Stage)
	assert.Equal(t, types.StatusInProgress, snap.Status)
	assert.Equal(t, 5, snap.LogCount)

	ideaID := uuid.New()
	require.NoError(t, tr.Complete(ctx, sid, ideaID, "done", nil))

	snap, err = tr.Snapshot(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, snap.Status)
	assert.Equal(t, types.StageComplete, snap.Stage)
	require.NotNil(t, snap.IdeaID)
	assert.Equal(t, ideaID, *snap.IdeaID)
	assert.NotNil(t, snap.CompletedAt)
	assert.False(t, tr.Active().Has(sid))

	logs, err := tr.Logs(ctx, sid)
	require.NoError(t, err)
	require.Len(t, logs, 6)
	assert.Equal(t, snap.LastLogID, logs[len(logs)-1].ID)
	for i := 1; i < len(logs); i++ {
		assert.Greater(t, logs[i].ID, logs[i-1].ID)
		assert.Equal(t, logs[i-1].Seq+1, logs[i].Seq)
	}
	assert.Equal(t, types.StageAPICall, logs[4].Stage)
	assert.Equal(t, types.LevelSuccess, logs[5].Level)

	assert.Equal(t, []string{EventStarted, EventCompleted}, n.kinds())
}

func TestTracker_TerminalIsFinal(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()
	sid := uuid.NewString()
	_, err := tr.Start(ctx, StartParams{SessionID: sid})
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, sid, uuid.New(), "done", nil))

	err = tr.Advance(ctx, sid, types.StageDatabaseSave, "late", nil)
	assert.Equal(t, apierr.KindConflict, apierr.KindOf(err))

	// Failing a finished session changes nothing.
	require.NoError(t, tr.Fail(ctx, sid, errors.New("boom")))
	snap, err := tr.Snapshot(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, snap.Status)
}

func TestTracker_BackwardsMoveIsRejected(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()
	sid := uuid.NewString()
	_, err := tr.Start(ctx, StartParams{SessionID: sid})
	require.NoError(t, err)
	require.NoError(t, tr.Advance(ctx, sid, types.StageAPICall, "call", nil))

	err = tr.Advance(ctx, sid, types.StageConfigLoad, "back", nil)
	assert.Equal(t, apierr.KindInternal, apierr.KindOf(err))

	err = tr.Advance(ctx, sid, types.StageComplete, "skip", nil)
	assert.Error(t, err)
}

func TestTracker_FailWritesErrorLog(t *testing.T) {
	n := &recordingNotifier{}
	tr := newTracker(t, WithNotifier(n))
	ctx := context.Background()
	sid := uuid.NewString()
	_, err := tr.Start(ctx, StartParams{SessionID: sid})
	require.NoError(t, err)
	require.NoError(t, tr.Advance(ctx, sid, types.StageDuplicateCheck, "checking", nil))

	dup := uuid.New()
	cause := apierr.Conflict("duplicate_idea", errors.New("duplicate of an existing idea")).WithDetail("duplicate_of", dup)
	require.NoError(t, tr.Fail(ctx, sid, cause))

	snap, err := tr.Snapshot(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, snap.Status)
	assert.Equal(t, types.StageFailed, snap.Stage)
	require.NotNil(t, snap.ErrorMessage)
	assert.Equal(t, "duplicate of an existing idea", *snap.ErrorMessage)
	require.NotNil(t, snap.ErrorKind)
	assert.Equal(t, string(apierr.KindConflict), *snap.ErrorKind)
	require.NotNil(t, snap.DuplicateOfID)
	assert.Equal(t, dup, *snap.DuplicateOfID)

	logs, err := tr.Logs(ctx, sid)
	require.NoError(t, err)
	last := logs[len(logs)-1]
	assert.Equal(t, types.LevelError, last.Level)
	assert.Equal(t, types.StageFailed, last.Stage)
	assert.Equal(t, []string{EventStarted, EventFailed}, n.kinds())
}

func TestTracker_DuplicateSessionIDIsConflict(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()
	sid := uuid.NewString()
	_, err := tr.Start(ctx, StartParams{SessionID: sid})
	require.NoError(t, err)

	_, err = tr.Start(ctx, StartParams{SessionID: sid})
	assert.Equal(t, apierr.KindConflict, apierr.KindOf(err))

	// Still rejected after the first run leaves the active set.
	require.NoError(t, tr.Complete(ctx, sid, uuid.New(), "done", nil))
	_, err = tr.Start(ctx, StartParams{SessionID: sid})
	assert.Equal(t, apierr.KindConflict, apierr.KindOf(err))
	assert.False(t, tr.Active().Has(sid))
}

func TestTracker_ExclusiveSlot(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()
	_, err := tr.Start(ctx, StartParams{SessionID: uuid.NewString(), SlotNumber: testutil.PtrInt(4), Trigger: types.TriggerAuto, ExclusiveSlot: true})
	require.NoError(t, err)

	_, err = tr.Start(ctx, StartParams{SessionID: uuid.NewString(), SlotNumber: testutil.PtrInt(4), Trigger: types.TriggerAuto, ExclusiveSlot: true})
	assert.Equal(t, apierr.KindConflict, apierr.KindOf(err))
	assert.Equal(t, 1, tr.Active().Count())
}

func TestTracker_RecoverOrphans(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	sessions := repos.NewGenerationSessionRepo(db, log)
	logs := repos.NewGenerationLogRepo(db, log)
	ctx := context.Background()

	previous := New(log, db, sessions, logs, nil)
	orphan := uuid.NewString()
	_, err := previous.Start(ctx, StartParams{SessionID: orphan})
	require.NoError(t, err)
	require.NoError(t, previous.Advance(ctx, orphan, types.StageAPICall, "calling", nil))

	restarted := New(log, db, sessions, logs, nil)
	live := uuid.NewString()
	_, err = restarted.Start(ctx, StartParams{SessionID: live})
	require.NoError(t, err)

	n, err := restarted.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	snap, err := restarted.Snapshot(ctx, orphan)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, snap.Status)
	require.NotNil(t, snap.ErrorMessage)
	assert.Contains(t, *snap.ErrorMessage, "api_call")

	snap, err = restarted.Snapshot(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, snap.Status)
}

func TestTracker_ConcurrentSessionsStayIsolated(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	var wg sync.WaitGroup
	for _, sid := range []string{a, b} {
		wg.Add(1)
		go func(sid string) {
			defer wg.Done()
			_, err := tr.Start(ctx, StartParams{SessionID: sid})
			if !assert.NoError(t, err) {
				return
			}
			for _, st := range []types.Stage{types.StageConfigLoad, types.StagePromptBuild, types.StageAPICall} {
				assert.NoError(t, tr.Advance(ctx, sid, st, string(st)+" "+sid, nil))
				time.Sleep(time.Millisecond)
			}
		}(sid)
	}
	wg.Wait()

	for _, sid := range []string{a, b} {
		logs, err := tr.Logs(ctx, sid)
		require.NoError(t, err)
		require.Len(t, logs, 4)
		for i, l := range logs {
			assert.Equal(t, sid, l.SessionID)
			assert.Equal(t, i+1, l.Seq)
		}
	}
	assert.ElementsMatch(t, []string{a, b}, tr.Active().IDs())
}

func TestActiveSet(t *testing.T) {
	a := NewActiveSet()
	assert.True(t, a.Add("x", testutil.PtrInt(1), false))
	assert.False(t, a.Add("x", nil, false))
	assert.True(t, a.Add("y", testutil.PtrInt(1), false))
	assert.False(t, a.Add("z", testutil.PtrInt(1), true))
	assert.True(t, a.Add("z", nil, true))
	assert.True(t, a.SlotBusy(1))
	assert.False(t, a.SlotBusy(2))
	assert.Equal(t, []string{"x", "y", "z"}, a.IDs())

	a.Remove("x")
	a.Remove("y")
	assert.False(t, a.SlotBusy(1))
	assert.Equal(t, 1, a.Count())
}

func TestTracker_FailReleasesSlotWhenStoreIsDown(t *testing.T) {
	if os.Getenv("TEST_POSTGRES_DSN") != "" {
		t.Skip("closes the database handle; needs a private sqlite DB")
	}
	db := testutil.DB(t)
	log := testutil.Logger(t)
	tr := New(log, db, repos.NewGenerationSessionRepo(db, log), repos.NewGenerationLogRepo(db, log), nil)
	ctx := context.Background()
	sid := uuid.NewString()

	_, err := tr.Start(ctx, StartParams{SessionID: sid, SlotNumber: testutil.PtrInt(3), Trigger: types.TriggerAuto, ExclusiveSlot: true})
	require.NoError(t, err)
	require.True(t, tr.Active().SlotBusy(3))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = tr.Fail(ctx, sid, errors.New("upstream exploded"))
	require.Error(t, err)
	assert.False(t, tr.Active().Has(sid))
	assert.False(t, tr.Active().SlotBusy(3))
	assert.Equal(t, 0, tr.Active().Count())
}
