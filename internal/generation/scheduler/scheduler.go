package scheduler

import (
	"context"
	"sync"
	"time"

	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/generation/orchestrator"
	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

const DefaultTick = 15 * time.Second

type Launcher interface {
	Launch(ctx context.Context, req orchestrator.Request) (string, <-chan orchestrator.Outcome, error)
}

type SlotStore interface {
	ListDue(dbc dbctx.Context, now time.Time) ([]*types.Slot, error)
	UpdateFields(dbc dbctx.Context, number int, updates map[string]interface{}) error
}

// BusyChecker reports whether a slot has an in-flight session.
type BusyChecker interface {
	SlotBusy(slot int) bool
}

type Scheduler struct {
	slots    SlotStore
	launcher Launcher
	busy     BusyChecker
	tick     time.Duration
	metrics  *observability.Metrics
	log      *logger.Logger

	wg sync.WaitGroup
}

type Option func(*Scheduler)

func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithMetrics(m *observability.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

func New(log *logger.Logger, slots SlotStore, launcher Launcher, busy BusyChecker, opts ...Option) *Scheduler {
	s := &Scheduler{
		slots:    slots,
		launcher: launcher,
		busy:     busy,
		tick:     DefaultTick,
		log:      log.With("service", "SlotScheduler"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run ticks until ctx is done, then waits for launched runs to report.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Slot scheduler started", "tick", s.tick.String())
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Slot scheduler stopping")
			s.wg.Wait()
			return nil
		case now := <-t.C:
			if _, err := s.Tick(ctx, now); err != nil {
				s.log.Warn("Scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick fires every due slot that is not busy and returns the launched
// session ids. Each fired slot is rescheduled to now + interval.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]string, error) {
	now = now.UTC()
	due, err := s.slots.ListDue(dbctx.New(ctx), now)
	if err != nil {
		return nil, err
	}
	var launched []string
	for _, slot := range due {
		n := slot.SlotNumber
		if s.busy != nil && s.busy.SlotBusy(n) {
			s.metrics.SchedulerFire(n, "skipped_busy")
			s.log.Debug("Slot busy; skipping", "slot", n)
			continue
		}

		req := orchestrator.Request{SlotNumber: &n, Trigger: types.TriggerAuto}
		if slot.ProfileID != nil {
			req.ProfileID = *slot.ProfileID
		}
		sid, out, err := s.launcher.Launch(ctx, req)

		next := now.Add(slot.Interval())
		updates := map[string]interface{}{"next_scheduled_at": next}
		if err != nil {
			outcome := "error"
			if apierr.Is(err, apierr.KindConflict) {
				outcome = "skipped_busy"
			}
			s.metrics.SchedulerFire(n, outcome)
			s.log.Warn("Scheduled launch failed", "slot", n, "error", err)
		} else {
			updates["last_run_at"] = now
			launched = append(launched, sid)
			s.metrics.SchedulerFire(n, "launched")
			s.log.Info("Scheduled generation launched", "slot", n, "session_id", sid, "next", next)
			s.drain(n, out)
		}
		if uerr := s.slots.UpdateFields(dbctx.New(ctx), n, updates); uerr != nil {
			s.log.Error("Failed to reschedule slot", "slot", n, "error", uerr)
		}
	}
	return launched, nil
}

// Wait blocks until every launched run has reported its outcome.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) drain(slot int, out <-chan orchestrator.Outcome) {
	if out == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for o := range out {
			if o.Err != nil {
				s.log.Warn("Scheduled generation failed", "slot", slot, "session_id", o.SessionID, "error", o.Err)
				continue
			}
			s.log.Info("Scheduled generation finished", "slot", slot, "session_id", o.SessionID)
		}
	}()
}
