package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/generation/dedupe"
	"github.com/yungbote/ideaforge-backend/internal/generation/orchestrator"
	"github.com/yungbote/ideaforge-backend/internal/generation/profile"
	"github.com/yungbote/ideaforge-backend/internal/generation/scheduler"
	"github.com/yungbote/ideaforge-backend/internal/generation/stream"
	"github.com/yungbote/ideaforge-backend/internal/generation/tracker"
	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

type Services struct {
	Profiles     *profile.Store
	Tracker      *tracker.Tracker
	Notifier     *realtime.LifecycleNotifier
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler
	Streamer     *stream.Streamer

	Generation services.GenerationService
	Slots      services.SlotService
	Tokens     services.TokenService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, hub *realtime.SSEHub, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	profiles := profile.NewStore(log, cfg.ProfilesDir, cfg.DefaultProfile)
	if err := profiles.Load(); err != nil {
		return Services{}, fmt.Errorf("load profiles: %w", err)
	}

	var pub realtime.Publisher
	if clients.Bus != nil {
		pub = clients.Bus
	}
	notifier := realtime.NewLifecycleNotifier(log, hub, pub)

	tr := tracker.New(log, db, reposet.Sessions, reposet.Logs, tracker.NewActiveSet(),
		tracker.WithNotifier(notifier),
		tracker.WithMetrics(metrics),
	)

	detector := dedupe.NewDetector(log, reposet.Ideas, clients.Embedder,
		dedupe.WithThreshold(cfg.DuplicateThreshold),
		dedupe.WithTopK(cfg.DuplicateTopK),
	)
	orch, err := orchestrator.New(log, orchestrator.Deps{
		Tracker:  tr,
		Profiles: profiles,
		Slots:    reposet.Slots,
		LLMs:     clients.LLMs,
		Detector: detector,
		Embedder: clients.Embedder,
		Ideas:    reposet.Ideas,
		Metrics:  metrics,
	})
	if err != nil {
		return Services{}, err
	}

	sched := scheduler.New(log, reposet.Slots, orch, tr.Active(),
		scheduler.WithTick(cfg.SchedulerTick),
		scheduler.WithMetrics(metrics),
	)
	streamer := stream.New(log, tr,
		stream.WithPollInterval(cfg.StreamPollInterval),
		stream.WithGrace(cfg.StreamGrace),
	)

	var tokens services.TokenService
	if !cfg.AuthDisabled {
		tokens, err = services.NewTokenService(log, cfg.JWTSecretKey, cfg.JWTIssuer)
		if err != nil {
			return Services{}, err
		}
	}

	return Services{
		Profiles:     profiles,
		Tracker:      tr,
		Notifier:     notifier,
		Orchestrator: orch,
		Scheduler:    sched,
		Streamer:     streamer,
		Generation:   services.NewGenerationService(log, orch),
		Slots:        services.NewSlotService(log, reposet.Slots, tr.Active(), profiles),
		Tokens:       tokens,
	}, nil
}
