package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/db"
	"github.com/yungbote/ideaforge-backend/internal/http"
	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/envutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DBS      *db.Service
	DB       *gorm.DB
	Clients  Clients
	Repos    Repos
	Services Services
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics
	Server   *http.Server

	otelShutdown func(context.Context) error
}

// NewLogger builds the process logger from LOG_MODE.
func NewLogger() (*logger.Logger, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDB connects and migrates the database only.
func OpenDB(log *logger.Logger, cfg Config) (*db.Service, error) {
	dbs, err := db.NewService(log, db.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DatabaseURL,
		EmbeddingDim: cfg.EmbeddingDim,
		LogSQL:       cfg.LogSQL,
	})
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbs.AutoMigrateAll(); err != nil {
		_ = dbs.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return dbs, nil
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown, err := observability.InitOTel(ctx, log, cfg.Otel)
	if err != nil {
		return nil, err
	}
	metrics := observability.Init()

	dbs, err := OpenDB(log, cfg)
	if err != nil {
		return nil, err
	}
	theDB := dbs.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbs.Close()
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log, cfg.EmbeddingDim)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, hub, metrics)
	if err != nil {
		clients.Close()
		_ = dbs.Close()
		return nil, err
	}

	if err := serviceset.Slots.EnsureSlots(dbctx.New(ctx), cfg.MaxSlots); err != nil {
		clients.Close()
		_ = dbs.Close()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, cfg, serviceset, hub, metrics)
	middleware := wireMiddleware(log, cfg, serviceset)
	server := wireServer(log, cfg, handlerset, middleware, metrics)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DBS:          dbs,
		DB:           theDB,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		SSEHub:       hub,
		Metrics:      metrics,
		Server:       server,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP and runs the slot scheduler, the profile watcher and the
// cross-instance event forwarder until ctx is done or one of them fails.
// Sessions left in progress by a previous process are failed first.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if n, err := a.Services.Tracker.RecoverOrphans(ctx); err != nil {
		a.Log.Warn("Orphan session recovery failed", "error", err)
	} else if n > 0 {
		a.Log.Warn("Failed orphaned sessions from a previous run", "count", n)
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(gctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start event forwarder: %w", err)
		}
	}
	if a.Cfg.WatchProfiles {
		g.Go(func() error {
			if err := a.Services.Profiles.Watch(gctx); err != nil && gctx.Err() == nil {
				a.Log.Warn("Profile watcher stopped", "error", err)
			}
			return nil
		})
	}
	if a.Cfg.SchedulerEnabled {
		g.Go(func() error { return a.Services.Scheduler.Run(gctx) })
	}
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr)
		return a.Server.Run(gctx, a.Cfg.Addr, a.Cfg.ShutdownTimeout)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.DBS != nil {
		_ = a.DBS.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
