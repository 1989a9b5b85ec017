package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type Options struct {
	// Driver is "postgres" or "sqlite".
	Driver       string
	DSN          string
	EmbeddingDim int
	LogSQL       bool
}

type Service struct {
	db           *gorm.DB
	log          *logger.Logger
	driver       string
	embeddingDim int
}

func NewService(log *logger.Logger, opts Options) (*Service, error) {
	serviceLog := log.With("service", "DBService")
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = "postgres"
	}
	if opts.EmbeddingDim <= 0 {
		opts.EmbeddingDim = 1536
	}

	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}
	if opts.LogSQL {
		cfg.Logger = gormLogger.Default.LogMode(gormLogger.Info)
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	case "sqlite":
		dsn := opts.DSN
		if dsn == "" {
			dsn = "file:ideaforge.db?_foreign_keys=on&_busy_timeout=5000"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", opts.Driver)
	}

	log.Info("Connecting to database...", "driver", driver)
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		log.Error("Failed to connect to database", "driver", driver, "error", err)
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY under concurrent sessions.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if driver == "postgres" {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
			log.Error("Failed to enable pgvector extension", "error", err)
			return nil, fmt.Errorf("enable pgvector extension: %w", err)
		}
		log.Info("pgvector extension enabled")
	}

	return &Service{db: db, log: serviceLog, driver: driver, embeddingDim: opts.EmbeddingDim}, nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := AutoMigrate(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if s.driver == "postgres" {
		stmt := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_idea_embedding_hnsw ON idea USING hnsw ((embedding::vector(%d)) vector_cosine_ops);`,
			s.embeddingDim,
		)
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create idea embedding index: %w", err)
		}
	}
	s.log.Info("Auto migration complete")
	return nil
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.GenerationSession{},
		&domain.GenerationLogEntry{},
		&domain.GenerationSlot{},
		&domain.Idea{},
		&domain.IdeaHistory{},
	)
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Driver() string { return s.driver }

func (s *Service) EmbeddingDim() int { return s.embeddingDim }

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
