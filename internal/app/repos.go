package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type Repos struct {
	Sessions repos.GenerationSessionRepo
	Logs     repos.GenerationLogRepo
	Slots    repos.GenerationSlotRepo
	Ideas    repos.IdeaRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger, embeddingDim int) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Sessions: repos.NewGenerationSessionRepo(db, log),
		Logs:     repos.NewGenerationLogRepo(db, log),
		Slots:    repos.NewGenerationSlotRepo(db, log),
		Ideas:    repos.NewIdeaRepo(db, log, embeddingDim),
	}
}
