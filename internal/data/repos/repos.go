package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/data/repos/generation"
	"github.com/yungbote/ideaforge-backend/internal/data/repos/ideas"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type GenerationSessionRepo = generation.SessionRepo
type GenerationLogRepo = generation.LogRepo
type GenerationSlotRepo = generation.SlotRepo

type IdeaRepo = ideas.IdeaRepo
type IdeaNeighbor = ideas.Neighbor

func NewGenerationSessionRepo(db *gorm.DB, baseLog *logger.Logger) GenerationSessionRepo {
	return generation.NewSessionRepo(db, baseLog)
}
func NewGenerationLogRepo(db *gorm.DB, baseLog *logger.Logger) GenerationLogRepo {
	return generation.NewLogRepo(db, baseLog)
}
func NewGenerationSlotRepo(db *gorm.DB, baseLog *logger.Logger) GenerationSlotRepo {
	return generation.NewSlotRepo(db, baseLog)
}
func NewIdeaRepo(db *gorm.DB, baseLog *logger.Logger, embeddingDim int) IdeaRepo {
	return ideas.NewIdeaRepo(db, baseLog, embeddingDim)
}
