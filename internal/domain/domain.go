package domain

import (
	"github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/domain/ideas"
)

type (
	GenerationSession  = generation.Session
	GenerationLogEntry = generation.LogEntry
	GenerationSlot     = generation.Slot

	Idea        = ideas.Idea
	IdeaHistory = ideas.IdeaHistory
	Vector      = ideas.Vector
)
