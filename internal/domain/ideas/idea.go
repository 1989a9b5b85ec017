package ideas

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Idea struct {
	ID                   uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID            string         `gorm:"column:session_id;size:64;index" json:"session_id"`
	ProfileID            string         `gorm:"column:profile_id;size:128;index" json:"profile_id"`
	Framework            string         `gorm:"column:framework;size:256" json:"framework"`
	Domain               string         `gorm:"column:domain;type:text;not null" json:"domain"`
	Problem              string         `gorm:"column:problem;type:text;not null" json:"problem"`
	Solution             string         `gorm:"column:solution;type:text;not null" json:"solution"`
	Summary              string         `gorm:"column:summary;type:text;not null" json:"summary"`
	DedupeKey            string         `gorm:"column:dedupe_key;size:64;not null;index" json:"-"`
	Example              datatypes.JSON `gorm:"column:example" json:"example"`
	CriteriaScores       datatypes.JSON `gorm:"column:criteria_scores" json:"criteria_scores"`
	CriteriaDetails      datatypes.JSON `gorm:"column:criteria_details" json:"criteria_details"`
	WeightedScore        int            `gorm:"column:weighted_score;not null" json:"weighted_score"`
	TechnicalComplexity  float64        `gorm:"column:technical_complexity;not null" json:"technical_complexity"`
	RegulatoryComplexity float64        `gorm:"column:regulatory_complexity;not null" json:"regulatory_complexity"`
	SalesComplexity      float64        `gorm:"column:sales_complexity;not null" json:"sales_complexity"`
	TotalComplexity      float64        `gorm:"column:total_complexity;not null" json:"total_complexity"`
	Embedding            Vector         `gorm:"column:embedding" json:"-"`
	Components           datatypes.JSON `gorm:"column:components" json:"components,omitempty"`
	Metadata             datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt            time.Time      `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (Idea) TableName() string { return "idea" }

func (i *Idea) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.DedupeKey == "" {
		i.DedupeKey = DedupeKey(i.Domain, i.Problem, i.Solution)
	}
	return nil
}

// IdeaHistory is an append-only snapshot log for ideas.
type IdeaHistory struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	IdeaID    uuid.UUID      `gorm:"column:idea_id;type:uuid;not null;index" json:"idea_id"`
	SessionID string         `gorm:"column:session_id;size:64" json:"session_id"`
	Event     string         `gorm:"column:event;size:32;not null" json:"event"`
	Snapshot  datatypes.JSON `gorm:"column:snapshot" json:"snapshot"`
	CreatedAt time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (IdeaHistory) TableName() string { return "idea_history" }

func (h *IdeaHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

const HistoryEventCreated = "created"

// Normalize lowercases, trims and collapses internal whitespace, so
// "Online  triage" and "online triage" share a dedupe key.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DedupeKey is the exact-match fingerprint over (domain, problem, solution).
func DedupeKey(domain, problem, solution string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(domain)))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(problem)))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(solution)))
	return hex.EncodeToString(h.Sum(nil))
}
