package ideas

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/ideaforge-backend/internal/domain/ideas"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// Neighbor is a stored idea ranked by cosine distance to a query vector.
type Neighbor struct {
	IdeaID   uuid.UUID
	Distance float64
}

func (n Neighbor) Similarity() float64 { return 1 - n.Distance }

type IdeaRepo interface {
	Create(dbc dbctx.Context, idea *types.Idea) error
	AppendHistory(dbc dbctx.Context, entry *types.IdeaHistory) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Idea, error)
	FindByDedupeKey(dbc dbctx.Context, key string) (*types.Idea, error)
	NearestByEmbedding(dbc dbctx.Context, query types.Vector, k int) ([]Neighbor, error)
	Count(dbc dbctx.Context) (int64, error)
}

type ideaRepo struct {
	db           *gorm.DB
	log          *logger.Logger
	embeddingDim int
}

func NewIdeaRepo(db *gorm.DB, baseLog *logger.Logger, embeddingDim int) IdeaRepo {
	return &ideaRepo{
		db:           db,
		log:          baseLog.With("repo", "IdeaRepo"),
		embeddingDim: embeddingDim,
	}
}

func (r *ideaRepo) Create(dbc dbctx.Context, idea *types.Idea) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if idea == nil {
		return errors.New("idea required")
	}
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).Create(idea).Error
}

func (r *ideaRepo) AppendHistory(dbc dbctx.Context, entry *types.IdeaHistory) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if entry == nil || entry.IdeaID == uuid.Nil {
		return errors.New("history entry requires an idea id")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).Create(entry).Error
}

func (r *ideaRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Idea, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var idea types.Idea
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&idea).Error; err != nil {
		return nil, err
	}
	if idea.ID == uuid.Nil {
		return nil, nil
	}
	return &idea, nil
}

func (r *ideaRepo) FindByDedupeKey(dbc dbctx.Context, key string) (*types.Idea, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if key == "" {
		return nil, nil
	}
	var idea types.Idea
	if err := transaction.WithContext(dbc.Ctx).
		Omit("embedding").
		Where("dedupe_key = ?", key).
		Order("created_at ASC").
		Limit(1).
		Find(&idea).Error; err != nil {
		return nil, err
	}
	if idea.ID == uuid.Nil {
		return nil, nil
	}
	return &idea, nil
}

func (r *ideaRepo) NearestByEmbedding(dbc dbctx.Context, query types.Vector, k int) ([]Neighbor, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(query) == 0 {
		return nil, errors.New("empty query vector")
	}
	if k <= 0 {
		k = 5
	}
	if transaction.Dialector.Name() == "postgres" {
		return r.nearestPG(dbc, transaction, query, k)
	}
	return r.nearestScan(dbc, transaction, query, k)
}

func (r *ideaRepo) nearestPG(dbc dbctx.Context, transaction *gorm.DB, query types.Vector, k int) ([]Neighbor, error) {
	dim := r.embeddingDim
	if dim <= 0 {
		dim = len(query)
	}
	expr := fmt.Sprintf("(embedding::vector(%d)) <=> ?::vector(%d)", dim, dim)
	type row struct {
		ID       uuid.UUID
		Distance float64
	}
	var rows []row
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Idea{}).
		Select("id, "+expr+" AS distance", query).
		Where("embedding IS NOT NULL").
		Order("distance ASC").
		Limit(k).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Neighbor, 0, len(rows))
	for _, rw := range rows {
		out = append(out, Neighbor{IdeaID: rw.ID, Distance: rw.Distance})
	}
	return out, nil
}

// nearestScan is the exhaustive fallback for stores without pgvector.
func (r *ideaRepo) nearestScan(dbc dbctx.Context, transaction *gorm.DB, query types.Vector, k int) ([]Neighbor, error) {
	var rows []*types.Idea
	if err := transaction.WithContext(dbc.Ctx).
		Select("id", "embedding").
		Where("embedding IS NOT NULL").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Neighbor, 0, len(rows))
	for _, rw := range rows {
		if len(rw.Embedding) != len(query) {
			continue
		}
		out = append(out, Neighbor{IdeaID: rw.ID, Distance: 1 - cosine(query, rw.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (r *ideaRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).Model(&types.Idea{}).Count(&n).Error
	return n, err
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
