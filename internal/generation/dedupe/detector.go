package dedupe

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	ideasrepo "github.com/yungbote/ideaforge-backend/internal/data/repos/ideas"
	"github.com/yungbote/ideaforge-backend/internal/domain/ideas"
	"github.com/yungbote/ideaforge-backend/internal/llm"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

const (
	DefaultThreshold = 0.85
	DefaultTopK      = 5

	// CodeEmbeddingUnavailable marks a missing or unconfigured embedding
	// provider. Embedders may return it themselves; it is passed through.
	CodeEmbeddingUnavailable = "embedding_unavailable"
)

type Method string

const (
	MethodNone     Method = "none"
	MethodExact    Method = "exact"
	MethodSemantic Method = "semantic"
)

// Store is the slice of the idea repository the detector reads.
type Store interface {
	FindByDedupeKey(dbc dbctx.Context, key string) (*ideas.Idea, error)
	NearestByEmbedding(dbc dbctx.Context, query ideas.Vector, k int) ([]ideasrepo.Neighbor, error)
}

type Candidate struct {
	Domain   string
	Problem  string
	Solution string
	Summary  string
}

// EmbeddingText is the text the semantic check embeds.
func (c Candidate) EmbeddingText() string {
	return strings.Join([]string{
		strings.TrimSpace(c.Domain),
		strings.TrimSpace(c.Problem),
		strings.TrimSpace(c.Solution),
		strings.TrimSpace(c.Summary),
	}, "\n")
}

type Verdict struct {
	Duplicate     bool       `json:"duplicate"`
	MatchedIdeaID *uuid.UUID `json:"matched_idea_id,omitempty"`
	Similarity    float64    `json:"similarity"`
	Method        Method     `json:"method"`
	// Embedding is the candidate vector when the semantic tier ran.
	Embedding []float32 `json:"-"`
}

type Detector struct {
	store     Store
	embedder  llm.Embedder
	threshold float64
	topK      int
	log       *logger.Logger
}

type Option func(*Detector)

func WithThreshold(t float64) Option {
	return func(d *Detector) {
		if t > 0 && t <= 1 {
			d.threshold = t
		}
	}
}

func WithTopK(k int) Option {
	return func(d *Detector) {
		if k > 0 {
			d.topK = k
		}
	}
}

func NewDetector(log *logger.Logger, store Store, embedder llm.Embedder, opts ...Option) *Detector {
	d := &Detector{
		store:     store,
		embedder:  embedder,
		threshold: DefaultThreshold,
		topK:      DefaultTopK,
		log:       log.With("service", "DuplicateDetector"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Detector) Threshold() float64 { return d.threshold }

// IsDuplicate checks the candidate with the detector's threshold.
func (d *Detector) IsDuplicate(ctx context.Context, c Candidate) (Verdict, error) {
	return d.Check(ctx, c, 0)
}

// Check runs the exact tier, then the semantic tier. threshold <= 0 uses the
// detector default. An embedding failure is an ExternalService error.
func (d *Detector) Check(ctx context.Context, c Candidate, threshold float64) (Verdict, error) {
	if threshold <= 0 || threshold > 1 {
		threshold = d.threshold
	}
	dbc := dbctx.New(ctx)

	key := ideas.DedupeKey(c.Domain, c.Problem, c.Solution)
	existing, err := d.store.FindByDedupeKey(dbc, key)
	if err != nil {
		return Verdict{}, apierr.Internal("dedupe_lookup_failed", fmt.Errorf("exact duplicate lookup: %w", err))
	}
	if existing != nil {
		id := existing.ID
		return Verdict{Duplicate: true, MatchedIdeaID: &id, Similarity: 1, Method: MethodExact}, nil
	}

	if d.embedder == nil {
		return Verdict{}, apierr.ExternalService(CodeEmbeddingUnavailable, fmt.Errorf("no embedding provider configured"))
	}
	vec, err := d.embedder.Embed(ctx, c.EmbeddingText())
	if err != nil {
		if ae, ok := apierr.As(err); ok && ae.Code == CodeEmbeddingUnavailable {
			return Verdict{}, ae
		}
		return Verdict{}, apierr.ExternalService("embedding_failed", fmt.Errorf("embedding for duplicate check failed: %w", err))
	}
	if len(vec) == 0 {
		return Verdict{}, apierr.ExternalService("embedding_failed", fmt.Errorf("embedding provider returned an empty vector"))
	}

	neighbors, err := d.store.NearestByEmbedding(dbc, ideas.Vector(vec), d.topK)
	if err != nil {
		return Verdict{}, apierr.Internal("dedupe_lookup_failed", fmt.Errorf("nearest neighbour query: %w", err))
	}

	v := Verdict{Method: MethodSemantic, Embedding: vec}
	var best *ideasrepo.Neighbor
	for i := range neighbors {
		n := neighbors[i]
		if best == nil || n.Similarity() > best.Similarity() {
			best = &n
		}
	}
	if best == nil {
		return v, nil
	}
	v.Similarity = best.Similarity()
	if v.Similarity >= threshold {
		id := best.IdeaID
		v.Duplicate = true
		v.MatchedIdeaID = &id
		d.log.Debug("Semantic duplicate found", "matched_idea_id", id.String(), "similarity", v.Similarity)
	}
	return v, nil
}
