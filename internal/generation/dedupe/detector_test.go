package dedupe

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ideasrepo "github.com/yungbote/ideaforge-backend/internal/data/repos/ideas"
	"github.com/yungbote/ideaforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/ideaforge-backend/internal/domain/ideas"
	"github.com/yungbote/ideaforge-backend/internal/llm"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
)

type countingEmbedder struct {
	calls atomic.Int32
	vec   []float32
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

func seed(t *testing.T) (ideasrepo.IdeaRepo, *ideas.Idea) {
	t.Helper()
	db := testutil.DB(t)
	repo := ideasrepo.NewIdeaRepo(db, testutil.Logger(t), 3)
	existing := &ideas.Idea{
		SessionID: uuid.NewString(),
		Domain:    "Healthcare",
		Problem:   "Patients wait hours in clinic queues",
		Solution:  "Remote pre-triage via SMS",
		Summary:   "SMS triage",
		Embedding: ideas.Vector{1, 0, 0},
	}
	require.NoError(t, repo.Create(dbctx.New(context.Background()), existing))
	return repo, existing
}

func TestExactDuplicateSkipsEmbedder(t *testing.T) {
	repo, existing := seed(t)
	emb := &countingEmbedder{vec: []float32{0, 1, 0}}
	d := NewDetector(testutil.Logger(t), repo, emb)

	v, err := d.IsDuplicate(context.Background(), Candidate{
		Domain:   "  HEALTHCARE ",
		Problem:  "patients wait hours in clinic   queues",
		Solution: "Remote Pre-Triage via SMS",
		Summary:  "something else entirely",
	})
	require.NoError(t, err)
	assert.True(t, v.Duplicate)
	assert.Equal(t, MethodExact, v.Method)
	assert.Equal(t, existing.ID, *v.MatchedIdeaID)
	assert.EqualValues(t, 0, emb.calls.Load())
}

func TestSemanticDuplicate(t *testing.T) {
	repo, existing := seed(t)
	emb := &countingEmbedder{vec: []float32{0.95, 0.05, 0}}
	d := NewDetector(testutil.Logger(t), repo, emb)

	c := Candidate{Domain: "Healthcare", Problem: "Clinic lines are long", Solution: "Text-message triage", Summary: "x"}
	v, err := d.IsDuplicate(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, v.Duplicate)
	assert.Equal(t, MethodSemantic, v.Method)
	assert.Equal(t, existing.ID, *v.MatchedIdeaID)
	assert.GreaterOrEqual(t, v.Similarity, DefaultThreshold)
	assert.Len(t, v.Embedding, 3)

	// Same candidate against an unchanged store gives the same verdict.
	again, err := d.IsDuplicate(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, v.Duplicate, again.Duplicate)
	assert.Equal(t, *v.MatchedIdeaID, *again.MatchedIdeaID)
	assert.InDelta(t, v.Similarity, again.Similarity, 1e-9)
}

func TestBelowThresholdIsUnique(t *testing.T) {
	repo, _ := seed(t)
	emb := &countingEmbedder{vec: []float32{0.5, 0.5, 0.5}}
	d := NewDetector(testutil.Logger(t), repo, emb)

	v, err := d.IsDuplicate(context.Background(), Candidate{Domain: "Retail", Problem: "p", Solution: "s", Summary: "x"})
	require.NoError(t, err)
	assert.False(t, v.Duplicate)
	assert.Nil(t, v.MatchedIdeaID)
	assert.Less(t, v.Similarity, DefaultThreshold)
	assert.EqualValues(t, 1, emb.calls.Load())

	// A looser per-call threshold flips the verdict.
	v, err = d.Check(context.Background(), Candidate{Domain: "Retail", Problem: "p", Solution: "s", Summary: "x"}, 0.5)
	require.NoError(t, err)
	assert.True(t, v.Duplicate)
}

func TestEmptyStoreIsUnique(t *testing.T) {
	repo := ideasrepo.NewIdeaRepo(testutil.DB(t), testutil.Logger(t), 3)
	d := NewDetector(testutil.Logger(t), repo, &countingEmbedder{vec: []float32{1, 0, 0}})
	v, err := d.IsDuplicate(context.Background(), Candidate{Domain: "a", Problem: "b", Solution: "c"})
	require.NoError(t, err)
	assert.False(t, v.Duplicate)
	assert.Equal(t, 0.0, v.Similarity)
}

func TestEmbeddingFailureIsExternalService(t *testing.T) {
	repo, _ := seed(t)
	pe := llm.Classify("openai", 429, "Rate limit reached", nil)
	d := NewDetector(testutil.Logger(t), repo, &countingEmbedder{err: pe})

	_, err := d.IsDuplicate(context.Background(), Candidate{Domain: "Retail", Problem: "p", Solution: "s"})
	require.Error(t, err)
	assert.Equal(t, apierr.KindExternalService, apierr.KindOf(err))
	assert.True(t, errors.Is(err, pe))
	assert.Contains(t, err.Error(), "Rate limit reached")

	_, err = NewDetector(testutil.Logger(t), repo, nil).IsDuplicate(context.Background(), Candidate{Domain: "Retail"})
	assert.Equal(t, apierr.KindExternalService, apierr.KindOf(err))
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, CodeEmbeddingUnavailable, ae.Code)
}

func TestUnconfiguredEmbedderKeepsItsCode(t *testing.T) {
	repo, _ := seed(t)
	unconfigured := apierr.ExternalService(CodeEmbeddingUnavailable, errors.New("embedding provider gemini has no credentials configured"))
	d := NewDetector(testutil.Logger(t), repo, &countingEmbedder{err: unconfigured})

	_, err := d.IsDuplicate(context.Background(), Candidate{Domain: "Retail", Problem: "p", Solution: "s"})
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindExternalService, ae.Kind)
	assert.Equal(t, CodeEmbeddingUnavailable, ae.Code)
}

func TestWithThresholdIgnoresOutOfRange(t *testing.T) {
	d := NewDetector(testutil.Logger(t), nil, nil, WithThreshold(1.5), WithTopK(0))
	assert.Equal(t, DefaultThreshold, d.Threshold())
	d = NewDetector(testutil.Logger(t), nil, nil, WithThreshold(0.9))
	assert.Equal(t, 0.9, d.Threshold())
}
