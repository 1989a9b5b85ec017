package scoring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightedScore_Scenarios(t *testing.T) {
	w := map[string]float64{"a": 5, "b": 5}
	assert.Equal(t, 100, WeightedScore(map[string]float64{"a": 10, "b": 10}, w))
	assert.Equal(t, 10, WeightedScore(map[string]float64{"a": 1, "b": 1}, w))
}

func TestWeightedScore_NoSharedKeysIsZero(t *testing.T) {
	assert.Equal(t, 0, WeightedScore(map[string]float64{"a": 9}, map[string]float64{"b": 3}))
	assert.Equal(t, 0, WeightedScore(nil, nil))
	assert.Equal(t, 0, WeightedScore(map[string]float64{"a": 9}, map[string]float64{"a": 0}))
}

func TestWeightedScore_SkipsOneSidedCriteria(t *testing.T) {
	w := map[string]float64{"a": 1, "b": 3}
	// "c" has no weight and "b" has no score: only "a" counts.
	assert.Equal(t, 70, WeightedScore(map[string]float64{"a": 7, "c": 1}, w))
}

func TestWeightedScore_Weighted(t *testing.T) {
	// (8*1 + 4*3) / (10*4) = 0.5
	assert.Equal(t, 50, WeightedScore(map[string]float64{"a": 8, "b": 4}, map[string]float64{"a": 1, "b": 3}))
	// out-of-range scores are clamped
	assert.Equal(t, 100, WeightedScore(map[string]float64{"a": 42}, map[string]float64{"a": 1}))
	assert.Equal(t, 0, WeightedScore(map[string]float64{"a": -5}, map[string]float64{"a": 1}))
}

func TestWeightedScore_RangeAndOrderInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	for i := 0; i < 500; i++ {
		scores := map[string]float64{}
		weights := map[string]float64{}
		for _, n := range names {
			if rng.Intn(3) > 0 {
				scores[n] = rng.Float64()*14 - 2
			}
			if rng.Intn(3) > 0 {
				weights[n] = rng.Float64()*5 - 1
			}
		}
		got := WeightedScore(scores, weights)
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, 100)

		// Rebuilding the maps in a different insertion order changes Go's
		// iteration order but never the result.
		s2 := map[string]float64{}
		w2 := map[string]float64{}
		for j := len(names) - 1; j >= 0; j-- {
			if v, ok := scores[names[j]]; ok {
				s2[names[j]] = v
			}
			if v, ok := weights[names[j]]; ok {
				w2[names[j]] = v
			}
		}
		for k := 0; k < 5; k++ {
			assert.Equal(t, got, WeightedScore(s2, w2))
		}
	}
}

func TestComplexityScores_Scenario(t *testing.T) {
	c := ComplexityScores(map[string]float64{
		"technicalFeasibility": 8,
		"marketSize":           6,
		"monetizationClarity":  4,
	}, 5, Keys{})
	assert.Equal(t, 3.0, c.Technical)
	assert.Equal(t, 6.0, c.Sales)
	assert.Equal(t, 5.0, c.Regulatory)
	assert.Equal(t, 14.0, c.Total)
}

func TestComplexityScores_BoundsAndCustomKeys(t *testing.T) {
	c := ComplexityScores(map[string]float64{"feas": 10, "tam": 10, "money": 10}, 0, Keys{
		TechnicalFeasibility: "feas",
		MarketSize:           "tam",
		MonetizationClarity:  "money",
	})
	assert.Equal(t, Complexity{Technical: 1, Regulatory: 1, Sales: 1, Total: 3}, c)

	// Missing criteria count as 0 and clamp to the top of the range.
	c = ComplexityScores(map[string]float64{}, 99, Keys{})
	assert.Equal(t, Complexity{Technical: 10, Regulatory: 10, Sales: 10, Total: 30}, c)
}
