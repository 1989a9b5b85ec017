package scoring

import (
	"math"
	"sort"
)

const (
	MinCriterionScore = 0.0
	MaxCriterionScore = 10.0
)

// WeightedScore folds per-criterion scores into a 0-100 total. Only criteria
// present in both maps count; with no overlap the result is 0.
func WeightedScore(scores, weights map[string]float64) int {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		if _, ok := weights[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var num, den float64
	for _, k := range keys {
		w := weights[k]
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			continue
		}
		s := clamp(scores[k], MinCriterionScore, MaxCriterionScore)
		num += s * w
		den += w * MaxCriterionScore
	}
	if den == 0 {
		return 0
	}
	out := int(math.Round(100 * num / den))
	if out < 0 {
		return 0
	}
	if out > 100 {
		return 100
	}
	return out
}

// Keys names the criteria the complexity metrics read.
type Keys struct {
	TechnicalFeasibility string
	MarketSize           string
	MonetizationClarity  string
}

func DefaultKeys() Keys {
	return Keys{
		TechnicalFeasibility: "technicalFeasibility",
		MarketSize:           "marketSize",
		MonetizationClarity:  "monetizationClarity",
	}
}

type Complexity struct {
	Technical  float64 `json:"technical"`
	Regulatory float64 `json:"regulatory"`
	Sales      float64 `json:"sales"`
	Total      float64 `json:"total"`
}

// ComplexityScores derives complexity from criterion scores. Technical and
// sales invert feasibility-style scores (11 - x). Regulatory complexity is
// supplied by the generated payload and only clamped. Missing criteria count
// as 0 before inversion and every component is clamped to [1,10].
func ComplexityScores(scores map[string]float64, regulatory float64, keys Keys) Complexity {
	def := DefaultKeys()
	if keys.TechnicalFeasibility == "" {
		keys.TechnicalFeasibility = def.TechnicalFeasibility
	}
	if keys.MarketSize == "" {
		keys.MarketSize = def.MarketSize
	}
	if keys.MonetizationClarity == "" {
		keys.MonetizationClarity = def.MonetizationClarity
	}

	technical := clamp(11-scores[keys.TechnicalFeasibility], 1, 10)
	avg := (scores[keys.MarketSize] + scores[keys.MonetizationClarity]) / 2
	sales := clamp(11-avg, 1, 10)
	reg := clamp(regulatory, 1, 10)

	return Complexity{
		Technical:  technical,
		Regulatory: reg,
		Sales:      sales,
		Total:      technical + reg + sales,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
