// Package scoring holds the shared aggregation arithmetic every dimension
// scorer consumes: inversion, the hard-mode transform and the weighted mean.
// No scorer reimplements any of this.
package scoring

import (
	"github.com/ensemble-chat/server/internal/eval/model"
)

// ApplyInverted reflects a raw judge score for anti-pattern claims: a high
// raw score on an inverted proposition penalizes the aggregate.
func ApplyInverted(raw float64, inverted bool) float64 {
	if inverted {
		return model.MaxScore - raw
	}
	return raw
}

// ApplyHardMode compresses mid-range scores downward when hard mode is on,
// making the gate stricter. The curve s^2/max is monotonic, bounded to
// [0, max] and fixes both endpoints. Identity when hard is false.
func ApplyHardMode(score float64, hard bool) float64 {
	if !hard {
		return score
	}
	if score < 0 {
		score = 0
	}
	if score > model.MaxScore {
		score = model.MaxScore
	}
	return score * score / model.MaxScore
}

// Adjust applies inversion then the hard-mode transform, the order every
// scorer uses.
func Adjust(raw float64, inverted, hard bool) float64 {
	return ApplyHardMode(ApplyInverted(raw, inverted), hard)
}

// WeightedMean aggregates proposition results into the overall score:
// sum(score_i * weight_i) / sum(weight_i) over propositions with a defined
// score. Weights come from the proposition set keyed by proposition ID; a
// result without a matching proposition contributes nothing. Returns nil
// when the total weight is zero, never 0 or NaN.
func WeightedMean(results []model.PropositionResult, props []model.Proposition) *float64 {
	weights := make(map[string]float64, len(props))
	for _, p := range props {
		w := p.Weight
		if w <= 0 {
			w = 1
		}
		weights[p.ID] = w
	}

	var totalWeight, weighted float64
	for _, r := range results {
		w, ok := weights[r.PropositionID]
		if !ok {
			continue
		}
		totalWeight += w
		weighted += r.Score * w
	}

	if totalWeight == 0 {
		return nil
	}
	mean := weighted / totalWeight
	return &mean
}

// EqualMean averages a set of dimension scores with equal weight, skipping
// nil entries. Nil when nothing is scorable.
func EqualMean(scores []*float64) *float64 {
	var sum float64
	var n int
	for _, s := range scores {
		if s == nil {
			continue
		}
		sum += *s
		n++
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}
