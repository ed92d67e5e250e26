package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-chat/server/internal/eval/model"
)

func TestApplyInverted_RoundTrip(t *testing.T) {
	for _, s := range []float64{0, 1.5, 4.5, 7, 9} {
		assert.Equal(t, s, ApplyInverted(ApplyInverted(s, true), true))
	}
}

func TestApplyInverted_Disabled(t *testing.T) {
	assert.Equal(t, 7.0, ApplyInverted(7, false))
	assert.Equal(t, 2.0, ApplyInverted(7, true))
}

func TestApplyHardMode_IdentityWhenDisabled(t *testing.T) {
	for _, s := range []float64{0, 2, 4.5, 9} {
		assert.Equal(t, s, ApplyHardMode(s, false))
	}
}

func TestApplyHardMode_CompressesMidRange(t *testing.T) {
	// Endpoints are fixed, everything in between drops.
	assert.Equal(t, 0.0, ApplyHardMode(0, true))
	assert.Equal(t, 9.0, ApplyHardMode(9, true))
	assert.Less(t, ApplyHardMode(4.5, true), 4.5)

	// Monotonic over the scale.
	prev := -1.0
	for s := 0.0; s <= 9.0; s += 0.5 {
		cur := ApplyHardMode(s, true)
		assert.GreaterOrEqual(t, cur, prev)
		assert.GreaterOrEqual(t, cur, 0.0)
		assert.LessOrEqual(t, cur, 9.0)
		prev = cur
	}
}

func TestWeightedMean_InvertedScenario(t *testing.T) {
	// Judge returns 7 for both; b is inverted, so aggregate = (7 + 2)/2.
	props := []model.Proposition{
		{ID: "a", Weight: 1},
		{ID: "b", Weight: 1, Inverted: true},
	}
	results := []model.PropositionResult{
		{PropositionID: "a", Score: Adjust(7, false, false)},
		{PropositionID: "b", Score: Adjust(7, true, false)},
	}

	mean := WeightedMean(results, props)
	require.NotNil(t, mean)
	assert.InDelta(t, 4.5, *mean, 1e-9)
}

func TestWeightedMean_Bounds(t *testing.T) {
	props := []model.Proposition{
		{ID: "a", Weight: 3},
		{ID: "b", Weight: 0.5},
		{ID: "c", Weight: 2},
	}
	results := []model.PropositionResult{
		{PropositionID: "a", Score: 9},
		{PropositionID: "b", Score: 0},
		{PropositionID: "c", Score: 4.2},
	}

	mean := WeightedMean(results, props)
	require.NotNil(t, mean)
	assert.GreaterOrEqual(t, *mean, 0.0)
	assert.LessOrEqual(t, *mean, 9.0)
}

func TestWeightedMean_ZeroPropositionsIsNil(t *testing.T) {
	assert.Nil(t, WeightedMean(nil, nil))
	// Results without matching propositions carry no weight.
	results := []model.PropositionResult{{PropositionID: "ghost", Score: 8}}
	assert.Nil(t, WeightedMean(results, nil))
}

func TestWeightedMean_DefaultWeightForNonPositive(t *testing.T) {
	props := []model.Proposition{
		{ID: "a"}, // weight defaults to 1
		{ID: "b", Weight: 1},
	}
	results := []model.PropositionResult{
		{PropositionID: "a", Score: 6},
		{PropositionID: "b", Score: 2},
	}

	mean := WeightedMean(results, props)
	require.NotNil(t, mean)
	assert.InDelta(t, 4.0, *mean, 1e-9)
}

func TestEqualMean(t *testing.T) {
	a, b := 6.0, 8.0
	mean := EqualMean([]*float64{&a, nil, &b})
	require.NotNil(t, mean)
	assert.InDelta(t, 7.0, *mean, 1e-9)

	assert.Nil(t, EqualMean([]*float64{nil, nil}))
	assert.Nil(t, EqualMean(nil))
}
